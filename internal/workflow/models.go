package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrRunNotFound     = errors.New("workflow run not found")
	ErrUnknownWorkflow = errors.New("unknown workflow")
	ErrDuplicateLabel  = errors.New("step label used twice in one run")
	ErrStepKindChanged = errors.New("recorded step has a different kind")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSleeping  Status = "sleeping"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type StepKind string

const (
	StepKindStep  StepKind = "step"
	StepKindSleep StepKind = "sleep"
)

// Run is one durable execution of a registered workflow. WakeAt is the
// earliest time the run may be picked up again while pending or sleeping.
type Run struct {
	ID         string          `json:"id"`
	Workflow   string          `json:"workflow"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	WakeAt     time.Time       `json:"wakeAt"`
	LeaseUntil *time.Time      `json:"leaseUntil,omitempty"`
	Attempts   int             `json:"attempts"`
	LastError  *string         `json:"lastError,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Step is a checkpoint recorded for a run. Result holds the JSON encoded
// return value of a step, or the wake-up time of a sleep.
type Step struct {
	RunID       string          `json:"runId"`
	Label       string          `json:"label"`
	Kind        StepKind        `json:"kind"`
	Result      json.RawMessage `json:"result,omitempty"`
	CompletedAt time.Time       `json:"completedAt"`
}

type RunView struct {
	Run   *Run    `json:"run"`
	Steps []*Step `json:"steps"`
}

// SuspendError is returned by Context.SleepUntil when the run has to wait.
// Handlers must return it unchanged (or wrapped) so the engine can park the run.
type SuspendError struct {
	Label string
	Until time.Time
}

func (e *SuspendError) Error() string {
	return fmt.Sprintf("workflow suspended at %q until %s", e.Label, e.Until.Format(time.RFC3339))
}

// StepError wraps the failure of a step function.
type StepError struct {
	Label string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Label, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
