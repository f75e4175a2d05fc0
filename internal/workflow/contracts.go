package workflow

import (
	"context"
	"time"
)

type (
	// Storage persists runs and their step log.
	Storage interface {
		CreateRun(ctx context.Context, run Run) (*Run, error)
		GetRun(ctx context.Context, runID string) (*Run, error)
		SaveRun(ctx context.Context, run *Run) error
		ListDueRuns(ctx context.Context, now time.Time, limit int) ([]*Run, error)
		// ClaimRun atomically moves a due run to running with the given lease.
		// It reports false when another worker got there first.
		ClaimRun(ctx context.Context, runID string, now, leaseUntil time.Time) (bool, error)
		ListSteps(ctx context.Context, runID string) ([]*Step, error)
		SaveStep(ctx context.Context, step Step) error
	}

	// Handler is the body of a workflow. It is re-entered from the top on
	// every resumption; completed steps are replayed from the step log.
	Handler func(ctx context.Context, wc Context) error

	StepFunc func(ctx context.Context) (any, error)

	// Context is the handle a Handler uses to checkpoint work.
	Context interface {
		RunID() string
		Payload(v any) error
		// Run executes fn at most once per label for the run and stores its
		// result; on later invocations the stored result is decoded into out.
		Run(ctx context.Context, label string, fn StepFunc, out any) error
		// SleepUntil returns nil once until has passed, and a *SuspendError
		// before that.
		SleepUntil(ctx context.Context, label string, until time.Time) error
	}
)
