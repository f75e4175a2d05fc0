package reminder

import (
	"fmt"
	"time"

	"subtracker/internal/stories/subs"
)

// WorkflowName is the name the reminder handler is registered under.
const WorkflowName = "subscription-reminder"

const fetchStepLabel = "get subscription"

// Milestone is a reminder lead time in days before renewal.
type Milestone int

const (
	SevenDaysBefore Milestone = 7
	FiveDaysBefore  Milestone = 5
	TwoDaysBefore   Milestone = 2
	OneDayBefore    Milestone = 1
)

// Milestones lists every milestone, largest lead time first. Reminders are
// evaluated in this order.
var Milestones = []Milestone{SevenDaysBefore, FiveDaysBefore, TwoDaysBefore, OneDayBefore}

func (m Milestone) Valid() bool {
	switch m {
	case SevenDaysBefore, FiveDaysBefore, TwoDaysBefore, OneDayBefore:
		return true
	default:
		return false
	}
}

func (m Milestone) Days() int {
	return int(m)
}

// ReminderDate is the moment the reminder becomes due.
func (m Milestone) ReminderDate(renewal time.Time) time.Time {
	return renewal.AddDate(0, 0, -m.Days())
}

// StepLabel labels the checkpointed send step.
func (m Milestone) StepLabel() string {
	return fmt.Sprintf("%d days before reminder", m.Days())
}

// SleepLabel labels the suspension that waits for the reminder date.
func (m Milestone) SleepLabel() string {
	return fmt.Sprintf("Reminder %d days before", m.Days())
}

func (m Milestone) statusLabel() string {
	return fmt.Sprintf("check status before %d days reminder", m.Days())
}

func (m Milestone) String() string {
	return m.StepLabel()
}

// Payload is the input of a reminder run.
type Payload struct {
	SubscriptionID int64 `json:"subscriptionId"`
}

// Snapshot is the subscription as read by the fetch step. It is stored in the
// step log, so later invocations of the same run see the same values.
type Snapshot struct {
	SubscriptionID int64          `json:"subscriptionId"`
	Name           string         `json:"name"`
	Price          float64        `json:"price"`
	Currency       subs.Currency  `json:"currency"`
	Frequency      subs.Frequency `json:"frequency"`
	PaymentMethod  string         `json:"paymentMethod"`
	Status         subs.Status    `json:"status"`
	RenewalDate    time.Time      `json:"renewalDate"`
	UserName       string         `json:"userName"`
	UserEmail      string         `json:"userEmail"`
}

// Sent is the recorded result of a send step.
type Sent struct {
	Milestone Milestone `json:"milestone"`
	To        string    `json:"to"`
	SentAt    time.Time `json:"sentAt"`
}
