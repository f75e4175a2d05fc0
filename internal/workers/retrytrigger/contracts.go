package retrytrigger

import (
	"context"

	"subtracker/internal/stories/subs"
)

type (
	// Subscriptions lists active subscriptions that never got a reminder run.
	Subscriptions interface {
		ListPendingReminders(ctx context.Context, limit int) ([]*subs.Subscription, error)
	}

	// Reminders starts the reminder workflow and records the run on the subscription.
	Reminders interface {
		StartReminders(ctx context.Context, subscriptionID int64) (string, error)
	}
)
