package reminder

import (
	"context"

	"subtracker/internal/stories/subs"
	"subtracker/internal/stories/users"
)

type (
	subscriptionStorage interface {
		GetSubscription(ctx context.Context, criteria subs.GetCriteria) (*subs.Subscription, error)
	}

	userStorage interface {
		GetUser(ctx context.Context, criteria users.GetCriteria) (*users.User, error)
	}

	// Notifier delivers a reminder email. A returned error fails the send
	// step and leaves it to the workflow retry policy.
	Notifier interface {
		SendReminder(ctx context.Context, to string, milestone Milestone, snapshot Snapshot) error
	}

	trigger interface {
		Trigger(ctx context.Context, name string, payload any) (string, error)
	}
)
