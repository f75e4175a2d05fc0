package createsubs

import (
	"context"

	"subtracker/internal/stories/subs"
)

type (
	storage interface {
		CreateSubscription(ctx context.Context, subscription subs.Subscription) (*subs.Subscription, error)
		UpdateSubscriptions(ctx context.Context, criteria subs.GetCriteria, params subs.UpdateParams) (int64, error)
	}

	// reminders starts the renewal reminder workflow for a subscription and
	// returns the workflow run id.
	reminders interface {
		Start(ctx context.Context, subscriptionID int64) (string, error)
	}
)
