package api

import (
	"context"

	"subtracker/internal/stories/subs"
	"subtracker/internal/stories/users"
	"subtracker/internal/workflow"
)

type (
	usersService interface {
		SignUp(ctx context.Context, req users.SignUpRequest) (*users.User, error)
		SignIn(ctx context.Context, req users.SignInRequest) (*users.User, error)
		GetUser(ctx context.Context, userID int64) (*users.User, error)
	}

	subsService interface {
		GetSubscription(ctx context.Context, requesterID, subscriptionID int64) (*subs.Subscription, error)
		ListUserSubscriptions(ctx context.Context, requesterID, userID int64) ([]*subs.Subscription, error)
		CancelSubscription(ctx context.Context, requesterID, subscriptionID int64) (*subs.Subscription, error)
		DeleteSubscription(ctx context.Context, requesterID, subscriptionID int64) error
		UpcomingRenewals(ctx context.Context, requesterID int64, days int) ([]*subs.Subscription, error)
	}

	subsCreator interface {
		CreateSubscription(ctx context.Context, req *subs.CreateSubscriptionRequest) (*subs.CreateSubscriptionResult, error)
		StartReminders(ctx context.Context, subscriptionID int64) (string, error)
	}

	workflowRuns interface {
		Get(ctx context.Context, runID string) (*workflow.RunView, error)
	}
)
