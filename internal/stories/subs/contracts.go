package subs

import (
	"context"
)

type Storage interface {
	ListSubscriptions(ctx context.Context, criteria ListCriteria) ([]*Subscription, error)
	GetSubscription(ctx context.Context, criteria GetCriteria) (*Subscription, error)
	UpdateSubscriptions(ctx context.Context, criteria GetCriteria, params UpdateParams) (int64, error)
	DeleteSubscription(ctx context.Context, criteria GetCriteria) error
}
