package subs

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
)

const defaultUpcomingDays = 7

type Service struct {
	storage Storage
	now     func() time.Time
}

func NewService(storage Storage, now func() time.Time) *Service {
	return &Service{
		storage: storage,
		now:     now,
	}
}

// GetSubscription returns the subscription if it belongs to requesterID.
func (s *Service) GetSubscription(ctx context.Context, requesterID, subscriptionID int64) (*Subscription, error) {
	subscription, err := s.storage.GetSubscription(ctx, GetCriteria{IDs: []int64{subscriptionID}})
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if subscription == nil {
		return nil, ErrNotFound
	}
	if subscription.UserID != requesterID {
		return nil, ErrNotOwner
	}
	return subscription, nil
}

// ListUserSubscriptions lists the subscriptions of userID. Only the user
// themselves may list them.
func (s *Service) ListUserSubscriptions(ctx context.Context, requesterID, userID int64) ([]*Subscription, error) {
	if requesterID != userID {
		return nil, ErrNotOwner
	}
	return s.storage.ListSubscriptions(ctx, ListCriteria{UserIDs: []int64{userID}})
}

func (s *Service) CancelSubscription(ctx context.Context, requesterID, subscriptionID int64) (*Subscription, error) {
	subscription, err := s.GetSubscription(ctx, requesterID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription.Status == StatusCancelled {
		return subscription, nil
	}

	if _, err := s.storage.UpdateSubscriptions(ctx, GetCriteria{IDs: []int64{subscriptionID}}, UpdateParams{
		Status: lo.ToPtr(StatusCancelled),
	}); err != nil {
		return nil, fmt.Errorf("cancel subscription in DB: %w", err)
	}
	subscription.Status = StatusCancelled
	return subscription, nil
}

func (s *Service) DeleteSubscription(ctx context.Context, requesterID, subscriptionID int64) error {
	if _, err := s.GetSubscription(ctx, requesterID, subscriptionID); err != nil {
		return err
	}
	if err := s.storage.DeleteSubscription(ctx, GetCriteria{IDs: []int64{subscriptionID}}); err != nil {
		return fmt.Errorf("delete subscription in DB: %w", err)
	}
	return nil
}

// UpcomingRenewals lists the requester's active subscriptions renewing within
// the next days days (7 when days <= 0).
func (s *Service) UpcomingRenewals(ctx context.Context, requesterID int64, days int) ([]*Subscription, error) {
	if days <= 0 {
		days = defaultUpcomingDays
	}
	now := s.now()
	return s.storage.ListSubscriptions(ctx, ListCriteria{
		UserIDs:       []int64{requesterID},
		Status:        []Status{StatusActive},
		RenewalAfter:  lo.ToPtr(now),
		RenewalBefore: lo.ToPtr(now.AddDate(0, 0, days)),
	})
}

// ExpireLapsed marks active subscriptions whose renewal date has passed as
// expired and returns how many were changed.
func (s *Service) ExpireLapsed(ctx context.Context) (int, error) {
	lapsed, err := s.storage.ListSubscriptions(ctx, ListCriteria{
		Status:        []Status{StatusActive},
		RenewalBefore: lo.ToPtr(s.now()),
	})
	if err != nil {
		return 0, fmt.Errorf("list lapsed subscriptions: %w", err)
	}
	if len(lapsed) == 0 {
		return 0, nil
	}

	ids := lo.Map(lapsed, func(sub *Subscription, _ int) int64 { return sub.ID })
	affected, err := s.storage.UpdateSubscriptions(ctx, GetCriteria{IDs: ids}, UpdateParams{
		Status: lo.ToPtr(StatusExpired),
	})
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	return int(affected), nil
}

// ListPendingReminders returns active, not yet renewed subscriptions that
// never had a reminder workflow started.
func (s *Service) ListPendingReminders(ctx context.Context, limit int) ([]*Subscription, error) {
	return s.storage.ListSubscriptions(ctx, ListCriteria{
		Status:         []Status{StatusActive},
		RenewalAfter:   lo.ToPtr(s.now()),
		WithoutRunOnly: true,
		Limit:          limit,
	})
}
