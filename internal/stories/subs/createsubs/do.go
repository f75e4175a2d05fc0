package createsubs

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"subtracker/internal/stories/subs"

	"github.com/pkg/errors"
)

type Service struct {
	storage   storage
	reminders reminders
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(storage storage, reminders reminders, now func() time.Time, logger *slog.Logger) *Service {
	return &Service{
		storage:   storage,
		reminders: reminders,
		now:       now,
		logger:    logger,
	}
}

// CreateSubscription stores the subscription and starts its reminder
// workflow. A failed workflow trigger is logged and does not fail the
// creation; the retry-trigger worker picks such subscriptions up later.
func (s *Service) CreateSubscription(ctx context.Context, req *subs.CreateSubscriptionRequest) (*subs.CreateSubscriptionResult, error) {
	now := s.now()

	renewalDate, status, err := subs.ResolveRenewal(req.StartDate, req.Frequency, req.RenewalDate, now)
	if err != nil {
		return nil, errors.Wrap(err, "resolve renewal date")
	}

	currency := req.Currency
	if currency == "" {
		currency = subs.CurrencyUSD
	}

	created, err := s.storage.CreateSubscription(ctx, subs.Subscription{
		UserID:        req.UserID,
		Name:          strings.TrimSpace(req.Name),
		Price:         req.Price,
		Currency:      currency,
		Frequency:     req.Frequency,
		Category:      req.Category,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Status:        status,
		StartDate:     req.StartDate,
		RenewalDate:   renewalDate,
	})
	if err != nil {
		return nil, errors.Errorf("failed to create subscription in database: %v", err)
	}

	result := &subs.CreateSubscriptionResult{Subscription: created}

	if created.Status != subs.StatusActive {
		return result, nil
	}

	runID, err := s.StartReminders(ctx, created.ID)
	if err != nil {
		s.logger.Error("Failed to trigger reminder workflow",
			"subscription_id", created.ID,
			"error", err)
		return result, nil
	}

	created.WorkflowRunID = &runID
	result.WorkflowRunID = &runID
	return result, nil
}

// StartReminders triggers the reminder workflow and records its run id on
// the subscription.
func (s *Service) StartReminders(ctx context.Context, subscriptionID int64) (string, error) {
	runID, err := s.reminders.Start(ctx, subscriptionID)
	if err != nil {
		return "", errors.Wrap(err, "trigger reminder workflow")
	}

	if _, err := s.storage.UpdateSubscriptions(ctx, subs.GetCriteria{IDs: []int64{subscriptionID}}, subs.UpdateParams{
		WorkflowRunID: &runID,
	}); err != nil {
		return "", errors.Wrapf(err, "record workflow run %s", runID)
	}

	s.logger.Info("Reminder workflow triggered",
		"subscription_id", subscriptionID,
		"run_id", runID)

	return runID, nil
}
