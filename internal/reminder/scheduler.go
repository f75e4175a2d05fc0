package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"subtracker/internal/stories/subs"
	"subtracker/internal/stories/users"
	"subtracker/internal/workflow"
)

type Option func(*Scheduler)

// WithLocation sets the timezone whose calendar days decide whether a
// reminder is due today.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithStatusRecheck makes every send re-read the subscription status first
// and stop the run once the subscription is no longer active.
func WithStatusRecheck(enabled bool) Option {
	return func(s *Scheduler) {
		s.recheckStatus = enabled
	}
}

// Scheduler decides, for one subscription, which reminders to send now and
// which to wait for. It keeps no state between invocations: progress lives
// in the workflow step log.
type Scheduler struct {
	subscriptions subscriptionStorage
	users         userStorage
	notifier      Notifier
	trigger       trigger
	now           func() time.Time
	logger        *slog.Logger

	loc           *time.Location
	recheckStatus bool
}

func NewScheduler(
	subscriptions subscriptionStorage,
	users userStorage,
	notifier Notifier,
	trigger trigger,
	now func() time.Time,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		subscriptions: subscriptions,
		users:         users,
		notifier:      notifier,
		trigger:       trigger,
		now:           now,
		logger:        logger,
		loc:           time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a reminder run for the subscription and returns its id.
func (s *Scheduler) Start(ctx context.Context, subscriptionID int64) (string, error) {
	runID, err := s.trigger.Trigger(ctx, WorkflowName, Payload{SubscriptionID: subscriptionID})
	if err != nil {
		return "", errors.Wrap(err, "trigger reminder workflow")
	}
	return runID, nil
}

// Handle is the reminder workflow body. It is re-entered from the top on
// every resumption.
func (s *Scheduler) Handle(ctx context.Context, wc workflow.Context) error {
	var payload Payload
	if err := wc.Payload(&payload); err != nil {
		return err
	}

	logger := s.logger.With("subscription_id", payload.SubscriptionID, "run_id", wc.RunID())

	snapshot, err := workflow.RunStep(ctx, wc, fetchStepLabel, func(ctx context.Context) (*Snapshot, error) {
		return s.fetch(ctx, payload.SubscriptionID)
	})
	if err != nil {
		return err
	}
	if snapshot == nil {
		logger.Info("Subscription not found, stopping reminders")
		return nil
	}
	if snapshot.Status != subs.StatusActive {
		logger.Info("Subscription is not active, stopping reminders", "status", snapshot.Status)
		return nil
	}

	now := s.now()
	if snapshot.RenewalDate.Before(now) {
		logger.Info("Renewal date has passed, stopping reminders", "renewal_date", snapshot.RenewalDate)
		return nil
	}

	for _, milestone := range Milestones {
		reminderDate := milestone.ReminderDate(snapshot.RenewalDate)

		if !s.due(reminderDate, now) {
			logger.Debug("Waiting for reminder date", "milestone", milestone.Days(), "reminder_date", reminderDate)
			if err := wc.SleepUntil(ctx, milestone.SleepLabel(), reminderDate); err != nil {
				return err
			}

			now = s.now()
			if !s.due(reminderDate, now) {
				logger.Warn("Woke up before reminder date, skipping reminder",
					"milestone", milestone.Days(),
					"reminder_date", reminderDate)
				continue
			}
		}

		if s.recheckStatus {
			active, err := s.stillActive(ctx, wc, milestone, payload.SubscriptionID)
			if err != nil {
				return err
			}
			if !active {
				logger.Info("Subscription is no longer active, stopping reminders", "milestone", milestone.Days())
				return nil
			}
		}

		if err := s.send(ctx, wc, milestone, *snapshot); err != nil {
			return err
		}
	}

	logger.Info("Reminder workflow finished")
	return nil
}

// due reports whether the reminder date falls on or before today.
func (s *Scheduler) due(reminderDate, now time.Time) bool {
	return !startOfDay(reminderDate.In(s.loc)).After(startOfDay(now.In(s.loc)))
}

func (s *Scheduler) fetch(ctx context.Context, subscriptionID int64) (*Snapshot, error) {
	subscription, err := s.subscriptions.GetSubscription(ctx, subs.GetCriteria{IDs: []int64{subscriptionID}})
	if err != nil {
		return nil, errors.Wrap(err, "get subscription")
	}
	if subscription == nil {
		return nil, nil
	}

	owner, err := s.users.GetUser(ctx, users.GetCriteria{ID: lo.ToPtr(subscription.UserID)})
	if err != nil {
		return nil, errors.Wrap(err, "get subscription owner")
	}
	if owner == nil {
		return nil, nil
	}

	return &Snapshot{
		SubscriptionID: subscription.ID,
		Name:           subscription.Name,
		Price:          subscription.Price,
		Currency:       subscription.Currency,
		Frequency:      subscription.Frequency,
		PaymentMethod:  subscription.PaymentMethod,
		Status:         subscription.Status,
		RenewalDate:    subscription.RenewalDate,
		UserName:       owner.Name,
		UserEmail:      owner.Email,
	}, nil
}

func (s *Scheduler) stillActive(ctx context.Context, wc workflow.Context, milestone Milestone, subscriptionID int64) (bool, error) {
	return workflow.RunStep(ctx, wc, milestone.statusLabel(), func(ctx context.Context) (bool, error) {
		subscription, err := s.subscriptions.GetSubscription(ctx, subs.GetCriteria{IDs: []int64{subscriptionID}})
		if err != nil {
			return false, errors.Wrap(err, "get subscription")
		}
		return subscription != nil && subscription.Status == subs.StatusActive, nil
	})
}

func (s *Scheduler) send(ctx context.Context, wc workflow.Context, milestone Milestone, snapshot Snapshot) error {
	_, err := workflow.RunStep(ctx, wc, milestone.StepLabel(), func(ctx context.Context) (Sent, error) {
		if err := s.notifier.SendReminder(ctx, snapshot.UserEmail, milestone, snapshot); err != nil {
			return Sent{}, errors.Wrapf(err, "send %s", milestone)
		}
		s.logger.Info("Reminder sent",
			"subscription_id", snapshot.SubscriptionID,
			"milestone", milestone.Days(),
			"run_id", wc.RunID())
		return Sent{Milestone: milestone, To: snapshot.UserEmail, SentAt: s.now()}, nil
	})
	return err
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
