package mail

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"subtracker/internal/reminder"
)

var ErrMissingRecipient = errors.New("reminder email has no recipient")

// Service renders reminder emails and hands them to the SMTP sender. It
// implements reminder.Notifier.
type Service struct {
	sender    sender
	catalogue *Catalogue
	links     Links
	loc       *time.Location
	now       func() time.Time
	metrics   *Metrics
	logger    *slog.Logger
}

func NewService(
	sender sender,
	catalogue *Catalogue,
	links Links,
	loc *time.Location,
	now func() time.Time,
	metrics *Metrics,
	logger *slog.Logger,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		sender:    sender,
		catalogue: catalogue,
		links:     links,
		loc:       loc,
		now:       now,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *Service) SendReminder(ctx context.Context, to string, milestone reminder.Milestone, snapshot reminder.Snapshot) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrMissingRecipient
	}

	id, err := TemplateFor(milestone)
	if err != nil {
		return err
	}

	subject, body, err := s.catalogue.Render(id, newMailInfo(snapshot, s.now(), s.loc, s.links))
	if err != nil {
		return errors.Wrap(err, "render reminder")
	}

	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		s.metrics.reminder(id, resultFailed)
		return errors.Wrapf(err, "send %s to %s", id, to)
	}

	s.metrics.reminder(id, resultSent)
	s.logger.Info("Reminder email sent",
		"template", id,
		"subscription_id", snapshot.SubscriptionID)
	return nil
}
