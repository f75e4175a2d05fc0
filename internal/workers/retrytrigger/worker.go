package retrytrigger

import (
	"context"
	"fmt"
	"log/slog"

	"subtracker/internal/workers"

	"github.com/robfig/cron/v3"
)

const (
	defaultSchedule = "*/5 * * * *"
	defaultBatch    = 100
)

// Worker starts reminder workflows for subscriptions whose trigger failed at
// creation time.
type Worker struct {
	subs      Subscriptions
	reminders Reminders
	schedule  string
	batch     int
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewWorker creates a new retry trigger worker
func NewWorker(
	subs Subscriptions,
	reminders Reminders,
	schedule string,
	batch int,
	logger *slog.Logger,
) *Worker {
	if schedule == "" {
		schedule = defaultSchedule
	}
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Worker{
		subs:      subs,
		reminders: reminders,
		schedule:  schedule,
		batch:     batch,
		logger:    logger,
		cron:      workers.NewCron(logger),
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "retry-trigger"
}

// Start starts the retry trigger worker
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx := context.Background()
		if err := w.run(ctx); err != nil {
			w.logger.Error("Retry trigger worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retry trigger worker: %w", err)
	}

	w.cron.Start()
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping retry trigger worker")
	<-w.cron.Stop().Done()
}

func (w *Worker) run(ctx context.Context) error {
	pending, err := w.subs.ListPendingReminders(ctx, w.batch)
	if err != nil {
		return fmt.Errorf("list pending reminders: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	w.logger.Info("Found subscriptions without reminder workflow", "count", len(pending))

	started := 0
	for _, sub := range pending {
		runID, err := w.reminders.StartReminders(ctx, sub.ID)
		if err != nil {
			w.logger.Error("Failed to start reminder workflow",
				"subscription_id", sub.ID,
				"error", err)
			continue
		}
		started++
		w.logger.Info("Reminder workflow started",
			"subscription_id", sub.ID,
			"run_id", runID)
	}

	w.logger.Info("Retry trigger worker execution completed",
		"started", started,
		"failed", len(pending)-started)
	return nil
}
