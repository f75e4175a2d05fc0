package expiration

import (
	"context"
	"fmt"
	"log/slog"

	"subtracker/internal/workers"

	"github.com/robfig/cron/v3"
)

const defaultSchedule = "10 0 * * *"

// Worker marks active subscriptions whose renewal date has passed as expired
type Worker struct {
	subs     Subscriptions
	logger   *slog.Logger
	cron     *cron.Cron
	schedule string
}

// NewWorker creates a new expiration worker. An empty schedule runs it daily at 00:10.
func NewWorker(subs Subscriptions, schedule string, logger *slog.Logger) *Worker {
	if schedule == "" {
		schedule = defaultSchedule
	}
	return &Worker{
		subs:     subs,
		logger:   logger,
		cron:     workers.NewCron(logger),
		schedule: schedule,
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "expiration"
}

// Start starts the expiration worker
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx := context.Background()
		w.logger.Info("Running expiration worker")
		if err := w.run(ctx); err != nil {
			w.logger.Error("Expiration worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiration worker: %w", err)
	}

	w.cron.Start()
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping expiration worker")
	<-w.cron.Stop().Done()
}

func (w *Worker) run(ctx context.Context) error {
	expired, err := w.subs.ExpireLapsed(ctx)
	if err != nil {
		return fmt.Errorf("expire lapsed subscriptions: %w", err)
	}

	w.logger.Info("Expiration worker execution completed", "expired", expired)
	return nil
}
