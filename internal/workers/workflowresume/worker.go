package workflowresume

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"subtracker/internal/workers"

	"github.com/robfig/cron/v3"
)

const (
	defaultInterval = 5 * time.Second
	// maxRounds bounds how many batches one tick drains.
	maxRounds = 20
)

// Worker polls the workflow engine for sleeping, pending and abandoned runs
// and executes them.
type Worker struct {
	engine   Engine
	interval time.Duration
	logger   *slog.Logger
	cron     *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorker(engine Engine, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		engine:   engine,
		interval: interval,
		logger:   logger,
		cron:     workers.NewCron(logger),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (w *Worker) Name() string {
	return "workflow-resume"
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.interval), func() {
		if err := w.run(w.ctx); err != nil {
			w.logger.Error("Workflow resume failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule workflow resume worker: %w", err)
	}

	w.cron.Start()
	return nil
}

// Stop cancels in-flight runs, which the engine hands back to the queue, and
// waits for the current tick to finish.
func (w *Worker) Stop() {
	w.logger.Info("Stopping workflow resume worker")
	w.cancel()
	<-w.cron.Stop().Done()
}

func (w *Worker) run(ctx context.Context) error {
	total := 0
	for round := 0; round < maxRounds; round++ {
		if ctx.Err() != nil {
			break
		}

		n, err := w.engine.ResumeDue(ctx)
		total += n
		if err != nil {
			return fmt.Errorf("resume due runs: %w", err)
		}
		if n == 0 {
			break
		}
	}

	if total > 0 {
		w.logger.Debug("Resumed workflow runs", "count", total)
	}
	return nil
}
