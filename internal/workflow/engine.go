package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	outcomeCompleted = "completed"
	outcomeSuspended = "suspended"
	outcomeRetry     = "retry"
	outcomeFailed    = "failed"
	outcomeRequeued  = "requeued"
)

var (
	defaultMaxAttempts = 3
	defaultRetryBase   = 30 * time.Second
	defaultRetryMax    = 10 * time.Minute
	defaultLease       = 2 * time.Minute
	defaultBatchSize   = 50
	defaultConcurrency = 4
)

type config struct {
	now         func() time.Time
	maxAttempts int
	retryBase   time.Duration
	retryMax    time.Duration
	lease       time.Duration
	batchSize   int
	concurrency int
	metrics     *Metrics
}

type Option func(*config)

func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return func(c *config) {
		if base > 0 {
			c.retryBase = base
		}
		if maxDelay > 0 {
			c.retryMax = maxDelay
		}
	}
}

func WithLease(lease time.Duration) Option {
	return func(c *config) {
		if lease > 0 {
			c.lease = lease
		}
	}
}

func WithBatch(size, concurrency int) Option {
	return func(c *config) {
		if size > 0 {
			c.batchSize = size
		}
		if concurrency > 0 {
			c.concurrency = concurrency
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// Engine executes registered workflows durably on top of Storage.
type Engine struct {
	storage Storage
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics

	now         func() time.Time
	maxAttempts int
	retryBase   time.Duration
	retryMax    time.Duration
	lease       time.Duration
	batchSize   int
	concurrency int

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewEngine(storage Storage, logger *slog.Logger, opts ...Option) *Engine {
	cfg := &config{
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
		retryMax:    defaultRetryMax,
		lease:       defaultLease,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Engine{
		storage:     storage,
		logger:      logger,
		tracer:      otel.Tracer("subtracker/internal/workflow"),
		metrics:     cfg.metrics,
		now:         cfg.now,
		maxAttempts: cfg.maxAttempts,
		retryBase:   cfg.retryBase,
		retryMax:    cfg.retryMax,
		lease:       cfg.lease,
		batchSize:   cfg.batchSize,
		concurrency: cfg.concurrency,
		handlers:    make(map[string]Handler),
	}
}

// Register binds a handler to a workflow name. Registering the same name
// twice replaces the handler.
func (e *Engine) Register(name string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = handler
}

func (e *Engine) handler(name string) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[name]
	return h, ok
}

// Trigger creates a pending run that is due immediately and returns its id.
func (e *Engine) Trigger(ctx context.Context, name string, payload any) (string, error) {
	if _, ok := e.handler(name); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	now := e.now()
	run, err := e.storage.CreateRun(ctx, Run{
		ID:        uuid.NewString(),
		Workflow:  name,
		Payload:   raw,
		Status:    StatusPending,
		WakeAt:    now,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	e.logger.Info("Workflow run triggered", "workflow", name, "run_id", run.ID)
	return run.ID, nil
}

func (e *Engine) Get(ctx context.Context, runID string) (*RunView, error) {
	run, err := e.storage.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	steps, err := e.storage.ListSteps(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	return &RunView{Run: run, Steps: steps}, nil
}

// ResumeDue claims up to one batch of due runs and executes them with
// bounded concurrency. It returns the number of runs executed.
func (e *Engine) ResumeDue(ctx context.Context) (int, error) {
	now := e.now()
	due, err := e.storage.ListDueRuns(ctx, now, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due runs: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var (
		mu       sync.Mutex
		executed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, run := range due {
		runID := run.ID
		g.Go(func() error {
			// Runs queued behind the limit are claimed later than now.
			claimedAt := e.now()
			claimed, err := e.storage.ClaimRun(gctx, runID, claimedAt, claimedAt.Add(e.lease))
			if err != nil {
				e.logger.Error("Failed to claim workflow run", "run_id", runID, "error", err)
				return nil
			}
			if !claimed {
				return nil
			}
			if err := e.Execute(gctx, runID); err != nil {
				e.logger.Error("Workflow run execution failed", "run_id", runID, "error", err)
			}
			mu.Lock()
			executed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return executed, nil
}

// Execute invokes the run's handler once and records the outcome. The caller
// must hold the claim on the run. Handler failures are recorded on the run
// and are not returned; only bookkeeping failures are.
func (e *Engine) Execute(ctx context.Context, runID string) error {
	run, err := e.storage.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return ErrRunNotFound
	}
	if run.Status.Terminal() {
		return nil
	}

	logger := e.logger.With("workflow", run.Workflow, "run_id", run.ID)

	handler, ok := e.handler(run.Workflow)
	if !ok {
		return e.settle(ctx, logger, run, fmt.Errorf("%w: %s", ErrUnknownWorkflow, run.Workflow), true)
	}

	steps, err := e.storage.ListSteps(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}

	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.name", run.Workflow),
			attribute.String("workflow.run_id", run.ID),
			attribute.Int("workflow.attempts", run.Attempts),
		))
	defer span.End()

	herr := e.invoke(ctx, handler, newRunContext(e, run, steps))
	if herr != nil {
		var suspend *SuspendError
		if !errors.As(herr, &suspend) {
			span.RecordError(herr)
			span.SetStatus(codes.Error, herr.Error())
		}
	}

	return e.settle(ctx, logger, run, herr, false)
}

func (e *Engine) invoke(ctx context.Context, handler Handler, wc *runContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("workflow handler panic: %v", p)
		}
	}()
	return handler(ctx, wc)
}

func (e *Engine) settle(ctx context.Context, logger *slog.Logger, run *Run, herr error, permanent bool) error {
	now := e.now()
	run.UpdatedAt = now
	run.LeaseUntil = nil

	var suspend *SuspendError
	switch {
	case herr == nil:
		run.Status = StatusCompleted
		run.FinishedAt = &now
		run.LastError = nil
		e.metrics.invocation(run.Workflow, outcomeCompleted)
		logger.Info("Workflow run completed")

	case errors.As(herr, &suspend):
		run.Status = StatusSleeping
		run.WakeAt = suspend.Until.UTC()
		run.Attempts = 0
		e.metrics.invocation(run.Workflow, outcomeSuspended)
		logger.Info("Workflow run suspended", "label", suspend.Label, "wake_at", run.WakeAt)

	case ctx.Err() != nil:
		// Shutdown interrupted the invocation; hand the run back untouched.
		run.Status = StatusPending
		run.WakeAt = now
		e.metrics.invocation(run.Workflow, outcomeRequeued)
		logger.Warn("Workflow run interrupted", "error", herr)
		ctx = context.WithoutCancel(ctx)

	default:
		msg := herr.Error()
		run.LastError = &msg
		run.Attempts++
		if permanent || run.Attempts >= e.maxAttempts {
			run.Status = StatusFailed
			run.FinishedAt = &now
			e.metrics.invocation(run.Workflow, outcomeFailed)
			logger.Error("Workflow run failed", "attempts", run.Attempts, "error", herr)
		} else {
			run.Status = StatusPending
			run.WakeAt = now.Add(e.backoff(run.Attempts))
			e.metrics.invocation(run.Workflow, outcomeRetry)
			logger.Warn("Workflow run will be retried",
				"attempts", run.Attempts,
				"retry_at", run.WakeAt,
				"error", herr)
		}
	}

	if err := e.storage.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// backoff doubles the retry base for every failed attempt, capped at retryMax.
func (e *Engine) backoff(attempts int) time.Duration {
	d := e.retryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= e.retryMax {
			return e.retryMax
		}
	}
	if d > e.retryMax {
		return e.retryMax
	}
	return d
}
