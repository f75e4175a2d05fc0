package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu    sync.Mutex
	runs  map[string]*Run
	steps map[string][]*Step
	// last lease granted per run
	leases map[string]time.Time
}

func newMemStorage() *memStorage {
	return &memStorage{
		runs:   make(map[string]*Run),
		steps:  make(map[string][]*Step),
		leases: make(map[string]time.Time),
	}
}

func (m *memStorage) CreateRun(_ context.Context, run Run) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := run
	m.runs[run.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStorage) GetRun(_ context.Context, runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (m *memStorage) SaveRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memStorage) ListDueRuns(_ context.Context, now time.Time, limit int) ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*Run
	for _, run := range m.runs {
		if isDue(run, now) {
			cp := *run
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].WakeAt.Before(due[j].WakeAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memStorage) ClaimRun(_ context.Context, runID string, now, leaseUntil time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || !isDue(run, now) {
		return false, nil
	}
	run.Status = StatusRunning
	run.LeaseUntil = &leaseUntil
	m.leases[runID] = leaseUntil
	return true, nil
}

func (m *memStorage) ListSteps(_ context.Context, runID string) ([]*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Step, 0, len(m.steps[runID]))
	for _, st := range m.steps[runID] {
		cp := *st
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStorage) SaveStep(_ context.Context, step Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.steps[step.RunID] {
		if st.Label == step.Label {
			return errors.New("duplicate step")
		}
	}
	cp := step
	m.steps[step.RunID] = append(m.steps[step.RunID], &cp)
	return nil
}

func isDue(run *Run, now time.Time) bool {
	switch run.Status {
	case StatusPending, StatusSleeping:
		return !run.WakeAt.After(now)
	case StatusRunning:
		return run.LeaseUntil != nil && !run.LeaseUntil.After(now)
	default:
		return false
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memStorage, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	storage := newMemStorage()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewEngine(storage, logger, opts...), storage, clock
}

func TestEngine_LeaseStartsAtClaimTime(t *testing.T) {
	engine, storage, clock := newTestEngine(t, WithLease(time.Minute), WithBatch(10, 1))
	engine.Register("slow", func(context.Context, Context) error {
		clock.Advance(5 * time.Minute)
		return nil
	})

	ctx := context.Background()
	first, err := engine.Trigger(ctx, "slow", nil)
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := engine.Trigger(ctx, "slow", nil)
	require.NoError(t, err)
	start := clock.Now()

	n, err := engine.ResumeDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.True(t, storage.leases[first].Equal(start.Add(time.Minute)))
	assert.True(t, storage.leases[second].Equal(start.Add(5*time.Minute+time.Minute)),
		"second run waited for the first one and must get a fresh lease, got %s", storage.leases[second])
}

func TestEngine_ReplaysStepsAcrossSuspension(t *testing.T) {
	engine, storage, clock := newTestEngine(t)

	var calls int
	wakeAt := clock.Now().Add(48 * time.Hour)
	engine.Register("greet", func(ctx context.Context, wc Context) error {
		var payload struct {
			Name string `json:"name"`
		}
		if err := wc.Payload(&payload); err != nil {
			return err
		}

		greeting, err := RunStep(ctx, wc, "build greeting", func(context.Context) (string, error) {
			calls++
			return "hello " + payload.Name, nil
		})
		if err != nil {
			return err
		}
		if greeting != "hello ann" {
			return errors.New("unexpected greeting " + greeting)
		}

		return wc.SleepUntil(ctx, "wait two days", wakeAt)
	})

	ctx := context.Background()
	runID, err := engine.Trigger(ctx, "greet", map[string]string{"name": "ann"})
	require.NoError(t, err)

	n, err := engine.ResumeDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	run, err := storage.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusSleeping, run.Status)
	assert.True(t, run.WakeAt.Equal(wakeAt))
	assert.Equal(t, 1, calls)

	n, err = engine.ResumeDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sleeping run must not resume early")

	clock.Advance(48 * time.Hour)
	n, err = engine.ResumeDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	view, err := engine.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, view.Run.Status)
	assert.Equal(t, 1, calls, "recorded step must not run again")
	require.Len(t, view.Steps, 2)
	assert.Equal(t, StepKindStep, view.Steps[0].Kind)
	assert.Equal(t, StepKindSleep, view.Steps[1].Kind)
}

func TestEngine_RetriesFailedStepWithBackoff(t *testing.T) {
	engine, storage, clock := newTestEngine(t,
		WithMaxAttempts(3),
		WithRetryBackoff(10*time.Second, time.Minute))

	failures := 2
	var attempts int
	engine.Register("flaky", func(ctx context.Context, wc Context) error {
		return wc.Run(ctx, "call", func(context.Context) (any, error) {
			attempts++
			if attempts <= failures {
				return nil, errors.New("smtp unavailable")
			}
			return true, nil
		}, nil)
	})

	ctx := context.Background()
	runID, err := engine.Trigger(ctx, "flaky", struct{}{})
	require.NoError(t, err)

	_, err = engine.ResumeDue(ctx)
	require.NoError(t, err)
	run, _ := storage.GetRun(ctx, runID)
	assert.Equal(t, StatusPending, run.Status)
	assert.Equal(t, 1, run.Attempts)
	require.NotNil(t, run.LastError)
	assert.Contains(t, *run.LastError, "smtp unavailable")
	assert.Equal(t, clock.Now().Add(10*time.Second), run.WakeAt)

	clock.Advance(10 * time.Second)
	_, err = engine.ResumeDue(ctx)
	require.NoError(t, err)
	run, _ = storage.GetRun(ctx, runID)
	assert.Equal(t, 2, run.Attempts)
	assert.Equal(t, clock.Now().Add(20*time.Second), run.WakeAt)

	clock.Advance(20 * time.Second)
	_, err = engine.ResumeDue(ctx)
	require.NoError(t, err)
	run, _ = storage.GetRun(ctx, runID)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Nil(t, run.LastError)
}

func TestEngine_FailsAfterMaxAttempts(t *testing.T) {
	engine, storage, clock := newTestEngine(t, WithMaxAttempts(2), WithRetryBackoff(time.Second, time.Second))

	engine.Register("broken", func(ctx context.Context, wc Context) error {
		return errors.New("boom")
	})

	ctx := context.Background()
	runID, err := engine.Trigger(ctx, "broken", nil)
	require.NoError(t, err)

	_, _ = engine.ResumeDue(ctx)
	clock.Advance(time.Second)
	_, _ = engine.ResumeDue(ctx)

	run, _ := storage.GetRun(ctx, runID)
	assert.Equal(t, StatusFailed, run.Status)
	assert.NotNil(t, run.FinishedAt)

	clock.Advance(time.Hour)
	n, err := engine.ResumeDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_PanicIsRecordedAsFailure(t *testing.T) {
	engine, storage, _ := newTestEngine(t, WithMaxAttempts(1))

	engine.Register("panics", func(ctx context.Context, wc Context) error {
		panic("nil map")
	})

	ctx := context.Background()
	runID, err := engine.Trigger(ctx, "panics", nil)
	require.NoError(t, err)
	require.NoError(t, engine.Execute(ctx, runID))

	run, _ := storage.GetRun(ctx, runID)
	assert.Equal(t, StatusFailed, run.Status)
	require.NotNil(t, run.LastError)
	assert.Contains(t, *run.LastError, "panic")
}

func TestEngine_TriggerUnknownWorkflow(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Trigger(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestEngine_GetUnknownRun(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunContext_DuplicateLabel(t *testing.T) {
	engine, storage, _ := newTestEngine(t, WithMaxAttempts(1))

	engine.Register("dup", func(ctx context.Context, wc Context) error {
		if err := wc.Run(ctx, "same", func(context.Context) (any, error) { return 1, nil }, nil); err != nil {
			return err
		}
		return wc.Run(ctx, "same", func(context.Context) (any, error) { return 2, nil }, nil)
	})

	ctx := context.Background()
	runID, err := engine.Trigger(ctx, "dup", nil)
	require.NoError(t, err)
	require.NoError(t, engine.Execute(ctx, runID))

	run, _ := storage.GetRun(ctx, runID)
	assert.Equal(t, StatusFailed, run.Status)
	require.NotNil(t, run.LastError)
	assert.Contains(t, *run.LastError, ErrDuplicateLabel.Error())
}

func TestRunContext_SleepInThePastDoesNotSuspend(t *testing.T) {
	engine, storage, clock := newTestEngine(t)

	engine.Register("late", func(ctx context.Context, wc Context) error {
		return wc.SleepUntil(ctx, "already due", clock.Now().Add(-time.Minute))
	})

	ctx := context.Background()
	runID, err := engine.Trigger(ctx, "late", nil)
	require.NoError(t, err)
	require.NoError(t, engine.Execute(ctx, runID))

	run, _ := storage.GetRun(ctx, runID)
	assert.Equal(t, StatusCompleted, run.Status)
}

func TestEngine_ClaimedRunIsNotExecutedTwice(t *testing.T) {
	engine, storage, clock := newTestEngine(t)

	var calls int
	engine.Register("once", func(ctx context.Context, wc Context) error {
		calls++
		return nil
	})

	ctx := context.Background()
	runID, err := engine.Trigger(ctx, "once", nil)
	require.NoError(t, err)

	claimed, err := storage.ClaimRun(ctx, runID, clock.Now(), clock.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	n, err := engine.ResumeDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, calls)

	clock.Advance(2 * time.Minute)
	n, err = engine.ResumeDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "expired lease makes the run claimable again")
	assert.Equal(t, 1, calls)
}

func TestEngine_Backoff(t *testing.T) {
	engine, _, _ := newTestEngine(t, WithRetryBackoff(30*time.Second, 3*time.Minute))

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 1, want: 30 * time.Second},
		{attempts: 2, want: time.Minute},
		{attempts: 3, want: 2 * time.Minute},
		{attempts: 4, want: 3 * time.Minute},
		{attempts: 10, want: 3 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, engine.backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}
