package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtracker/internal/stories/subs"
	"subtracker/internal/stories/users"
	"subtracker/internal/workflow"
)

// fakeRun is a minimal step log: recorded labels are replayed, sleeps in the
// future suspend.
type fakeRun struct {
	id       string
	payload  json.RawMessage
	now      func() time.Time
	results  map[string]json.RawMessage
	slept    map[string]bool
	suspends []time.Time
}

func newFakeRun(t *testing.T, subscriptionID int64, now func() time.Time) *fakeRun {
	t.Helper()
	raw, err := json.Marshal(Payload{SubscriptionID: subscriptionID})
	require.NoError(t, err)
	return &fakeRun{
		id:      "run-1",
		payload: raw,
		now:     now,
		results: make(map[string]json.RawMessage),
		slept:   make(map[string]bool),
	}
}

func (r *fakeRun) RunID() string { return r.id }

func (r *fakeRun) Payload(v any) error { return json.Unmarshal(r.payload, v) }

func (r *fakeRun) Run(ctx context.Context, label string, fn workflow.StepFunc, out any) error {
	raw, ok := r.results[label]
	if !ok {
		value, err := fn(ctx)
		if err != nil {
			return &workflow.StepError{Label: label, Err: err}
		}
		if raw, err = json.Marshal(value); err != nil {
			return err
		}
		r.results[label] = raw
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (r *fakeRun) SleepUntil(_ context.Context, label string, until time.Time) error {
	if r.slept[label] {
		return nil
	}
	if r.now().Before(until) {
		r.suspends = append(r.suspends, until)
		return &workflow.SuspendError{Label: label, Until: until}
	}
	r.slept[label] = true
	return nil
}

type fakeStore struct {
	subscription *subs.Subscription
	user         *users.User
	err          error
	gets         int
}

func (f *fakeStore) GetSubscription(context.Context, subs.GetCriteria) (*subs.Subscription, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	if f.subscription == nil {
		return nil, nil
	}
	cp := *f.subscription
	return &cp, nil
}

func (f *fakeStore) GetUser(context.Context, users.GetCriteria) (*users.User, error) {
	return f.user, nil
}

type sentReminder struct {
	to        string
	milestone Milestone
}

type fakeNotifier struct {
	sent     []sentReminder
	failures int
}

func (f *fakeNotifier) SendReminder(_ context.Context, to string, milestone Milestone, _ Snapshot) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, sentReminder{to: to, milestone: milestone})
	return nil
}

func (f *fakeNotifier) milestones() []Milestone {
	out := make([]Milestone, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.milestone)
	}
	return out
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestScheduler(store *fakeStore, notifier *fakeNotifier, c *clock, opts ...Option) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(store, store, notifier, nil, c.Now, logger, opts...)
}

func activeSubscription(renewal time.Time) *subs.Subscription {
	return &subs.Subscription{
		ID:            42,
		UserID:        7,
		Name:          "Spotify",
		Price:         9.99,
		Currency:      subs.CurrencyUSD,
		Frequency:     subs.FrequencyMonthly,
		PaymentMethod: "card",
		Status:        subs.StatusActive,
		RenewalDate:   renewal,
	}
}

func owner() *users.User {
	return &users.User{ID: 7, Name: "Ann", Email: "ann@example.com"}
}

func TestHandle_SkipsWithoutSending(t *testing.T) {
	tests := []struct {
		name         string
		subscription *subs.Subscription
		user         *users.User
	}{
		{
			name:         "subscription not found",
			subscription: nil,
			user:         owner(),
		},
		{
			name: "cancelled subscription",
			subscription: func() *subs.Subscription {
				s := activeSubscription(testNow.AddDate(0, 0, 1))
				s.Status = subs.StatusCancelled
				return s
			}(),
			user: owner(),
		},
		{
			name: "expired subscription",
			subscription: func() *subs.Subscription {
				s := activeSubscription(testNow.AddDate(0, 0, 3))
				s.Status = subs.StatusExpired
				return s
			}(),
			user: owner(),
		},
		{
			name:         "renewal already passed",
			subscription: activeSubscription(testNow.Add(-time.Minute)),
			user:         owner(),
		},
		{
			name:         "owner deleted",
			subscription: activeSubscription(testNow.AddDate(0, 0, 1)),
			user:         nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{now: testNow}
			store := &fakeStore{subscription: tt.subscription, user: tt.user}
			notifier := &fakeNotifier{}
			run := newFakeRun(t, 42, c.Now)

			err := newTestScheduler(store, notifier, c).Handle(context.Background(), run)

			require.NoError(t, err)
			assert.Empty(t, notifier.sent)
			assert.Empty(t, run.suspends)
		})
	}
}

func TestHandle_FarRenewalSuspendsBeforeFirstReminder(t *testing.T) {
	c := &clock{now: testNow}
	renewal := testNow.AddDate(0, 0, 10)
	store := &fakeStore{subscription: activeSubscription(renewal), user: owner()}
	notifier := &fakeNotifier{}
	run := newFakeRun(t, 42, c.Now)

	err := newTestScheduler(store, notifier, c).Handle(context.Background(), run)

	var suspend *workflow.SuspendError
	require.ErrorAs(t, err, &suspend)
	assert.Equal(t, SevenDaysBefore.SleepLabel(), suspend.Label)
	assert.True(t, suspend.Until.Equal(renewal.AddDate(0, 0, -7)))
	assert.Len(t, run.suspends, 1)
	assert.Empty(t, notifier.sent)
}

func TestHandle_WakeDriftSkipsMilestone(t *testing.T) {
	c := &clock{now: testNow}
	renewal := testNow.AddDate(0, 0, 10)
	store := &fakeStore{subscription: activeSubscription(renewal), user: owner()}
	notifier := &fakeNotifier{}
	run := newFakeRun(t, 42, c.Now)
	// The 7-day sleep is already recorded, but the clock is three days short of it.
	run.slept[SevenDaysBefore.SleepLabel()] = true

	err := newTestScheduler(store, notifier, c).Handle(context.Background(), run)

	var suspend *workflow.SuspendError
	require.ErrorAs(t, err, &suspend)
	assert.Equal(t, FiveDaysBefore.SleepLabel(), suspend.Label)
	assert.True(t, suspend.Until.Equal(renewal.AddDate(0, 0, -5)))
	assert.Empty(t, notifier.sent)
	assert.NotContains(t, run.results, SevenDaysBefore.StepLabel())
}

func TestHandle_RenewalTomorrowSendsAllInOrder(t *testing.T) {
	c := &clock{now: testNow}
	store := &fakeStore{subscription: activeSubscription(testNow.AddDate(0, 0, 1)), user: owner()}
	notifier := &fakeNotifier{}
	run := newFakeRun(t, 42, c.Now)

	err := newTestScheduler(store, notifier, c).Handle(context.Background(), run)

	require.NoError(t, err)
	assert.Empty(t, run.suspends)
	assert.Equal(t, []Milestone{SevenDaysBefore, FiveDaysBefore, TwoDaysBefore, OneDayBefore}, notifier.milestones())
	for _, s := range notifier.sent {
		assert.Equal(t, "ann@example.com", s.to)
	}
}

func TestHandle_ReminderDateTodayIsDue(t *testing.T) {
	c := &clock{now: testNow}
	renewal := testNow.AddDate(0, 0, 5)
	store := &fakeStore{subscription: activeSubscription(renewal), user: owner()}
	notifier := &fakeNotifier{}
	run := newFakeRun(t, 42, c.Now)

	err := newTestScheduler(store, notifier, c).Handle(context.Background(), run)

	var suspend *workflow.SuspendError
	require.ErrorAs(t, err, &suspend)
	assert.Equal(t, TwoDaysBefore.SleepLabel(), suspend.Label)
	assert.Equal(t, []Milestone{SevenDaysBefore, FiveDaysBefore}, notifier.milestones())
}

func TestHandle_LaterTheSameDayIsDue(t *testing.T) {
	c := &clock{now: testNow}
	// 1 day + 5h ahead: the one-day reminder falls later today.
	renewal := testNow.Add(29 * time.Hour)
	store := &fakeStore{subscription: activeSubscription(renewal), user: owner()}
	notifier := &fakeNotifier{}
	run := newFakeRun(t, 42, c.Now)

	err := newTestScheduler(store, notifier, c).Handle(context.Background(), run)

	require.NoError(t, err)
	assert.Len(t, notifier.sent, 4)
}

func TestHandle_ResumptionDoesNotResend(t *testing.T) {
	c := &clock{now: testNow}
	renewal := testNow.AddDate(0, 0, 6)
	store := &fakeStore{subscription: activeSubscription(renewal), user: owner()}
	notifier := &fakeNotifier{}
	run := newFakeRun(t, 42, c.Now)
	scheduler := newTestScheduler(store, notifier, c)
	ctx := context.Background()

	// 7 days before is already past, 5 days before is tomorrow.
	err := scheduler.Handle(ctx, run)
	var suspend *workflow.SuspendError
	require.ErrorAs(t, err, &suspend)
	assert.Equal(t, []Milestone{SevenDaysBefore}, notifier.milestones())

	c.now = suspend.Until
	err = scheduler.Handle(ctx, run)
	require.ErrorAs(t, err, &suspend)
	assert.Equal(t, TwoDaysBefore.SleepLabel(), suspend.Label)
	assert.Equal(t, []Milestone{SevenDaysBefore, FiveDaysBefore}, notifier.milestones())

	c.now = suspend.Until
	err = scheduler.Handle(ctx, run)
	require.ErrorAs(t, err, &suspend)
	assert.Equal(t, OneDayBefore.SleepLabel(), suspend.Label)

	c.now = suspend.Until
	require.NoError(t, scheduler.Handle(ctx, run))
	assert.Equal(t, []Milestone{SevenDaysBefore, FiveDaysBefore, TwoDaysBefore, OneDayBefore}, notifier.milestones())
	assert.Equal(t, 1, store.gets, "subscription fetch is replayed from the step log")

	require.NoError(t, scheduler.Handle(ctx, run))
	assert.Len(t, notifier.sent, 4, "replaying a finished run sends nothing")
}

func TestHandle_NotifierFailurePropagates(t *testing.T) {
	c := &clock{now: testNow}
	store := &fakeStore{subscription: activeSubscription(testNow.AddDate(0, 0, 1)), user: owner()}
	notifier := &fakeNotifier{failures: 1}
	run := newFakeRun(t, 42, c.Now)
	scheduler := newTestScheduler(store, notifier, c)

	err := scheduler.Handle(context.Background(), run)
	var stepErr *workflow.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, SevenDaysBefore.StepLabel(), stepErr.Label)
	assert.Empty(t, notifier.sent)

	require.NoError(t, scheduler.Handle(context.Background(), run))
	assert.Equal(t, []Milestone{SevenDaysBefore, FiveDaysBefore, TwoDaysBefore, OneDayBefore}, notifier.milestones())
}

func TestHandle_StoreFailurePropagates(t *testing.T) {
	c := &clock{now: testNow}
	store := &fakeStore{err: errors.New("database is locked")}
	notifier := &fakeNotifier{}
	run := newFakeRun(t, 42, c.Now)

	err := newTestScheduler(store, notifier, c).Handle(context.Background(), run)

	var stepErr *workflow.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, fetchStepLabel, stepErr.Label)
}

func TestHandle_CancellationBetweenMilestones(t *testing.T) {
	tests := []struct {
		name    string
		recheck bool
		want    []Milestone
	}{
		{
			name:    "status checked once",
			recheck: false,
			want:    []Milestone{SevenDaysBefore, FiveDaysBefore},
		},
		{
			name:    "status rechecked before each send",
			recheck: true,
			want:    []Milestone{SevenDaysBefore},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{now: testNow}
			store := &fakeStore{subscription: activeSubscription(testNow.AddDate(0, 0, 6)), user: owner()}
			notifier := &fakeNotifier{}
			run := newFakeRun(t, 42, c.Now)
			scheduler := newTestScheduler(store, notifier, c, WithStatusRecheck(tt.recheck))
			ctx := context.Background()

			err := scheduler.Handle(ctx, run)
			var suspend *workflow.SuspendError
			require.ErrorAs(t, err, &suspend)

			store.subscription.Status = subs.StatusCancelled
			c.now = suspend.Until
			_ = scheduler.Handle(ctx, run)

			assert.Equal(t, tt.want, notifier.milestones())
		})
	}
}

func TestHandle_DueCheckUsesConfiguredTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 23:30 in New York on March 9th.
	c := &clock{now: time.Date(2025, 3, 10, 3, 30, 0, 0, time.UTC)}
	// Renewal on March 12th 10:00 New York time, so the two-day reminder is
	// March 10th there: tomorrow, not today.
	renewal := time.Date(2025, 3, 12, 10, 0, 0, 0, loc)
	store := &fakeStore{subscription: activeSubscription(renewal), user: owner()}

	notifier := &fakeNotifier{}
	run := newFakeRun(t, 42, c.Now)
	err = newTestScheduler(store, notifier, c, WithLocation(loc)).Handle(context.Background(), run)
	var suspend *workflow.SuspendError
	require.ErrorAs(t, err, &suspend)
	assert.Equal(t, TwoDaysBefore.SleepLabel(), suspend.Label)

	notifier = &fakeNotifier{}
	run = newFakeRun(t, 42, c.Now)
	err = newTestScheduler(store, notifier, c).Handle(context.Background(), run)
	require.ErrorAs(t, err, &suspend)
	assert.Equal(t, OneDayBefore.SleepLabel(), suspend.Label, "in UTC the two-day reminder is already due")
}

func TestStart_TriggersReminderWorkflow(t *testing.T) {
	trig := &fakeTrigger{runID: "run-9"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := NewScheduler(&fakeStore{}, &fakeStore{}, &fakeNotifier{}, trig, time.Now, logger)

	runID, err := scheduler.Start(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "run-9", runID)
	assert.Equal(t, WorkflowName, trig.name)
	assert.Equal(t, Payload{SubscriptionID: 42}, trig.payload)

	trig.err = errors.New("db down")
	_, err = scheduler.Start(context.Background(), 42)
	assert.Error(t, err)
}

type fakeTrigger struct {
	runID   string
	err     error
	name    string
	payload any
}

func (f *fakeTrigger) Trigger(_ context.Context, name string, payload any) (string, error) {
	f.name = name
	f.payload = payload
	return f.runID, f.err
}

func TestMilestone_Labels(t *testing.T) {
	assert.Equal(t, "7 days before reminder", SevenDaysBefore.StepLabel())
	assert.Equal(t, "Reminder 1 days before", OneDayBefore.SleepLabel())
	assert.True(t, TwoDaysBefore.Valid())
	assert.False(t, Milestone(3).Valid())
}
