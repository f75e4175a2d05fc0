package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtracker/internal/reminder"
	"subtracker/internal/stories/subs"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, htmlBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func snapshot() reminder.Snapshot {
	return reminder.Snapshot{
		SubscriptionID: 42,
		Name:           "Netflix <Premium>",
		Price:          15.99,
		Currency:       subs.CurrencyEUR,
		Frequency:      subs.FrequencyMonthly,
		PaymentMethod:  "Visa",
		Status:         subs.StatusActive,
		RenewalDate:    now.AddDate(0, 0, 7),
		UserName:       "Ann",
		UserEmail:      "ann@example.com",
	}
}

func newTestService(t *testing.T, sender sender, reg prometheus.Registerer) *Service {
	t.Helper()
	catalogue, err := LoadCatalogue()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	links := Links{AccountSettings: "https://app.example.com/settings", Support: "https://app.example.com/support"}
	return NewService(sender, catalogue, links, time.UTC, func() time.Time { return now }, NewMetrics(reg), logger)
}

func TestTemplateFor_CoversEveryMilestone(t *testing.T) {
	seen := make(map[TemplateID]bool)
	for _, m := range reminder.Milestones {
		id, err := TemplateFor(m)
		require.NoError(t, err)
		assert.False(t, seen[id], "template %s used twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, len(templateIDs))

	_, err := TemplateFor(reminder.Milestone(3))
	assert.Error(t, err)
}

func TestService_SendReminder(t *testing.T) {
	tests := []struct {
		milestone   reminder.Milestone
		wantSubject string
	}{
		{reminder.SevenDaysBefore, "📅 Reminder: Your Netflix <Premium> Subscription Renews in 7 Days!"},
		{reminder.FiveDaysBefore, "⏳ Netflix <Premium> Renews in 5 Days – Stay Subscribed!"},
		{reminder.TwoDaysBefore, "🚀 2 Days Left! Netflix <Premium> Subscription Renewal"},
		{reminder.OneDayBefore, "⚡ Final Reminder: Netflix <Premium> Renews Tomorrow!"},
	}

	for _, tt := range tests {
		t.Run(tt.milestone.String(), func(t *testing.T) {
			sender := &fakeSender{}
			svc := newTestService(t, sender, nil)

			err := svc.SendReminder(context.Background(), " ann@example.com ", tt.milestone, snapshot())
			require.NoError(t, err)
			require.Len(t, sender.sent, 1)

			got := sender.sent[0]
			assert.Equal(t, "ann@example.com", got.to)
			assert.Equal(t, tt.wantSubject, got.subject)
			assert.Contains(t, got.body, "Netflix &lt;Premium&gt;")
			assert.NotContains(t, got.body, "<Premium>")
			assert.Contains(t, got.body, "Mar 17, 2025")
			assert.Contains(t, got.body, "€15.99 (monthly)")
			assert.Contains(t, got.body, "https://app.example.com/settings")
			assert.Contains(t, got.body, "<strong>")
		})
	}
}

func TestService_SendReminderFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	sender := &fakeSender{err: errors.New("535 authentication failed")}
	svc := newTestService(t, sender, reg)

	err := svc.SendReminder(context.Background(), "ann@example.com", reminder.TwoDaysBefore, snapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535 authentication failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.reminders.WithLabelValues(string(TemplateReminder2Days), resultFailed)))

	err = svc.SendReminder(context.Background(), "  ", reminder.TwoDaysBefore, snapshot())
	assert.ErrorIs(t, err, ErrMissingRecipient)
}

func TestNewMailInfo(t *testing.T) {
	snap := snapshot()
	snap.UserName = ""
	snap.RenewalDate = now.Add(36 * time.Hour)

	info := newMailInfo(snap, now, time.UTC, Links{})
	assert.Equal(t, "User", info.UserName)
	assert.Equal(t, 1, info.DaysLeft)
	assert.Equal(t, "Mar 11, 2025", info.RenewalDate)

	snap.RenewalDate = now.Add(-time.Hour)
	assert.Zero(t, newMailInfo(snap, now, time.UTC, Links{}).DaysLeft)
}
