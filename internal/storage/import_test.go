package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtracker/internal/stories/subs"
)

func importRow(userID int64, name string) subs.Subscription {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return subs.Subscription{
		UserID:        userID,
		Name:          name,
		Price:         9.99,
		Currency:      subs.CurrencyEUR,
		Frequency:     subs.FrequencyMonthly,
		Category:      subs.CategoryOther,
		PaymentMethod: "Card",
		Status:        subs.StatusActive,
		StartDate:     start,
		RenewalDate:   start.AddDate(0, 0, 30),
	}
}

func TestImportSubscriptions(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts all rows", func(t *testing.T) {
		s := newTestStorage(t)
		u := createTestUser(t, s, "import@example.com")

		n, err := s.ImportSubscriptions(ctx, []subs.Subscription{importRow(u.ID, "A"), importRow(u.ID, "B")})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		list, err := s.ListSubscriptions(ctx, subs.ListCriteria{UserIDs: []int64{u.ID}})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		s := newTestStorage(t)
		u := createTestUser(t, s, "rollback@example.com")
		_, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON")
		require.NoError(t, err)

		_, err = s.ImportSubscriptions(ctx, []subs.Subscription{importRow(u.ID, "A"), importRow(u.ID+100, "B")})
		require.Error(t, err)

		list, err := s.ListSubscriptions(ctx, subs.ListCriteria{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("empty input", func(t *testing.T) {
		s := newTestStorage(t)

		n, err := s.ImportSubscriptions(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
