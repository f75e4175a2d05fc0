package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"subtracker/internal/infra/sqlite3"
	"subtracker/internal/stories/subs"
)

// ImportSubscriptions inserts all subscriptions in one transaction. Nothing
// is written when any row fails.
func (s *storageImpl) ImportSubscriptions(ctx context.Context, list []subs.Subscription) (int, error) {
	if len(list) == 0 {
		return 0, nil
	}

	now := s.now()
	inTx := sqlite3.WithTx(s.db, nil)

	err := inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		for i, sub := range list {
			q, args, err := s.stmpBuilder().
				Insert(subscriptionsTable).
				SetMap(map[string]interface{}{
					"user_id":        sub.UserID,
					"name":           sub.Name,
					"price":          sub.Price,
					"currency":       string(sub.Currency),
					"frequency":      string(sub.Frequency),
					"category":       string(sub.Category),
					"payment_method": sub.PaymentMethod,
					"status":         string(sub.Status),
					"start_date":     sub.StartDate.UTC(),
					"renewal_date":   sub.RenewalDate.UTC(),
					"created_at":     now,
					"updated_at":     now,
				}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build sql query: %w", err)
			}

			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("insert row %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(list), nil
}
