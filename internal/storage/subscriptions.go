package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subtracker/internal/reminder"
	"subtracker/internal/stories/subs"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"
)

const subscriptionsTable = "subscriptions"

var subscriptionRowFields = fields(subscriptionRow{})

type subscriptionRow struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"`
	Name          string    `db:"name"`
	Price         float64   `db:"price"`
	Currency      string    `db:"currency"`
	Frequency     string    `db:"frequency"`
	Category      string    `db:"category"`
	PaymentMethod string    `db:"payment_method"`
	Status        string    `db:"status"`
	StartDate     time.Time `db:"start_date"`
	RenewalDate   time.Time `db:"renewal_date"`
	WorkflowRunID *string   `db:"workflow_run_id"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (s subscriptionRow) ToModel() *subs.Subscription {
	return &subs.Subscription{
		ID:            s.ID,
		UserID:        s.UserID,
		Name:          s.Name,
		Price:         s.Price,
		Currency:      subs.Currency(s.Currency),
		Frequency:     subs.Frequency(s.Frequency),
		Category:      subs.Category(s.Category),
		PaymentMethod: s.PaymentMethod,
		Status:        subs.Status(s.Status),
		StartDate:     s.StartDate,
		RenewalDate:   s.RenewalDate,
		WorkflowRunID: s.WorkflowRunID,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (s *storageImpl) CreateSubscription(ctx context.Context, subscription subs.Subscription) (*subs.Subscription, error) {
	now := s.now()

	params := map[string]interface{}{
		"user_id":         subscription.UserID,
		"name":            subscription.Name,
		"price":           subscription.Price,
		"currency":        string(subscription.Currency),
		"frequency":       string(subscription.Frequency),
		"category":        string(subscription.Category),
		"payment_method":  subscription.PaymentMethod,
		"status":          string(subscription.Status),
		"start_date":      subscription.StartDate.UTC(),
		"renewal_date":    subscription.RenewalDate.UTC(),
		"workflow_run_id": subscription.WorkflowRunID,
		"created_at":      now,
		"updated_at":      now,
	}

	q, args, err := s.stmpBuilder().
		Insert(subscriptionsTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("result.LastInsertId: %w", err)
	}

	return s.GetSubscription(ctx, subs.GetCriteria{IDs: []int64{id}})
}

func (s *storageImpl) GetSubscription(ctx context.Context, criteria subs.GetCriteria) (*subs.Subscription, error) {
	query := s.stmpBuilder().
		Select(subscriptionRowFields).
		From(subscriptionsTable).
		Limit(1)

	if len(criteria.IDs) > 0 {
		query = query.Where(sq.Eq{"id": criteria.IDs})
	}
	if len(criteria.UserIDs) > 0 {
		query = query.Where(sq.Eq{"user_id": criteria.UserIDs})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var sub subscriptionRow
	err = s.db.GetContext(ctx, &sub, q, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return sub.ToModel(), nil
}

// ListSubscriptions filters by criteria. RenewalAfter is exclusive,
// RenewalBefore is inclusive.
func (s *storageImpl) ListSubscriptions(ctx context.Context, criteria subs.ListCriteria) ([]*subs.Subscription, error) {
	query := s.stmpBuilder().
		Select(subscriptionRowFields).
		From(subscriptionsTable)

	if len(criteria.UserIDs) > 0 {
		query = query.Where(sq.Eq{"user_id": criteria.UserIDs})
	}
	if len(criteria.Status) > 0 {
		query = query.Where(sq.Eq{"status": lo.Map(criteria.Status, func(st subs.Status, _ int) string { return string(st) })})
	}
	if criteria.RenewalAfter != nil {
		query = query.Where(sq.Gt{"renewal_date": *utc(criteria.RenewalAfter)})
	}
	if criteria.RenewalBefore != nil {
		query = query.Where(sq.LtOrEq{"renewal_date": *utc(criteria.RenewalBefore)})
	}
	if criteria.WithoutRunOnly {
		// A run can exist without its id being recorded on the subscription.
		query = query.
			Where(sq.Eq{"workflow_run_id": nil}).
			Where(sq.Expr(
				"NOT EXISTS (SELECT 1 FROM "+workflowRunsTable+" r WHERE r.workflow = ? AND json_extract(r.payload, '$.subscriptionId') = "+subscriptionsTable+".id)",
				reminder.WorkflowName,
			))
	}

	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}
	if criteria.Offset > 0 {
		query = query.Offset(uint64(criteria.Offset))
	}

	query = query.OrderBy("renewal_date ASC", "id ASC")

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []subscriptionRow
	err = s.db.SelectContext(ctx, &rows, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	subscriptions := make([]*subs.Subscription, 0, len(rows))
	for _, row := range rows {
		subscriptions = append(subscriptions, row.ToModel())
	}

	return subscriptions, nil
}

func (s *storageImpl) UpdateSubscriptions(ctx context.Context, criteria subs.GetCriteria, params subs.UpdateParams) (int64, error) {
	if len(criteria.IDs) == 0 && len(criteria.UserIDs) == 0 {
		return 0, fmt.Errorf("update subscriptions: empty criteria")
	}

	query := s.stmpBuilder().
		Update(subscriptionsTable).
		Set("updated_at", s.now())

	if len(criteria.IDs) > 0 {
		query = query.Where(sq.Eq{"id": criteria.IDs})
	}
	if len(criteria.UserIDs) > 0 {
		query = query.Where(sq.Eq{"user_id": criteria.UserIDs})
	}

	if params.Status != nil {
		query = query.Set("status", string(*params.Status))
	}
	if params.WorkflowRunID != nil {
		query = query.Set("workflow_run_id", *params.WorkflowRunID)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("db.ExecContext: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("result.RowsAffected: %w", err)
	}
	return affected, nil
}

func (s *storageImpl) DeleteSubscription(ctx context.Context, criteria subs.GetCriteria) error {
	if len(criteria.IDs) == 0 && len(criteria.UserIDs) == 0 {
		return fmt.Errorf("delete subscription: empty criteria")
	}

	query := s.stmpBuilder().Delete(subscriptionsTable)

	if len(criteria.IDs) > 0 {
		query = query.Where(sq.Eq{"id": criteria.IDs})
	}
	if len(criteria.UserIDs) > 0 {
		query = query.Where(sq.Eq{"user_id": criteria.UserIDs})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("db.ExecContext: %w", err)
	}

	return nil
}
