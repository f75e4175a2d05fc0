package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"subtracker/internal/workflow"
)

const workflowRunsTable = "workflow_runs"

var workflowRunRowFields = fields(workflowRunRow{})

type workflowRunRow struct {
	ID         string     `db:"id"`
	Workflow   string     `db:"workflow"`
	Payload    string     `db:"payload"`
	Status     string     `db:"status"`
	WakeAt     time.Time  `db:"wake_at"`
	LeaseUntil *time.Time `db:"lease_until"`
	Attempts   int        `db:"attempts"`
	LastError  *string    `db:"last_error"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

func (r workflowRunRow) ToModel() *workflow.Run {
	return &workflow.Run{
		ID:         r.ID,
		Workflow:   r.Workflow,
		Payload:    []byte(r.Payload),
		Status:     workflow.Status(r.Status),
		WakeAt:     r.WakeAt,
		LeaseUntil: r.LeaseUntil,
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		FinishedAt: r.FinishedAt,
	}
}

// dueRuns matches pending or sleeping runs whose wake time has come, and
// running runs whose lease expired.
func dueRuns(now time.Time) sq.Sqlizer {
	return sq.Or{
		sq.And{
			sq.Eq{"status": []string{string(workflow.StatusPending), string(workflow.StatusSleeping)}},
			sq.LtOrEq{"wake_at": now},
		},
		sq.And{
			sq.Eq{"status": string(workflow.StatusRunning)},
			sq.LtOrEq{"lease_until": now},
		},
	}
}

func (s *storageImpl) CreateRun(ctx context.Context, run workflow.Run) (*workflow.Run, error) {
	params := map[string]interface{}{
		"id":          run.ID,
		"workflow":    run.Workflow,
		"payload":     string(run.Payload),
		"status":      string(run.Status),
		"wake_at":     run.WakeAt.UTC(),
		"lease_until": utc(run.LeaseUntil),
		"attempts":    run.Attempts,
		"last_error":  run.LastError,
		"created_at":  run.CreatedAt.UTC(),
		"updated_at":  run.UpdatedAt.UTC(),
		"finished_at": utc(run.FinishedAt),
	}

	q, args, err := s.stmpBuilder().
		Insert(workflowRunsTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetRun(ctx, run.ID)
}

func (s *storageImpl) GetRun(ctx context.Context, runID string) (*workflow.Run, error) {
	q, args, err := s.stmpBuilder().
		Select(workflowRunRowFields).
		From(workflowRunsTable).
		Where(sq.Eq{"id": runID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row workflowRunRow
	err = s.db.GetContext(ctx, &row, q, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return row.ToModel(), nil
}

func (s *storageImpl) SaveRun(ctx context.Context, run *workflow.Run) error {
	q, args, err := s.stmpBuilder().
		Update(workflowRunsTable).
		SetMap(map[string]interface{}{
			"status":      string(run.Status),
			"wake_at":     run.WakeAt.UTC(),
			"lease_until": utc(run.LeaseUntil),
			"attempts":    run.Attempts,
			"last_error":  run.LastError,
			"updated_at":  run.UpdatedAt.UTC(),
			"finished_at": utc(run.FinishedAt),
		}).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("db.ExecContext: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("result.RowsAffected: %w", err)
	}
	if affected == 0 {
		return workflow.ErrRunNotFound
	}
	return nil
}

func (s *storageImpl) ListDueRuns(ctx context.Context, now time.Time, limit int) ([]*workflow.Run, error) {
	query := s.stmpBuilder().
		Select(workflowRunRowFields).
		From(workflowRunsTable).
		Where(dueRuns(now.UTC())).
		OrderBy("wake_at ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []workflowRunRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	runs := make([]*workflow.Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.ToModel())
	}
	return runs, nil
}

// ClaimRun is a compare-and-set on the due condition, so two pollers cannot
// both win the same run.
func (s *storageImpl) ClaimRun(ctx context.Context, runID string, now, leaseUntil time.Time) (bool, error) {
	q, args, err := s.stmpBuilder().
		Update(workflowRunsTable).
		Set("status", string(workflow.StatusRunning)).
		Set("lease_until", leaseUntil.UTC()).
		Set("updated_at", now.UTC()).
		Where(sq.Eq{"id": runID}).
		Where(dueRuns(now.UTC())).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("db.ExecContext: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("result.RowsAffected: %w", err)
	}
	return affected == 1, nil
}
