package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"subtracker/internal/workflow"
)

const workflowStepsTable = "workflow_steps"

var workflowStepRowFields = fields(workflowStepRow{})

type workflowStepRow struct {
	RunID       string    `db:"run_id"`
	Label       string    `db:"label"`
	Kind        string    `db:"kind"`
	Result      *string   `db:"result"`
	CompletedAt time.Time `db:"completed_at"`
}

func (r workflowStepRow) ToModel() *workflow.Step {
	step := &workflow.Step{
		RunID:       r.RunID,
		Label:       r.Label,
		Kind:        workflow.StepKind(r.Kind),
		CompletedAt: r.CompletedAt,
	}
	if r.Result != nil {
		step.Result = []byte(*r.Result)
	}
	return step
}

// ListSteps returns the step log of a run in the order it was written.
func (s *storageImpl) ListSteps(ctx context.Context, runID string) ([]*workflow.Step, error) {
	q, args, err := s.stmpBuilder().
		Select(workflowStepRowFields).
		From(workflowStepsTable).
		Where(sq.Eq{"run_id": runID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []workflowStepRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	steps := make([]*workflow.Step, 0, len(rows))
	for _, row := range rows {
		steps = append(steps, row.ToModel())
	}
	return steps, nil
}

// SaveStep records a checkpoint. A label that is already recorded for the
// run is a conflict: the first record wins and ErrDuplicateLabel is returned.
func (s *storageImpl) SaveStep(ctx context.Context, step workflow.Step) error {
	var result *string
	if len(step.Result) > 0 {
		r := string(step.Result)
		result = &r
	}

	q, args, err := s.stmpBuilder().
		Insert(workflowStepsTable).
		SetMap(map[string]interface{}{
			"run_id":       step.RunID,
			"label":        step.Label,
			"kind":         string(step.Kind),
			"result":       result,
			"completed_at": step.CompletedAt.UTC(),
		}).
		Suffix("ON CONFLICT (run_id, label) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build sql query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("db.ExecContext: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("res.RowsAffected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", workflow.ErrDuplicateLabel, step.Label)
	}
	return nil
}
