package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type runContext struct {
	engine *Engine
	run    *Run
	steps  map[string]*Step
	seen   map[string]struct{}
}

func newRunContext(engine *Engine, run *Run, steps []*Step) *runContext {
	recorded := make(map[string]*Step, len(steps))
	for _, st := range steps {
		recorded[st.Label] = st
	}
	return &runContext{
		engine: engine,
		run:    run,
		steps:  recorded,
		seen:   make(map[string]struct{}),
	}
}

func (c *runContext) RunID() string {
	return c.run.ID
}

func (c *runContext) Payload(v any) error {
	if len(c.run.Payload) == 0 {
		return fmt.Errorf("run %s has no payload", c.run.ID)
	}
	if err := json.Unmarshal(c.run.Payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func (c *runContext) Run(ctx context.Context, label string, fn StepFunc, out any) error {
	if err := c.enter(label); err != nil {
		return err
	}

	if st, ok := c.steps[label]; ok {
		if st.Kind != StepKindStep {
			return fmt.Errorf("%w: %q", ErrStepKindChanged, label)
		}
		c.engine.metrics.stepReplayed(c.run.Workflow)
		return decodeResult(st.Result, out)
	}

	ctx, span := c.engine.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.run_id", c.run.ID),
			attribute.String("workflow.step", label),
		))
	defer span.End()

	value, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StepError{Label: label, Err: err}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode result of step %q: %w", label, err)
	}

	step := Step{
		RunID:       c.run.ID,
		Label:       label,
		Kind:        StepKindStep,
		Result:      raw,
		CompletedAt: c.engine.now(),
	}
	if err := c.engine.storage.SaveStep(ctx, step); err != nil {
		return fmt.Errorf("save step %q: %w", label, err)
	}
	c.steps[label] = &step
	c.engine.metrics.stepExecuted(c.run.Workflow)

	return decodeResult(raw, out)
}

func (c *runContext) SleepUntil(ctx context.Context, label string, until time.Time) error {
	if err := c.enter(label); err != nil {
		return err
	}

	if st, ok := c.steps[label]; ok {
		if st.Kind != StepKindSleep {
			return fmt.Errorf("%w: %q", ErrStepKindChanged, label)
		}
		return nil
	}

	if c.engine.now().Before(until) {
		return &SuspendError{Label: label, Until: until}
	}

	raw, err := json.Marshal(until.UTC())
	if err != nil {
		return fmt.Errorf("encode wake time of %q: %w", label, err)
	}
	step := Step{
		RunID:       c.run.ID,
		Label:       label,
		Kind:        StepKindSleep,
		Result:      raw,
		CompletedAt: c.engine.now(),
	}
	if err := c.engine.storage.SaveStep(ctx, step); err != nil {
		return fmt.Errorf("save sleep %q: %w", label, err)
	}
	c.steps[label] = &step
	return nil
}

func (c *runContext) enter(label string) error {
	if _, ok := c.seen[label]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
	}
	c.seen[label] = struct{}{}
	return nil
}

func decodeResult(raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode step result: %w", err)
	}
	return nil
}

// RunStep is a typed wrapper around Context.Run.
func RunStep[T any](ctx context.Context, wc Context, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := wc.Run(ctx, label, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, &out)
	return out, err
}
