package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lisahligono/semantique/internal/state"
	"github.com/lisahligono/semantique/pkg/core"
)

// Outcome is the evaluation outcome of one recipe entry. Exactly one of
// Value and Err is set.
type Outcome struct {
	Name     string
	Value    core.Value
	Err      error
	Duration time.Duration
}

// Failed reports whether the entry failed.
func (o *Outcome) Failed() bool { return o.Err != nil }

// Response holds the outcomes of an evaluation in recipe order.
type Response struct {
	// RunID is the ID of the recorded run, empty when nothing was recorded.
	RunID    string
	Outcomes []Outcome
}

// Get returns the outcome of the named entry.
func (r *Response) Get(name string) (*Outcome, bool) {
	for i := range r.Outcomes {
		if r.Outcomes[i].Name == name {
			return &r.Outcomes[i], true
		}
	}
	return nil, false
}

// Values returns the values of the successful entries.
func (r *Response) Values() map[string]core.Value {
	out := make(map[string]core.Value, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out[o.Name] = o.Value
		}
	}
	return out
}

// Errors returns the errors of the failed entries.
func (r *Response) Errors() map[string]error {
	out := make(map[string]error)
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out[o.Name] = o.Err
		}
	}
	return out
}

// Failed returns the number of failed entries.
func (r *Response) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Err joins the errors of the failed entries in recipe order.
func (r *Response) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Evaluate evaluates every entry of recipe within one evaluation context.
// A failing entry never aborts its siblings; its error is reported in its
// Outcome. The returned error is reserved for setup failures.
func (e *Engine) Evaluate(ctx context.Context, recipe *core.Recipe) (*Response, error) {
	if recipe == nil {
		return nil, errors.New("recipe is required")
	}

	ctx, span := tracer.Start(ctx, "engine.Evaluate",
		trace.WithAttributes(
			attribute.Int("recipe.entries", recipe.Len()),
			attribute.Bool("engine.parallel", e.parallel),
		),
	)
	defer span.End()

	e.logger.Info("starting evaluation", "entries", recipe.Len(), "parallel", e.parallel)
	start := time.Now()

	resp := &Response{RunID: e.startRun(ctx)}
	ec := e.NewContext(recipe)
	names := recipe.Names()
	resp.Outcomes = make([]Outcome, len(names))

	levels, parallel := e.schedule(recipe)
	if parallel {
		e.evaluateLevels(ctx, ec, names, levels, resp.Outcomes)
	} else {
		for i, name := range names {
			resp.Outcomes[i] = e.evaluateEntry(ctx, ec, name)
		}
	}

	e.finishRun(ctx, resp)

	failed := resp.Failed()
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d entries failed", failed, len(names)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	e.logger.Info("evaluation finished", "entries", len(names), "failed", failed, "duration", time.Since(start))
	return resp, nil
}

// schedule returns the execution levels for parallel mode. It reports false
// when entries must run sequentially.
func (e *Engine) schedule(recipe *core.Recipe) ([][]string, bool) {
	if !e.parallel || recipe.Len() < 2 {
		return nil, false
	}
	levels, err := e.Plan(recipe).ResultLevels()
	if err != nil {
		e.logger.Warn("static dependency cycle, evaluating sequentially", "error", err)
		return nil, false
	}
	return levels, true
}

// evaluateLevels runs entries level by level, at most e.workers at a time.
func (e *Engine) evaluateLevels(ctx context.Context, ec *EvalContext, names []string, levels [][]string, outcomes []Outcome) {
	position := make(map[string]int, len(names))
	for i, name := range names {
		position[name] = i
	}

	for n, level := range levels {
		e.logger.Debug("evaluating level", "level", n, "entries", len(level))
		var g errgroup.Group
		g.SetLimit(e.workers)
		for _, name := range level {
			i := position[name]
			g.Go(func() error {
				outcomes[i] = e.evaluateEntry(ctx, ec, name)
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (e *Engine) evaluateEntry(ctx context.Context, ec *EvalContext, name string) Outcome {
	ctx, span := tracer.Start(ctx, "engine.Entry", trace.WithAttributes(attribute.String("entry.name", name)))
	defer span.End()

	start := time.Now()
	out := Outcome{Name: name}

	ref, err := core.NewResult(name)
	if err == nil {
		out.Value, err = ec.Resolve(ctx, ref)
	}
	out.Err = err
	out.Duration = time.Since(start)
	e.metrics.EntryFinished(out.Duration, err != nil)

	if err != nil {
		out.Value = nil
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("entry failed", "name", name, "error", err)
	} else {
		span.SetStatus(codes.Ok, "")
		e.logger.Debug("entry evaluated", "name", name, "duration", out.Duration)
	}
	return out
}

func (e *Engine) startRun(ctx context.Context) string {
	if e.store == nil {
		return ""
	}
	run, err := e.store.CreateRun(ctx, e.runLabel)
	if err != nil {
		e.logger.Warn("failed to record run", "error", err)
		return ""
	}
	e.logger.Debug("created run", "run_id", run.ID)
	return run.ID
}

func (e *Engine) finishRun(ctx context.Context, resp *Response) {
	if e.store == nil || resp.RunID == "" {
		return
	}

	for i, o := range resp.Outcomes {
		rr := &state.ResultRun{
			RunID:    resp.RunID,
			Name:     o.Name,
			Position: i,
			Status:   state.ResultStatusSuccess,
			Duration: o.Duration,
		}
		if o.Err != nil {
			rr.Status = state.ResultStatusFailed
			rr.Error = o.Err.Error()
		} else if arr, ok := o.Value.(*core.Array); ok {
			rr.Dims = arr.Dims
			rr.Shape = arr.Shape
			rr.ValidCells = arr.Summary().Valid
		}
		if err := e.store.RecordResult(ctx, rr); err != nil {
			e.logger.Warn("failed to record result", "run_id", resp.RunID, "name", o.Name, "error", err)
		}
	}

	status, msg := state.RunStatusCompleted, ""
	switch failed := resp.Failed(); {
	case failed == 0:
	case failed == len(resp.Outcomes):
		status, msg = state.RunStatusFailed, fmt.Sprintf("all %d entries failed", failed)
	default:
		status, msg = state.RunStatusPartial, fmt.Sprintf("%d of %d entries failed", failed, len(resp.Outcomes))
	}
	if err := e.store.CompleteRun(ctx, resp.RunID, status, msg); err != nil {
		e.logger.Warn("failed to complete run", "run_id", resp.RunID, "error", err)
	}
}
