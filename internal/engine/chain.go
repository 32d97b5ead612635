package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lisahligono/semantique/pkg/core"
)

var tracer = otel.Tracer("semantique.engine")

// runChain resolves the initial reference of chain with the caller's scope
// and threads the active object through its verbs.
func (c *EvalContext) runChain(ctx context.Context, sc scope, chain core.Chain) (core.Value, error) {
	ctx, span := tracer.Start(ctx, "engine.Chain",
		trace.WithAttributes(
			attribute.String("chain.reference", refString(chain.Ref)),
			attribute.Int("chain.verbs", len(chain.Verbs)),
		),
	)
	defer span.End()

	v, err := c.resolve(ctx, sc, chain.Ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sc.stack.push(v)
	defer sc.stack.pop()

	for i, call := range chain.Verbs {
		args, err := c.evalArgs(ctx, sc, call.Args)
		if err != nil {
			err = fmt.Errorf("argument of verb %q (step %d): %w", call.Name, i, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		active, _ := sc.stack.top()
		out, err := c.verbs.Apply(ctx, active, call.Name, args)
		c.metrics.VerbApplied(call.Name)
		if err != nil {
			verr := &core.VerbError{Verb: call.Name, Step: i, Err: err}
			span.RecordError(verr)
			span.SetStatus(codes.Error, verr.Error())
			return nil, verr
		}
		if out == nil {
			return nil, &core.VerbError{Verb: call.Name, Step: i, Err: fmt.Errorf("verb returned no value")}
		}
		sc.stack.replace(out)
	}

	out, _ := sc.stack.top()
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// evalArgs resolves the references and nested chains among verb arguments.
// They see the current active object on top of the stack.
func (c *EvalContext) evalArgs(ctx context.Context, sc scope, args []any) ([]any, error) {
	if len(args) == 0 {
		return args, nil
	}
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := c.evalArg(ctx, sc, arg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *EvalContext) evalArg(ctx context.Context, sc scope, arg any) (any, error) {
	switch a := arg.(type) {
	case core.Chain:
		return c.runChain(ctx, sc, a)
	case core.Reference:
		return c.resolve(ctx, sc, a)
	case []any:
		return c.evalArgs(ctx, sc, a)
	case map[string]any:
		out := make(map[string]any, len(a))
		for _, k := range slices.Sorted(maps.Keys(a)) {
			v, err := c.evalArg(ctx, sc, a[k])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return arg, nil
	}
}

func refString(ref core.Reference) string {
	if ref == nil {
		return "<nil>"
	}
	return ref.String()
}
