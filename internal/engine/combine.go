package engine

import (
	"fmt"
	"math"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/lisahligono/semantique/internal/verbs"
	"github.com/lisahligono/semantique/pkg/core"
)

// combine merges the operand values of a property cell by cell. Scalars
// broadcast, every other operand must share dimensions and shape.
func combine(prop *core.Property, operands []*core.Array) (*core.Array, error) {
	if len(operands) == 0 {
		return nil, fmt.Errorf("property has no operands")
	}

	rule := prop.Combine
	if rule == "" {
		if len(operands) == 1 {
			return operands[0].Clone(), nil
		}
		rule = core.CombineAll
	}

	switch rule {
	case core.CombineAll, core.CombineAny, core.CombineSum, core.CombineProduct,
		core.CombineMean, core.CombineMin, core.CombineMax:
		return verbs.Stack(operands, verbs.Reducers[string(rule)])
	case core.CombineNot:
		if len(operands) != 1 {
			return nil, fmt.Errorf("combine rule %q takes exactly one operand, got %d", rule, len(operands))
		}
		return verbs.Stack(operands, func(v []float64) float64 {
			switch {
			case math.IsNaN(v[0]):
				return math.NaN()
			case v[0] == 0:
				return 1
			default:
				return 0
			}
		})
	case core.CombineExpression:
		fn, err := compileExpression(prop.Expression, len(operands))
		if err != nil {
			return nil, err
		}
		out, err := verbs.Stack(operands, fn.eval)
		if err != nil {
			return nil, err
		}
		if fn.err != nil {
			return nil, fn.err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown combine rule %q", rule)
	}
}

// expression is a compiled starlark combination expression. Operands are
// bound to x0..xN and to the list x. Missing values are nan and can be tested
// with isnan; an expression yielding None marks the cell as missing.
type expression struct {
	src    string
	thread *starlark.Thread
	fn     starlark.Callable
	err    error
}

var predeclared = starlark.StringDict{
	"nan":   starlark.Float(math.NaN()),
	"isnan": starlark.NewBuiltin("isnan", isNaN),
}

func isNaN(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: want a number, got %s", b.Name(), x.Type())
	}
	return starlark.Bool(math.IsNaN(f)), nil
}

func compileExpression(src string, n int) (*expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("combine rule %q needs an expression", core.CombineExpression)
	}

	params := make([]string, 0, n+1)
	for i := range n {
		params = append(params, fmt.Sprintf("x%d", i))
	}
	params = append(params, "x")
	file := fmt.Sprintf("def combine(%s):\n    return (%s)\n", strings.Join(params, ", "), src)

	thread := &starlark.Thread{Name: "combine"}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, "combine.star", file, predeclared)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", src, err)
	}
	fn, ok := globals["combine"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("failed to compile expression %q", src)
	}
	return &expression{src: src, thread: thread, fn: fn}, nil
}

// eval evaluates one cell. The first failure is kept in e.err and later
// cells evaluate to NaN.
func (e *expression) eval(values []float64) float64 {
	if e.err != nil {
		return math.NaN()
	}

	args := make(starlark.Tuple, 0, len(values)+1)
	list := make([]starlark.Value, len(values))
	for i, v := range values {
		list[i] = starlark.Float(v)
		args = append(args, list[i])
	}
	args = append(args, starlark.NewList(list))

	res, err := starlark.Call(e.thread, e.fn, args, nil)
	if err != nil {
		e.err = fmt.Errorf("failed to evaluate expression %q: %w", e.src, err)
		return math.NaN()
	}

	switch r := res.(type) {
	case starlark.NoneType:
		return math.NaN()
	case starlark.Bool:
		if r {
			return 1
		}
		return 0
	case starlark.Int:
		f, _ := starlark.AsFloat(r)
		return f
	case starlark.Float:
		return float64(r)
	default:
		e.err = fmt.Errorf("expression %q returned %s, want a number", e.src, res.Type())
		return math.NaN()
	}
}
