package verbs

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/lisahligono/semantique/pkg/core"
)

type unaryOp func(x float64) float64

type binaryOp func(x, y float64) float64

// Unary operators. Missing values stay missing except for the missingness tests.
var unaryOps = map[string]unaryOp{
	"not": func(x float64) float64 {
		if math.IsNaN(x) {
			return x
		}
		return boolf(x == 0)
	},
	"is_missing":  func(x float64) float64 { return boolf(math.IsNaN(x)) },
	"not_missing": func(x float64) float64 { return boolf(!math.IsNaN(x)) },
	"absolute":    math.Abs,
	"negate":      func(x float64) float64 { return -x },
}

// Binary operators. A missing value on either side gives a missing result.
var binaryOps = map[string]binaryOp{
	"add":           func(x, y float64) float64 { return x + y },
	"subtract":      func(x, y float64) float64 { return x - y },
	"multiply":      func(x, y float64) float64 { return x * y },
	"divide":        func(x, y float64) float64 { return x / y },
	"power":         math.Pow,
	"modulus":       math.Mod,
	"greater":       func(x, y float64) float64 { return boolf(x > y) },
	"greater_equal": func(x, y float64) float64 { return boolf(x >= y) },
	"less":          func(x, y float64) float64 { return boolf(x < y) },
	"less_equal":    func(x, y float64) float64 { return boolf(x <= y) },
	"equal":         func(x, y float64) float64 { return boolf(x == y) },
	"not_equal":     func(x, y float64) float64 { return boolf(x != y) },
	"and":           func(x, y float64) float64 { return boolf(x != 0 && y != 0) },
	"or":            func(x, y float64) float64 { return boolf(x != 0 || y != 0) },
}

// evaluate applies an operator elementwise: evaluate(op) or evaluate(op, y).
// Membership operators take a list: evaluate("in", [1, 2]).
func evaluate(_ context.Context, active core.Value, args []any) (core.Value, error) {
	x, err := core.AsArray(active)
	if err != nil {
		return nil, err
	}
	op, err := stringArg(args, 0, "")
	if err != nil || op == "" {
		return nil, fmt.Errorf("evaluate needs an operator name")
	}

	if fn, ok := unaryOps[op]; ok {
		if len(args) != 1 {
			return nil, fmt.Errorf("operator %q takes no operand", op)
		}
		out := make([]float64, len(x.Data))
		for i, v := range x.Data {
			out[i] = fn(v)
		}
		return x.Like(out), nil
	}

	if len(args) != 2 {
		return nil, fmt.Errorf("operator %q takes exactly one operand", op)
	}

	if op == "in" || op == "not_in" {
		set, err := numberSet(args[1])
		if err != nil {
			return nil, fmt.Errorf("operator %q: %w", op, err)
		}
		out := make([]float64, len(x.Data))
		for i, v := range x.Data {
			if math.IsNaN(v) {
				out[i] = v
				continue
			}
			in := slices.Contains(set, v)
			out[i] = boolf(in == (op == "in"))
		}
		return x.Like(out), nil
	}

	fn, ok := binaryOps[op]
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", op)
	}
	y, err := toArray(args[1])
	if err != nil {
		return nil, fmt.Errorf("operator %q: %w", op, err)
	}
	return Elementwise(x, y, func(a, b float64) float64 {
		if math.IsNaN(a) || math.IsNaN(b) {
			return math.NaN()
		}
		return fn(a, b)
	})
}

// Elementwise combines two arrays cell by cell. Either side may be a scalar;
// otherwise dimensions and shape must match. The result takes the name and
// layout of the non-scalar side.
func Elementwise(x, y *core.Array, fn func(a, b float64) float64) (*core.Array, error) {
	switch {
	case y.IsScalar():
		out := make([]float64, len(x.Data))
		for i, v := range x.Data {
			out[i] = fn(v, y.Data[0])
		}
		return x.Like(out), nil
	case x.IsScalar():
		out := make([]float64, len(y.Data))
		for i, v := range y.Data {
			out[i] = fn(x.Data[0], v)
		}
		res := y.Like(out)
		res.Name = x.Name
		return res, nil
	case x.SameShape(y):
		out := make([]float64, len(x.Data))
		for i, v := range x.Data {
			out[i] = fn(v, y.Data[i])
		}
		return x.Like(out), nil
	default:
		return nil, fmt.Errorf("%w: %v%v vs %v%v", core.ErrShapeMismatch, x.Dims, x.Shape, y.Dims, y.Shape)
	}
}

func numberSet(v any) ([]float64, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of numbers, got %T", v)
	}
	out := make([]float64, len(list))
	for i, el := range list {
		switch n := el.(type) {
		case float64:
			out[i] = n
		case int:
			out[i] = float64(n)
		case bool:
			out[i] = boolf(n)
		default:
			return nil, fmt.Errorf("element %d is %T, not a number", i, el)
		}
	}
	return out, nil
}
