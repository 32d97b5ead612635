package verbs

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/lisahligono/semantique/pkg/core"
)

// Reducer collapses a set of values into one. NaN marks missing values.
type Reducer func(values []float64) float64

// Reducers are NaN-aware. Unless stated otherwise a set without any valid
// value reduces to NaN.
var Reducers = map[string]Reducer{
	"mean":               mean,
	"product":            product,
	"standard_deviation": func(v []float64) float64 { return math.Sqrt(variance(v)) },
	"sum":                sum,
	"variance":           variance,
	"all":                all,
	"any":                anyTrue,
	"count":              count,
	"percentage":         percentage,
	"max":                maximum,
	"median":             median,
	"min":                minimum,
	"first":              first,
	"last":               last,
	"mode":               mode,
}

func valid(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func mean(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	return sum(v) / float64(len(v))
}

func sum(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

func product(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	p := 1.0
	for _, x := range v {
		p *= x
	}
	return p
}

// variance is the population variance.
func variance(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	m := mean(v)
	ss := 0.0
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return ss / float64(len(v))
}

// all treats missing values as true; it is NaN only when nothing is valid.
func all(values []float64) float64 {
	if len(valid(values)) == 0 {
		return math.NaN()
	}
	for _, x := range values {
		if x == 0 {
			return 0
		}
	}
	return 1
}

// anyTrue treats missing values as false and never returns NaN.
func anyTrue(values []float64) float64 {
	for _, x := range values {
		if !math.IsNaN(x) && !math.IsInf(x, 0) && x != 0 {
			return 1
		}
	}
	return 0
}

// count counts non-zero valid values.
func count(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	n := 0
	for _, x := range v {
		if x != 0 {
			n++
		}
	}
	return float64(n)
}

// percentage is count relative to the number of valid values.
func percentage(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	return count(v) / float64(len(v)) * 100
}

func maximum(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	return slices.Max(v)
}

func minimum(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	return slices.Min(v)
}

func median(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return v[mid]
	}
	return (v[mid-1] + v[mid]) / 2
}

func first(values []float64) float64 {
	for _, x := range values {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			return x
		}
	}
	return math.NaN()
}

func last(values []float64) float64 {
	for i := len(values) - 1; i >= 0; i-- {
		if x := values[i]; !math.IsNaN(x) && !math.IsInf(x, 0) {
			return x
		}
	}
	return math.NaN()
}

// mode returns the most frequent valid value, the smallest one on ties.
func mode(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	best, bestN := v[0], 0
	for i := 0; i < len(v); {
		j := i
		for j < len(v) && v[j] == v[i] {
			j++
		}
		if j-i > bestN {
			best, bestN = v[i], j-i
		}
		i = j
	}
	return best
}

func lookupReducer(name string) (Reducer, error) {
	r, ok := Reducers[name]
	if !ok {
		names := make([]string, 0, len(Reducers))
		for n := range Reducers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown reducer %q (available: %v)", name, names)
	}
	return r, nil
}

// reduce collapses one dimension: reduce(reducer, dimension). Without a
// dimension every dimension is collapsed into a scalar.
func reduce(_ context.Context, active core.Value, args []any) (core.Value, error) {
	x, err := core.AsArray(active)
	if err != nil {
		return nil, err
	}
	rname, err := stringArg(args, 0, "")
	if err != nil || rname == "" {
		return nil, fmt.Errorf("reduce needs a reducer name")
	}
	fn, err := lookupReducer(rname)
	if err != nil {
		return nil, err
	}
	dim, err := stringArg(args, 1, "")
	if err != nil {
		return nil, err
	}
	if dim == "" {
		out := core.Scalar(fn(x.Data))
		out.Name = x.Name
		return out, nil
	}
	return ReduceAlong(x, dim, fn)
}

// ReduceAlong collapses the named dimension of x with fn.
func ReduceAlong(x *core.Array, dim string, fn Reducer) (*core.Array, error) {
	axis := x.DimIndex(dim)
	if axis < 0 {
		return nil, fmt.Errorf("array %q has no dimension %q (dimensions: %v)", x.Name, dim, x.Dims)
	}

	n := x.Shape[axis]
	inner := 1
	for _, s := range x.Shape[axis+1:] {
		inner *= s
	}
	outer := 1
	for _, s := range x.Shape[:axis] {
		outer *= s
	}

	out := make([]float64, 0, outer*inner)
	buf := make([]float64, n)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			for k := 0; k < n; k++ {
				buf[k] = x.Data[(o*n+k)*inner+i]
			}
			out = append(out, fn(buf))
		}
	}

	dims := slices.Delete(slices.Clone(x.Dims), axis, axis+1)
	shape := slices.Delete(slices.Clone(x.Shape), axis, axis+1)
	return core.NewArray(x.Name, dims, shape, out)
}

// filter keeps the cells where the filterer is true and sets the others to
// missing: filter(filterer).
func filter(_ context.Context, active core.Value, args []any) (core.Value, error) {
	x, err := core.AsArray(active)
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("filter takes 1 argument, got %d", len(args))
	}
	f, err := toArray(args[0])
	if err != nil {
		return nil, fmt.Errorf("filterer: %w", err)
	}
	if !f.IsScalar() && !x.SameShape(f) {
		return nil, fmt.Errorf("%w: filterer %v%v does not match %v%v", core.ErrShapeMismatch, f.Dims, f.Shape, x.Dims, x.Shape)
	}
	out, err := Elementwise(x, f, func(v, keep float64) float64 {
		if math.IsNaN(keep) || keep == 0 {
			return math.NaN()
		}
		return v
	})
	if err != nil {
		return nil, err
	}
	out.Name = x.Name
	return out, nil
}

// merge combines the arrays of a collection cell by cell: merge(reducer).
func merge(_ context.Context, active core.Value, args []any) (core.Value, error) {
	coll, ok := active.(*core.Collection)
	if !ok {
		return nil, fmt.Errorf("merge needs a collection, got %T", active)
	}
	rname, err := stringArg(args, 0, "")
	if err != nil || rname == "" {
		return nil, fmt.Errorf("merge needs a reducer name")
	}
	fn, err := lookupReducer(rname)
	if err != nil {
		return nil, err
	}
	arrays := make([]*core.Array, 0, coll.Len())
	for i, el := range coll.Elements {
		a, err := core.AsArray(el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		arrays = append(arrays, a)
	}
	return Stack(arrays, fn)
}

// Stack reduces several arrays cell by cell. Scalars broadcast; all other
// arrays must share dimensions and shape.
func Stack(arrays []*core.Array, fn Reducer) (*core.Array, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("nothing to merge")
	}
	var tmpl *core.Array
	for _, a := range arrays {
		if a.IsScalar() {
			continue
		}
		if tmpl == nil {
			tmpl = a
			continue
		}
		if !tmpl.SameShape(a) {
			return nil, fmt.Errorf("%w: %v%v vs %v%v", core.ErrShapeMismatch, tmpl.Dims, tmpl.Shape, a.Dims, a.Shape)
		}
	}
	if tmpl == nil {
		tmpl = arrays[0]
	}

	out := make([]float64, len(tmpl.Data))
	buf := make([]float64, len(arrays))
	for i := range out {
		for j, a := range arrays {
			if a.IsScalar() {
				buf[j] = a.Data[0]
			} else {
				buf[j] = a.Data[i]
			}
		}
		out[i] = fn(buf)
	}
	res := tmpl.Like(out)
	res.Name = arrays[0].Name
	return res, nil
}
