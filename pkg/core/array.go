package core

import (
	"fmt"
	"math"
	"slices"
)

// Value is the result of resolving a reference: an *Array or a *Collection.
type Value interface {
	value()
}

// Array is a labeled multi-dimensional array stored in row-major order.
// NaN marks cells without data.
type Array struct {
	Name  string
	Dims  []string
	Shape []int
	Data  []float64
}

// NewArray validates the dimension labels against the shape and data length.
// A zero-dimensional array holds exactly one value.
func NewArray(name string, dims []string, shape []int, data []float64) (*Array, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("%w: %d dimensions but %d shape entries", ErrShapeMismatch, len(dims), len(shape))
	}
	seen := make(map[string]bool, len(dims))
	size := 1
	for i, d := range dims {
		if d == "" {
			return nil, fmt.Errorf("dimension %d has no name", i)
		}
		if seen[d] {
			return nil, fmt.Errorf("duplicate dimension %q", d)
		}
		seen[d] = true
		if shape[i] < 0 {
			return nil, fmt.Errorf("%w: negative length %d for dimension %q", ErrShapeMismatch, shape[i], d)
		}
		size *= shape[i]
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShapeMismatch, shape, size, len(data))
	}
	return &Array{
		Name:  name,
		Dims:  slices.Clone(dims),
		Shape: slices.Clone(shape),
		Data:  slices.Clone(data),
	}, nil
}

// Scalar returns a zero-dimensional array holding v.
func Scalar(v float64) *Array {
	return &Array{Data: []float64{v}}
}

// Size returns the number of cells.
func (a *Array) Size() int { return len(a.Data) }

// IsScalar reports whether the array has no dimensions.
func (a *Array) IsScalar() bool { return len(a.Dims) == 0 }

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{
		Name:  a.Name,
		Dims:  slices.Clone(a.Dims),
		Shape: slices.Clone(a.Shape),
		Data:  slices.Clone(a.Data),
	}
}

// Like returns an array with the same name, dimensions and shape holding data.
func (a *Array) Like(data []float64) *Array {
	return &Array{
		Name:  a.Name,
		Dims:  slices.Clone(a.Dims),
		Shape: slices.Clone(a.Shape),
		Data:  data,
	}
}

// SameShape reports whether two arrays have identical dimensions and shape.
func (a *Array) SameShape(b *Array) bool {
	return slices.Equal(a.Dims, b.Dims) && slices.Equal(a.Shape, b.Shape)
}

// Equal reports whether two arrays have the same dimensions, shape and data.
// Names are ignored and NaN equals NaN.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !a.SameShape(b) || len(a.Data) != len(b.Data) {
		return false
	}
	for i, v := range a.Data {
		w := b.Data[i]
		if math.IsNaN(v) && math.IsNaN(w) {
			continue
		}
		if v != w {
			return false
		}
	}
	return true
}

// DimIndex returns the position of the named dimension, or -1.
func (a *Array) DimIndex(dim string) int {
	return slices.Index(a.Dims, dim)
}

// Stats summarizes the valid (non-NaN) cells of an array.
type Stats struct {
	Count int
	Valid int
	Min   float64
	Max   float64
	Mean  float64
}

// Summary computes Stats. Min, Max and Mean are NaN when no cell is valid.
func (a *Array) Summary() Stats {
	s := Stats{Count: len(a.Data), Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	var sum float64
	for _, v := range a.Data {
		if math.IsNaN(v) {
			continue
		}
		if s.Valid == 0 || v < s.Min {
			s.Min = v
		}
		if s.Valid == 0 || v > s.Max {
			s.Max = v
		}
		sum += v
		s.Valid++
	}
	if s.Valid > 0 {
		s.Mean = sum / float64(s.Valid)
	}
	return s
}

func (*Array) value() {}

// Collection is an ordered bundle of values. Nested collections are kept as is.
type Collection struct {
	Elements []Value
}

// NewCollectionValue bundles values in order.
func NewCollectionValue(elements ...Value) *Collection {
	return &Collection{Elements: slices.Clone(elements)}
}

// Len returns the number of elements.
func (c *Collection) Len() int { return len(c.Elements) }

func (*Collection) value() {}

// AsArray returns v as an array, or an error naming what it actually is.
func AsArray(v Value) (*Array, error) {
	switch t := v.(type) {
	case *Array:
		return t, nil
	case *Collection:
		return nil, fmt.Errorf("expected an array, got a collection of %d elements", t.Len())
	default:
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
}
