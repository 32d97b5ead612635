package core

import (
	"context"
	"fmt"
	"slices"
)

// CombineRule tells how the operand values of a concept property are merged
// into one array.
type CombineRule string

// Supported combination rules. The zero value passes a single operand
// through and means CombineAll for several operands.
const (
	CombineAll        CombineRule = "all"
	CombineAny        CombineRule = "any"
	CombineSum        CombineRule = "sum"
	CombineProduct    CombineRule = "product"
	CombineMean       CombineRule = "mean"
	CombineMin        CombineRule = "min"
	CombineMax        CombineRule = "max"
	CombineNot        CombineRule = "not"
	CombineExpression CombineRule = "expression"
)

// Valid reports whether r is a known rule (or empty).
func (r CombineRule) Valid() bool {
	switch r {
	case "", CombineAll, CombineAny, CombineSum, CombineProduct, CombineMean,
		CombineMin, CombineMax, CombineNot, CombineExpression:
		return true
	}
	return false
}

// Property is one way of deriving a concept. Each operand chain is evaluated
// and the results are merged with Combine.
type Property struct {
	Name       string
	Combine    CombineRule
	Expression string
	Operands   []Chain
}

// ConceptDefinition is a mapping leaf.
type ConceptDefinition struct {
	Path       []string
	Default    string
	Properties []Property
}

// Property returns the named property.
func (d *ConceptDefinition) Property(name string) (*Property, bool) {
	for i := range d.Properties {
		if d.Properties[i].Name == name {
			return &d.Properties[i], true
		}
	}
	return nil, false
}

// EffectiveProperty picks the property a reference resolves to: the requested
// one, else the designated default, else the only one.
func (d *ConceptDefinition) EffectiveProperty(requested string) (*Property, error) {
	if requested != "" {
		p, ok := d.Property(requested)
		if !ok {
			return nil, pathNotFound("mapping", d.Path, fmt.Sprintf("no property %q", requested))
		}
		return p, nil
	}
	if d.Default != "" {
		p, ok := d.Property(d.Default)
		if !ok {
			return nil, pathNotFound("mapping", d.Path, fmt.Sprintf("default property %q is not defined", d.Default))
		}
		return p, nil
	}
	switch len(d.Properties) {
	case 0:
		return nil, pathNotFound("mapping", d.Path, "concept has no properties")
	case 1:
		return &d.Properties[0], nil
	default:
		names := make([]string, len(d.Properties))
		for i, p := range d.Properties {
			names[i] = p.Name
		}
		return nil, fmt.Errorf("%w: concept %q has properties %v and no default", ErrAmbiguousProperty, d.Path[len(d.Path)-1], names)
	}
}

// LayerLocator is a layout leaf: where a data cube finds a layer.
type LayerLocator struct {
	Path      []string
	Source    string
	Dims      []string
	ValueType string
	Params    map[string]any
}

// Clone returns a copy that does not share slices with l.
func (l *LayerLocator) Clone() *LayerLocator {
	out := *l
	out.Path = slices.Clone(l.Path)
	out.Dims = slices.Clone(l.Dims)
	if l.Params != nil {
		out.Params = make(map[string]any, len(l.Params))
		for k, v := range l.Params {
			out.Params[k] = v
		}
	}
	return &out
}

// MappingIndex resolves concept paths to their definitions.
type MappingIndex interface {
	LookupConcept(path []string) (*ConceptDefinition, error)
}

// LayoutIndex resolves layer paths to their locators.
type LayoutIndex interface {
	LookupLayer(path []string) (*LayerLocator, error)
}

// DataCube fetches the data of a layer.
type DataCube interface {
	Fetch(ctx context.Context, loc *LayerLocator) (*Array, error)
}

// VerbEngine applies a verb to the active value. Implementations must treat
// active and args as read-only: values may be shared through the memo cache.
type VerbEngine interface {
	Apply(ctx context.Context, active Value, verb string, args []any) (Value, error)
}
