package core

import (
	"fmt"
	"slices"
	"strings"
)

// Kind discriminates the reference variants.
type Kind string

// Reference kinds. These are also the values of the "type" field in the
// serialized form.
const (
	KindConcept    Kind = "concept"
	KindLayer      Kind = "layer"
	KindResult     Kind = "result"
	KindSelf       Kind = "self"
	KindCollection Kind = "collection"
)

// Reference is a symbolic, serializable description of something that
// resolves to a Value.
//
// The set of implementations is closed: ConceptRef, LayerRef, ResultRef,
// SelfRef and CollectionRef. Consumers switch on the concrete type.
type Reference interface {
	// Kind returns the variant discriminator.
	Kind() Kind
	// Key returns the canonical signature of the reference. Structurally
	// equal references have equal keys.
	Key() string
	// String returns a short human-readable form for messages and logs.
	String() string

	reference()
}

// Leading path segments used by the convenience constructors.
const (
	CategoryEntity      = "entity"
	CategoryEvent       = "event"
	CategoryQuality     = "quality"
	CategoryAppearance  = "appearance"
	CategoryArtifacts   = "artifacts"
	CategoryAtmosphere  = "atmosphere"
	CategoryReflectance = "reflectance"
	CategoryTopography  = "topography"
)

// ConceptRef references a semantic concept in the mapping, optionally one of
// its properties.
type ConceptRef struct {
	path     []string
	property string
}

// NewConcept creates a reference to the concept at the given category path.
// The last segment is the concept name.
func NewConcept(path ...string) (ConceptRef, error) {
	if err := validatePath(KindConcept, path); err != nil {
		return ConceptRef{}, err
	}
	return ConceptRef{path: slices.Clone(path)}, nil
}

// Entity references a concept in the "entity" category.
func Entity(path ...string) (ConceptRef, error) { return aliasConcept(CategoryEntity, path) }

// Event references a concept in the "event" category.
func Event(path ...string) (ConceptRef, error) { return aliasConcept(CategoryEvent, path) }

// Quality references a concept in the "quality" category.
func Quality(path ...string) (ConceptRef, error) { return aliasConcept(CategoryQuality, path) }

func aliasConcept(prefix string, path []string) (ConceptRef, error) {
	if len(path) == 0 {
		return ConceptRef{}, fmt.Errorf("%w: %s reference needs a name", ErrInvalidReference, prefix)
	}
	return NewConcept(append([]string{prefix}, path...)...)
}

// Path returns a copy of the category path.
func (c ConceptRef) Path() []string { return slices.Clone(c.path) }

// Name returns the concept name (the last path segment).
func (c ConceptRef) Name() string {
	if len(c.path) == 0 {
		return ""
	}
	return c.path[len(c.path)-1]
}

// Property returns the requested property, or "" when none was requested.
func (c ConceptRef) Property() string { return c.property }

// WithProperty returns a copy of the reference restricted to one property.
// An empty name clears the property.
func (c ConceptRef) WithProperty(name string) ConceptRef {
	return ConceptRef{path: slices.Clone(c.path), property: name}
}

// Kind implements Reference.
func (ConceptRef) Kind() Kind { return KindConcept }

// Key implements Reference.
func (c ConceptRef) Key() string { return canonicalKey(c) }

func (c ConceptRef) String() string {
	s := "concept(" + strings.Join(c.path, "/")
	if c.property != "" {
		s += "#" + c.property
	}
	return s + ")"
}

func (ConceptRef) reference() {}

// LayerRef references a raw data layer in the layout.
type LayerRef struct {
	path []string
}

// NewLayer creates a reference to the layer at the given category path.
func NewLayer(path ...string) (LayerRef, error) {
	if err := validatePath(KindLayer, path); err != nil {
		return LayerRef{}, err
	}
	return LayerRef{path: slices.Clone(path)}, nil
}

// Appearance references a layer in the "appearance" category.
func Appearance(path ...string) (LayerRef, error) { return aliasLayer(CategoryAppearance, path) }

// Artifacts references a layer in the "artifacts" category.
func Artifacts(path ...string) (LayerRef, error) { return aliasLayer(CategoryArtifacts, path) }

// Atmosphere references a layer in the "atmosphere" category.
func Atmosphere(path ...string) (LayerRef, error) { return aliasLayer(CategoryAtmosphere, path) }

// Reflectance references a layer in the "reflectance" category.
func Reflectance(path ...string) (LayerRef, error) { return aliasLayer(CategoryReflectance, path) }

// Topography references a layer in the "topography" category.
func Topography(path ...string) (LayerRef, error) { return aliasLayer(CategoryTopography, path) }

func aliasLayer(prefix string, path []string) (LayerRef, error) {
	if len(path) == 0 {
		return LayerRef{}, fmt.Errorf("%w: %s reference needs a name", ErrInvalidReference, prefix)
	}
	return NewLayer(append([]string{prefix}, path...)...)
}

// Path returns a copy of the category path.
func (l LayerRef) Path() []string { return slices.Clone(l.path) }

// Name returns the layer name (the last path segment).
func (l LayerRef) Name() string {
	if len(l.path) == 0 {
		return ""
	}
	return l.path[len(l.path)-1]
}

// Kind implements Reference.
func (LayerRef) Kind() Kind { return KindLayer }

// Key implements Reference.
func (l LayerRef) Key() string { return canonicalKey(l) }

func (l LayerRef) String() string { return "layer(" + strings.Join(l.path, "/") + ")" }

func (LayerRef) reference() {}

// ResultRef references another named result of the recipe being evaluated.
type ResultRef struct {
	name string
}

// NewResult creates a reference to the named recipe result.
func NewResult(name string) (ResultRef, error) {
	if strings.TrimSpace(name) == "" {
		return ResultRef{}, fmt.Errorf("%w: result name is empty", ErrInvalidReference)
	}
	return ResultRef{name: name}, nil
}

// Name returns the referenced result name.
func (r ResultRef) Name() string { return r.name }

// Kind implements Reference.
func (ResultRef) Kind() Kind { return KindResult }

// Key implements Reference.
func (r ResultRef) Key() string { return canonicalKey(r) }

func (r ResultRef) String() string { return "result(" + r.name + ")" }

func (ResultRef) reference() {}

// SelfRef denotes the active evaluation object of the enclosing chain.
type SelfRef struct{}

// Self returns the self reference.
func Self() SelfRef { return SelfRef{} }

// Kind implements Reference.
func (SelfRef) Kind() Kind { return KindSelf }

// Key implements Reference.
func (s SelfRef) Key() string { return canonicalKey(s) }

func (SelfRef) String() string { return "self" }

func (SelfRef) reference() {}

// CollectionRef bundles independently resolved references. Order is
// preserved and nested collections are not flattened.
type CollectionRef struct {
	elements []Reference
}

// NewCollection creates a collection of the given references.
func NewCollection(elements ...Reference) (CollectionRef, error) {
	for i, el := range elements {
		if el == nil {
			return CollectionRef{}, fmt.Errorf("%w: collection element %d is nil", ErrInvalidReference, i)
		}
	}
	return CollectionRef{elements: slices.Clone(elements)}, nil
}

// Elements returns a copy of the collection elements.
func (c CollectionRef) Elements() []Reference { return slices.Clone(c.elements) }

// Len returns the number of elements.
func (c CollectionRef) Len() int { return len(c.elements) }

// Kind implements Reference.
func (CollectionRef) Kind() Kind { return KindCollection }

// Key implements Reference.
func (c CollectionRef) Key() string { return canonicalKey(c) }

func (c CollectionRef) String() string {
	parts := make([]string, len(c.elements))
	for i, el := range c.elements {
		parts[i] = el.String()
	}
	return "collection(" + strings.Join(parts, ", ") + ")"
}

func (CollectionRef) reference() {}

// Equal reports whether two references are structurally equal.
func Equal(a, b Reference) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

// Must panics if err is non-nil and returns v otherwise. It is intended for
// references built from literals, e.g. core.Must(core.Entity("water")).
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func validatePath(kind Kind, path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: %s path is empty", ErrInvalidReference, kind)
	}
	for i, seg := range path {
		if seg == "" {
			return fmt.Errorf("%w: %s path segment %d is empty", ErrInvalidReference, kind, i)
		}
	}
	return nil
}
