package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/lisahligono/semantique/pkg/core"
)

// resolve turns a reference into a value within the given scope. Every
// failure is returned as a *core.ResolutionError for ref.
func (c *EvalContext) resolve(ctx context.Context, sc scope, ref core.Reference) (core.Value, error) {
	if ref == nil {
		return nil, fmt.Errorf("%w: nil reference", core.ErrInvalidReference)
	}
	if err := ctx.Err(); err != nil {
		return nil, &core.ResolutionError{Ref: ref, Err: err}
	}

	var (
		v   core.Value
		err error
	)
	switch r := ref.(type) {
	case core.ConceptRef:
		v, err = c.resolveConcept(ctx, sc, r)
	case core.LayerRef:
		v, err = c.resolveLayer(ctx, r)
	case core.ResultRef:
		v, err = c.resolveResult(ctx, sc, r)
	case core.SelfRef:
		v, err = c.resolveSelf(sc)
	case core.CollectionRef:
		v, err = c.resolveCollection(ctx, sc, r)
	default:
		err = fmt.Errorf("%w: unsupported reference type %T", core.ErrInvalidReference, ref)
	}
	if err != nil {
		return nil, wrapResolution(ref, err)
	}
	return v, nil
}

func wrapResolution(ref core.Reference, err error) error {
	var re *core.ResolutionError
	if errors.As(err, &re) && core.Equal(re.Ref, ref) {
		return err
	}
	return &core.ResolutionError{Ref: ref, Err: err}
}

func (c *EvalContext) resolveConcept(ctx context.Context, sc scope, ref core.ConceptRef) (core.Value, error) {
	path := ref.Path()
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: concept path is empty", core.ErrInvalidReference)
	}
	def, err := c.mapping.LookupConcept(path)
	if err != nil {
		return nil, err
	}
	prop, err := def.EffectiveProperty(ref.Property())
	if err != nil {
		return nil, err
	}

	// concept(p) and concept(p).property(default) share one signature
	key := ref.WithProperty(prop.Name).Key()
	if sc.inFlight(key) {
		return nil, fmt.Errorf("%w: %s", core.ErrCyclicConceptReference, ref.WithProperty(prop.Name))
	}

	dependent := c.callerDependent(key, prop)
	compute := func() (core.Value, error) {
		inner := sc.entering(key)
		if !dependent {
			inner = inner.isolated()
		}
		return c.translate(ctx, inner, ref, prop)
	}
	if dependent {
		c.logger.Debug("resolving caller dependent concept", "concept", ref.String(), "property", prop.Name)
		return compute()
	}
	return c.once(key, core.KindConcept, compute)
}

// translate evaluates the operands of a concept property and combines them.
// The output is named after the concept.
func (c *EvalContext) translate(ctx context.Context, sc scope, ref core.ConceptRef, prop *core.Property) (core.Value, error) {
	c.logger.Debug("translating concept", "concept", ref.String(), "property", prop.Name, "operands", len(prop.Operands))

	operands := make([]*core.Array, len(prop.Operands))
	for i, op := range prop.Operands {
		v, err := c.runChain(ctx, sc, op)
		if err != nil {
			return nil, fmt.Errorf("property %q operand %d: %w", prop.Name, i, err)
		}
		arr, err := core.AsArray(v)
		if err != nil {
			return nil, fmt.Errorf("property %q operand %d: %w", prop.Name, i, err)
		}
		operands[i] = arr
	}

	out, err := combine(prop, operands)
	if err != nil {
		return nil, fmt.Errorf("property %q: %w", prop.Name, err)
	}
	out.Name = ref.Name()
	return out, nil
}

func (c *EvalContext) resolveLayer(ctx context.Context, ref core.LayerRef) (core.Value, error) {
	path := ref.Path()
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: layer path is empty", core.ErrInvalidReference)
	}
	loc, err := c.layout.LookupLayer(path)
	if err != nil {
		return nil, err
	}
	return c.once(ref.Key(), core.KindLayer, func() (core.Value, error) {
		c.metrics.Fetched()
		c.logger.Debug("fetching layer", "layer", ref.String(), "source", loc.Source)
		arr, err := c.cube.Fetch(ctx, loc)
		if err != nil {
			return nil, &core.DriverError{Locator: loc, Err: err}
		}
		if arr == nil {
			return nil, &core.DriverError{Locator: loc, Err: errors.New("data cube returned no data")}
		}
		return arr, nil
	})
}

func (c *EvalContext) resolveResult(ctx context.Context, sc scope, ref core.ResultRef) (core.Value, error) {
	name := ref.Name()
	if name == "" {
		return nil, fmt.Errorf("%w: result name is empty", core.ErrInvalidReference)
	}
	key := ref.Key()
	if e, ok := c.lookup(key); ok {
		c.metrics.CacheHit(string(core.KindResult))
		return e.value, e.err
	}
	if sc.inFlight(key) {
		return nil, fmt.Errorf("%w: %q", core.ErrCyclicResultReference, name)
	}
	chain, ok := c.recipe.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownResult, name)
	}
	return c.once(key, core.KindResult, func() (core.Value, error) {
		c.logger.Debug("evaluating result", "result", name)
		return c.runChain(ctx, sc.entering(key).isolated(), chain)
	})
}

func (c *EvalContext) resolveSelf(sc scope) (core.Value, error) {
	v, ok := sc.stack.top()
	if !ok {
		return nil, fmt.Errorf("%w: no active evaluation object", core.ErrInvalidSelfReference)
	}
	return v, nil
}

// resolveCollection resolves each element in order. Self references and
// nested collections see the enclosing active object, every other element is
// resolved with an empty stack.
func (c *EvalContext) resolveCollection(ctx context.Context, sc scope, ref core.CollectionRef) (core.Value, error) {
	elems := ref.Elements()
	out := make([]core.Value, len(elems))
	for i, el := range elems {
		esc := sc
		switch el.(type) {
		case core.SelfRef, core.CollectionRef:
		default:
			esc = sc.isolated()
		}
		v, err := c.resolve(ctx, esc, el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return core.NewCollectionValue(out...), nil
}

// callerDependent reports whether the property reads the active object of
// whoever resolves the concept. Such concepts are not memoized.
func (c *EvalContext) callerDependent(key string, prop *core.Property) bool {
	c.mu.Lock()
	d, ok := c.dependent[key]
	c.mu.Unlock()
	if ok {
		return d
	}

	d = c.propertyDependsOnCaller(prop, map[string]bool{key: true})
	c.mu.Lock()
	c.dependent[key] = d
	c.mu.Unlock()
	return d
}

func (c *EvalContext) propertyDependsOnCaller(prop *core.Property, visiting map[string]bool) bool {
	for _, op := range prop.Operands {
		if c.refDependsOnCaller(op.Ref, visiting) {
			return true
		}
	}
	return false
}

func (c *EvalContext) refDependsOnCaller(ref core.Reference, visiting map[string]bool) bool {
	switch r := ref.(type) {
	case core.SelfRef:
		return true
	case core.CollectionRef:
		for _, el := range r.Elements() {
			switch el.(type) {
			case core.SelfRef, core.CollectionRef:
				if c.refDependsOnCaller(el, visiting) {
					return true
				}
			}
		}
	case core.ConceptRef:
		def, err := c.mapping.LookupConcept(r.Path())
		if err != nil {
			return false
		}
		prop, err := def.EffectiveProperty(r.Property())
		if err != nil {
			return false
		}
		key := r.WithProperty(prop.Name).Key()
		if visiting[key] {
			return false
		}
		visiting[key] = true
		return c.propertyDependsOnCaller(prop, visiting)
	}
	return false
}
