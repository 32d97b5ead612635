package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/lisahligono/semantique/internal/dag"
	"github.com/lisahligono/semantique/pkg/core"
)

// Node ID prefixes of the dependency graph.
const (
	resultPrefix  = "result:"
	conceptPrefix = "concept:"
	layerPrefix   = "layer:"
)

// Plan is the static dependency structure of a recipe. It is built without
// fetching any data.
type Plan struct {
	// Graph has one node per result, concept signature and layer. An edge
	// from A to B means B needs A.
	Graph *dag.Graph
	// Missing lists unknown results and paths absent from the mapping or
	// layout, in discovery order.
	Missing []error
	// Cycle is the first dependency cycle found, or nil.
	Cycle []string
}

// Plan analyses recipe: every referenced concept and layer must exist, every
// referenced result must be defined and the references must not form a cycle.
func (e *Engine) Plan(recipe *core.Recipe) *Plan {
	p := &planner{
		mapping: e.mapping,
		layout:  e.layout,
		recipe:  recipe,
		graph:   dag.NewGraph(),
		seen:    make(map[string]bool),
		missing: make(map[string]bool),
	}
	plan := &Plan{Graph: p.graph}
	if recipe == nil {
		return plan
	}

	for _, name := range recipe.Names() {
		p.graph.AddNode(resultPrefix + name)
	}
	for _, entry := range recipe.Entries() {
		p.walkChain(resultPrefix+entry.Name, entry.Chain)
	}

	plan.Missing = p.errs
	if has, path := p.graph.HasCycle(); has {
		plan.Cycle = path
	}
	return plan
}

// Focus restricts the plan to the named result, everything it depends on and
// every result depending on it.
func (p *Plan) Focus(name string) (*Plan, error) {
	id := resultPrefix + name
	if !p.Graph.Has(id) {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownResult, name)
	}
	ids := append(p.Graph.Upstream(id), p.Graph.Downstream(id)...)
	sub := p.Graph.Subgraph(append(ids, id))

	focused := &Plan{Graph: sub, Missing: p.Missing}
	if has, path := sub.HasCycle(); has {
		focused.Cycle = path
	}
	return focused, nil
}

// Err joins every problem found, or returns nil for a sound recipe.
func (p *Plan) Err() error {
	errs := append([]error(nil), p.Missing...)
	if p.Cycle != nil {
		errs = append(errs, p.cycleError())
	}
	return errors.Join(errs...)
}

func (p *Plan) cycleError() error {
	sentinel := core.ErrCyclicConceptReference
	for _, id := range p.Cycle {
		if strings.HasPrefix(id, resultPrefix) {
			sentinel = core.ErrCyclicResultReference
			break
		}
	}
	return fmt.Errorf("%w: %w", sentinel, &dag.CycleError{Path: p.Cycle})
}

// ResultLevels groups the recipe entries so that every entry only depends on
// entries of earlier levels.
func (p *Plan) ResultLevels() ([][]string, error) {
	if p.Cycle != nil {
		return nil, p.cycleError()
	}
	levels, err := p.Graph.Levels()
	if err != nil {
		return nil, err
	}

	var out [][]string
	for _, level := range levels {
		var names []string
		for _, id := range level {
			if name, ok := strings.CutPrefix(id, resultPrefix); ok {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			out = append(out, names)
		}
	}
	return out, nil
}

// Upstream returns the node IDs the named result transitively depends on.
func (p *Plan) Upstream(name string) []string {
	return p.Graph.Upstream(resultPrefix + name)
}

// Dependencies returns the results the named result references directly.
func (p *Plan) Dependencies(name string) []string {
	return resultNames(p.Graph.Dependencies(resultPrefix + name))
}

// UsedBy returns the results referencing the named result directly.
func (p *Plan) UsedBy(name string) []string {
	return resultNames(p.Graph.Dependents(resultPrefix + name))
}

func resultNames(ids []string) []string {
	var out []string
	for _, id := range ids {
		if name, ok := strings.CutPrefix(id, resultPrefix); ok {
			out = append(out, name)
		}
	}
	return out
}

type planner struct {
	mapping core.MappingIndex
	layout  core.LayoutIndex
	recipe  *core.Recipe
	graph   *dag.Graph
	seen    map[string]bool
	missing map[string]bool
	errs    []error
}

func (p *planner) fail(ref core.Reference, err error) {
	err = &core.ResolutionError{Ref: ref, Err: err}
	if p.missing[err.Error()] {
		return
	}
	p.missing[err.Error()] = true
	p.errs = append(p.errs, err)
}

func (p *planner) walkChain(owner string, chain core.Chain) {
	p.walkRef(owner, chain.Ref)
	for _, call := range chain.Verbs {
		for _, arg := range call.Args {
			p.walkArg(owner, arg)
		}
	}
}

func (p *planner) walkArg(owner string, arg any) {
	switch a := arg.(type) {
	case core.Chain:
		p.walkChain(owner, a)
	case core.Reference:
		p.walkRef(owner, a)
	case []any:
		for _, el := range a {
			p.walkArg(owner, el)
		}
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(a)) {
			p.walkArg(owner, a[k])
		}
	}
}

func (p *planner) walkRef(owner string, ref core.Reference) {
	switch r := ref.(type) {
	case core.ConceptRef:
		def, err := p.mapping.LookupConcept(r.Path())
		if err != nil {
			p.fail(r, err)
			return
		}
		prop, err := def.EffectiveProperty(r.Property())
		if err != nil {
			p.fail(r, err)
			return
		}
		id := conceptPrefix + strings.Join(r.Path(), "/") + "#" + prop.Name
		p.graph.AddNode(id)
		_ = p.graph.AddEdge(id, owner)
		if p.seen[id] {
			return
		}
		p.seen[id] = true
		for _, op := range prop.Operands {
			p.walkChain(id, op)
		}
	case core.LayerRef:
		if _, err := p.layout.LookupLayer(r.Path()); err != nil {
			p.fail(r, err)
			return
		}
		id := layerPrefix + strings.Join(r.Path(), "/")
		p.graph.AddNode(id)
		_ = p.graph.AddEdge(id, owner)
	case core.ResultRef:
		if !p.recipe.Has(r.Name()) {
			p.fail(r, fmt.Errorf("%w: %q", core.ErrUnknownResult, r.Name()))
			return
		}
		_ = p.graph.AddEdge(resultPrefix+r.Name(), owner)
	case core.CollectionRef:
		for _, el := range r.Elements() {
			p.walkRef(owner, el)
		}
	}
}
