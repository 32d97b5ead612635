package index

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/lisahligono/semantique/pkg/core"
)

// Mapping maps concept paths to their definitions.
type Mapping struct {
	mu       sync.RWMutex
	concepts map[string]*core.ConceptDefinition
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{concepts: make(map[string]*core.ConceptDefinition)}
}

type conceptSpec struct {
	Default     string                  `mapstructure:"default"`
	Description string                  `mapstructure:"description"`
	Properties  map[string]propertySpec `mapstructure:"properties"`
}

type propertySpec struct {
	Combine    string `mapstructure:"combine"`
	Expression string `mapstructure:"expression"`
	Operands   []any  `mapstructure:"operands"`
}

// MappingFromTree builds a mapping from a decoded YAML/JSON document.
func MappingFromTree(tree map[string]any) (*Mapping, error) {
	m := NewMapping()
	err := walk(tree, nil, "properties", func(path []string, leaf map[string]any) error {
		var spec conceptSpec
		if err := decodeLeaf(leaf, &spec); err != nil {
			return fmt.Errorf("invalid concept: %w", err)
		}
		def, err := spec.definition(path)
		if err != nil {
			return err
		}
		return m.Add(def)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping: %w", err)
	}
	return m, nil
}

func (s conceptSpec) definition(path []string) (*core.ConceptDefinition, error) {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	def := &core.ConceptDefinition{Path: slices.Clone(path), Default: s.Default}
	for _, name := range names {
		ps := s.Properties[name]
		prop := core.Property{
			Name:       name,
			Combine:    core.CombineRule(ps.Combine),
			Expression: ps.Expression,
		}
		for i, raw := range ps.Operands {
			chain, err := core.DecodeChain(raw)
			if err != nil {
				return nil, fmt.Errorf("property %q operand %d: %w", name, i, err)
			}
			prop.Operands = append(prop.Operands, chain)
		}
		def.Properties = append(def.Properties, prop)
	}
	return def, nil
}

// Add registers a concept definition, replacing any previous one at the same path.
func (m *Mapping) Add(def *core.ConceptDefinition) error {
	if len(def.Path) == 0 {
		return fmt.Errorf("concept definition has an empty path")
	}
	if def.Default != "" {
		if _, ok := def.Property(def.Default); !ok {
			return fmt.Errorf("default property %q is not defined", def.Default)
		}
	}
	for _, p := range def.Properties {
		if err := validateProperty(p); err != nil {
			return fmt.Errorf("property %q: %w", p.Name, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.concepts[pathKey(def.Path)] = def
	return nil
}

func validateProperty(p core.Property) error {
	if !p.Combine.Valid() {
		return fmt.Errorf("unknown combine rule %q", p.Combine)
	}
	if len(p.Operands) == 0 {
		return fmt.Errorf("no operands")
	}
	if p.Combine == core.CombineExpression && strings.TrimSpace(p.Expression) == "" {
		return fmt.Errorf("combine rule %q needs an expression", p.Combine)
	}
	if p.Combine == core.CombineNot && len(p.Operands) != 1 {
		return fmt.Errorf("combine rule %q takes exactly one operand, got %d", p.Combine, len(p.Operands))
	}
	for i, op := range p.Operands {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("operand %d: %w", i, err)
		}
	}
	return nil
}

// LookupConcept implements core.MappingIndex.
func (m *Mapping) LookupConcept(path []string) (*core.ConceptDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.concepts[pathKey(path)]
	if !ok {
		return nil, core.PathNotFound("mapping", path)
	}
	return def, nil
}

// Concepts returns the paths of all concepts, sorted.
func (m *Mapping) Concepts() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedPaths(m.concepts)
}

// Len returns the number of concepts.
func (m *Mapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.concepts)
}

var _ core.MappingIndex = (*Mapping)(nil)
