package core

import (
	"fmt"
	"slices"
	"strings"
)

// VerbCall is one step of a processing chain. Args holds literals,
// References and nested Chains.
type VerbCall struct {
	Name string
	Args []any
}

// Chain starts from a reference and applies verbs in order.
type Chain struct {
	Ref   Reference
	Verbs []VerbCall
}

// NewChain starts a chain at ref.
func NewChain(ref Reference) Chain {
	return Chain{Ref: ref}
}

// Then returns a copy of the chain with one more verb appended.
func (c Chain) Then(verb string, args ...any) Chain {
	verbs := make([]VerbCall, len(c.Verbs), len(c.Verbs)+1)
	copy(verbs, c.Verbs)
	verbs = append(verbs, VerbCall{Name: verb, Args: slices.Clone(args)})
	return Chain{Ref: c.Ref, Verbs: verbs}
}

// Validate checks that the chain and every nested argument is well formed.
func (c Chain) Validate() error {
	if c.Ref == nil {
		return fmt.Errorf("%w: chain has no initial reference", ErrInvalidReference)
	}
	for i, v := range c.Verbs {
		if strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("verb %d has no name", i)
		}
		for j, arg := range v.Args {
			if err := validateArg(arg); err != nil {
				return fmt.Errorf("verb %q argument %d: %w", v.Name, j, err)
			}
		}
	}
	return nil
}

func validateArg(arg any) error {
	switch a := arg.(type) {
	case Chain:
		return a.Validate()
	case []any:
		for i, el := range a {
			if err := validateArg(el); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case map[string]any:
		for k, el := range a {
			if err := validateArg(el); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
	}
	return nil
}

// Entry is a named result of a recipe.
type Entry struct {
	Name  string
	Chain Chain
}

// Recipe is an ordered set of uniquely named results.
type Recipe struct {
	entries []Entry
	index   map[string]int
}

// NewRecipe builds a recipe from entries, rejecting duplicates and malformed chains.
func NewRecipe(entries ...Entry) (*Recipe, error) {
	r := &Recipe{}
	for _, e := range entries {
		if err := r.Add(e.Name, e.Chain); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a result. Names must be unique.
func (r *Recipe) Add(name string, chain Chain) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("recipe result name is empty")
	}
	if _, exists := r.index[name]; exists {
		return fmt.Errorf("duplicate recipe result %q", name)
	}
	if err := chain.Validate(); err != nil {
		return fmt.Errorf("recipe result %q: %w", name, err)
	}
	if r.index == nil {
		r.index = make(map[string]int)
	}
	r.index[name] = len(r.entries)
	r.entries = append(r.entries, Entry{Name: name, Chain: chain})
	return nil
}

// Get returns the chain of the named result.
func (r *Recipe) Get(name string) (Chain, bool) {
	if r == nil {
		return Chain{}, false
	}
	i, ok := r.index[name]
	if !ok {
		return Chain{}, false
	}
	return r.entries[i].Chain, true
}

// Has reports whether the recipe defines the named result.
func (r *Recipe) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the result names in recipe order.
func (r *Recipe) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns the results in recipe order.
func (r *Recipe) Entries() []Entry {
	return slices.Clone(r.entries)
}

// Len returns the number of results.
func (r *Recipe) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}
