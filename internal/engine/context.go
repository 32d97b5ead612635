package engine

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lisahligono/semantique/internal/metrics"
	"github.com/lisahligono/semantique/pkg/core"
)

type memoEntry struct {
	value core.Value
	err   error
}

// EvalContext holds the state of one recipe evaluation: the collaborators,
// the recipe and the memo cache. It is safe for concurrent use by the
// entries of that evaluation and must not be reused across runs.
type EvalContext struct {
	recipe  *core.Recipe
	mapping core.MappingIndex
	layout  core.LayoutIndex
	cube    core.DataCube
	verbs   core.VerbEngine
	logger  *slog.Logger
	metrics *metrics.Collector

	mu        sync.Mutex
	memo      map[string]memoEntry
	dependent map[string]bool
	flight    singleflight.Group
}

// NewContext creates an evaluation context for recipe. A nil recipe is
// treated as empty.
func (e *Engine) NewContext(recipe *core.Recipe) *EvalContext {
	if recipe == nil {
		recipe, _ = core.NewRecipe()
	}
	return &EvalContext{
		recipe:    recipe,
		mapping:   e.mapping,
		layout:    e.layout,
		cube:      e.cube,
		verbs:     e.verbs,
		logger:    e.logger,
		metrics:   e.metrics,
		memo:      make(map[string]memoEntry),
		dependent: make(map[string]bool),
	}
}

// Resolve resolves a reference outside of any chain. A self reference fails
// with core.ErrInvalidSelfReference.
func (c *EvalContext) Resolve(ctx context.Context, ref core.Reference) (core.Value, error) {
	return c.resolve(ctx, newScope(), ref)
}

// Run executes a processing chain outside of any other chain.
func (c *EvalContext) Run(ctx context.Context, chain core.Chain) (core.Value, error) {
	return c.runChain(ctx, newScope(), chain)
}

// Cached reports whether a signature has a memoized outcome.
func (c *EvalContext) Cached(ref core.Reference) bool {
	_, ok := c.lookup(ref.Key())
	return ok
}

func (c *EvalContext) lookup(key string) (memoEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.memo[key]
	return e, ok
}

// once returns the memoized outcome of key, computing it at most once.
// Failures are memoized as well.
func (c *EvalContext) once(key string, kind core.Kind, compute func() (core.Value, error)) (core.Value, error) {
	if e, ok := c.lookup(key); ok {
		c.metrics.CacheHit(string(kind))
		c.logger.Debug("memo hit", "kind", kind, "key", key)
		return e.value, e.err
	}

	v, _, _ := c.flight.Do(key, func() (any, error) {
		if e, ok := c.lookup(key); ok {
			return e, nil
		}
		val, err := compute()
		e := memoEntry{value: val, err: err}
		c.mu.Lock()
		c.memo[key] = e
		c.mu.Unlock()
		if err != nil {
			c.metrics.Failed(string(kind))
		} else {
			c.metrics.Resolved(string(kind))
		}
		return e, nil
	})
	e := v.(memoEntry)
	return e.value, e.err
}
