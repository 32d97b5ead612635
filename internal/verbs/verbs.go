// Package verbs is the built-in verb engine. It implements core.VerbEngine
// with a small set of array verbs: evaluate, reduce, filter, merge and name.
//
// Verbs never modify their inputs: the active value may be shared with the
// resolver's memo cache.
package verbs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lisahligono/semantique/pkg/core"
)

// Func implements one verb.
type Func func(ctx context.Context, active core.Value, args []any) (core.Value, error)

// Engine dispatches verb calls by name.
type Engine struct {
	mu     sync.RWMutex
	verbs  map[string]Func
	logger *slog.Logger
}

// New creates an engine with the built-in verbs registered.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{verbs: make(map[string]Func), logger: logger}
	e.Register("evaluate", evaluate)
	e.Register("reduce", reduce)
	e.Register("filter", filter)
	e.Register("merge", merge)
	e.Register("name", name)
	return e
}

// Register adds or replaces a verb.
func (e *Engine) Register(verb string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verbs[verb] = fn
}

// Names returns the registered verb names (sorted).
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.verbs))
	for n := range e.verbs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply implements core.VerbEngine.
func (e *Engine) Apply(ctx context.Context, active core.Value, verb string, args []any) (core.Value, error) {
	e.mu.RLock()
	fn, ok := e.verbs[verb]
	e.mu.RUnlock()
	if !ok {
		return nil, &UnknownVerbError{Verb: verb, Available: e.Names()}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.logger.Debug("applying verb", "verb", verb, "args", len(args))
	return fn(ctx, active, args)
}

// UnknownVerbError is returned when a chain names a verb that is not registered.
type UnknownVerbError struct {
	Verb      string
	Available []string
}

func (e *UnknownVerbError) Error() string {
	return fmt.Sprintf("unknown verb %q (available: %v)", e.Verb, e.Available)
}

var _ core.VerbEngine = (*Engine)(nil)

// name renames the active array.
func name(_ context.Context, active core.Value, args []any) (core.Value, error) {
	arr, err := core.AsArray(active)
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("name takes 1 argument, got %d", len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("name must be a string, got %T", args[0])
	}
	out := arr.Clone()
	out.Name = s
	return out, nil
}

// stringArg returns args[i] as a string, or def when absent.
func stringArg(args []any, i int, def string) (string, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d must be a string, got %T", i, args[i])
	}
	return s, nil
}

// toArray turns an operand into an array. Numbers and booleans become scalars.
func toArray(v any) (*core.Array, error) {
	switch t := v.(type) {
	case *core.Array:
		return t, nil
	case *core.Collection:
		return nil, fmt.Errorf("expected an array operand, got a collection")
	case float64:
		return core.Scalar(t), nil
	case int:
		return core.Scalar(float64(t)), nil
	case bool:
		return core.Scalar(boolf(t)), nil
	default:
		return nil, fmt.Errorf("unsupported operand type %T", v)
	}
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
