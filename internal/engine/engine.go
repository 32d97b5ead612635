// Package engine resolves semantic references and evaluates query recipes.
// It threads the active evaluation object through processing chains,
// memoizes concept, layer and result resolutions per evaluation and detects
// structural errors such as missing paths and reference cycles.
package engine

import (
	"errors"
	"log/slog"
	"runtime"

	"github.com/lisahligono/semantique/internal/metrics"
	"github.com/lisahligono/semantique/internal/state"
	"github.com/lisahligono/semantique/pkg/core"
)

// Engine evaluates recipes against a mapping, a layout, a data cube and a
// verb engine.
type Engine struct {
	mapping core.MappingIndex
	layout  core.LayoutIndex
	cube    core.DataCube
	verbs   core.VerbEngine

	parallel bool
	workers  int

	store    state.Store
	runLabel string

	logger  *slog.Logger
	metrics *metrics.Collector
}

// Config holds engine configuration.
type Config struct {
	// Mapping resolves concept paths (required)
	Mapping core.MappingIndex
	// Layout resolves layer paths (required)
	Layout core.LayoutIndex
	// Cube fetches layer data (required)
	Cube core.DataCube
	// Verbs applies chain verbs (required)
	Verbs core.VerbEngine

	// Parallel evaluates independent entries concurrently
	Parallel bool
	// Workers bounds the number of concurrent entries (default GOMAXPROCS)
	Workers int

	// Store records each evaluation as a run (optional)
	Store state.Store
	// RunLabel is stored with each recorded run
	RunLabel string

	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Metrics collects resolution counters (optional)
	Metrics *metrics.Collector
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Mapping == nil:
		return nil, errors.New("engine requires a mapping index")
	case cfg.Layout == nil:
		return nil, errors.New("engine requires a layout index")
	case cfg.Cube == nil:
		return nil, errors.New("engine requires a data cube")
	case cfg.Verbs == nil:
		return nil, errors.New("engine requires a verb engine")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	logger.Debug("initializing engine", "parallel", cfg.Parallel, "workers", workers, "record", cfg.Store != nil)

	return &Engine{
		mapping:  cfg.Mapping,
		layout:   cfg.Layout,
		cube:     cfg.Cube,
		verbs:    cfg.Verbs,
		parallel: cfg.Parallel,
		workers:  workers,
		store:    cfg.Store,
		runLabel: cfg.RunLabel,
		logger:   logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Workers returns the concurrency bound of parallel evaluations.
func (e *Engine) Workers() int { return e.workers }
