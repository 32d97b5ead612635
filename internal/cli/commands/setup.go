package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lisahligono/semantique/internal/cli/output"
	"github.com/lisahligono/semantique/internal/config"
	"github.com/lisahligono/semantique/internal/engine"
	"github.com/lisahligono/semantique/internal/loader"
	"github.com/lisahligono/semantique/internal/metrics"
	"github.com/lisahligono/semantique/internal/state"
	"github.com/lisahligono/semantique/internal/verbs"
	"github.com/lisahligono/semantique/pkg/datacube"
	"github.com/lisahligono/semantique/pkg/datacubes/memory"

	// Register the SQL data cube drivers.
	_ "github.com/lisahligono/semantique/pkg/datacubes/sqlcube"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds the context from the configuration loaded by the
// root command. Commands run on their own load the configuration from flags.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		var err error
		if cfg, err = config.Load("", cmd.Flags()); err != nil {
			return nil, err
		}
	}
	mode := output.Mode(cfg.OutputFormat)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}, nil
}

// Paths returns the project files named by the configuration.
func (c *CommandContext) Paths() loader.Paths {
	return loader.Paths{
		Recipe:  c.Cfg.Recipe,
		Mapping: c.Cfg.Mapping,
		Layout:  c.Cfg.Layout,
	}
}

// LoadProject loads the recipe, mapping and layout.
func (c *CommandContext) LoadProject() (*loader.Project, error) {
	return loader.LoadProject(c.Paths(), c.Logger)
}

// EngineOptions are per-invocation engine settings.
type EngineOptions struct {
	Metrics  *metrics.Collector
	RunLabel string
}

// OpenEngine opens the configured data cube and, when recording, the state
// store, and creates an engine over project. The cleanup function must be
// called (typically via defer).
func (c *CommandContext) OpenEngine(ctx context.Context, project *loader.Project, opts EngineOptions) (*engine.Engine, func(), error) {
	cube, err := datacube.Open(ctx, c.Cfg.DataCube, c.Logger)
	if err != nil {
		return nil, nil, err
	}

	var store state.Store
	if c.Cfg.Record {
		s, err := openStateStore(ctx, c.Cfg.StatePath, c.Logger)
		if err != nil {
			_ = cube.Close()
			return nil, nil, err
		}
		store = s
	}

	cleanup := func() {
		_ = cube.Close()
		if store != nil {
			_ = store.Close()
		}
	}

	eng, err := engine.New(engine.Config{
		Mapping:  project.Mapping,
		Layout:   project.Layout,
		Cube:     cube,
		Verbs:    verbs.New(c.Logger),
		Parallel: c.Cfg.Parallel,
		Workers:  c.Cfg.Workers,
		Store:    store,
		RunLabel: opts.RunLabel,
		Logger:   c.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return eng, cleanup, nil
}

// PlanningEngine creates an engine for static analysis. Planning never
// fetches data, so no data cube is opened.
func (c *CommandContext) PlanningEngine(project *loader.Project) (*engine.Engine, error) {
	return engine.New(engine.Config{
		Mapping: project.Mapping,
		Layout:  project.Layout,
		Cube:    memory.New(c.Logger),
		Verbs:   verbs.New(c.Logger),
		Logger:  c.Logger,
	})
}

func openStateStore(ctx context.Context, path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	stateDir := filepath.Dir(path)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return state.OpenSQLite(ctx, path, logger)
}

// useRecipeArg replaces the configured recipe by the positional argument,
// resolved against the working directory.
func useRecipeArg(cc *CommandContext, args []string) error {
	if len(args) == 0 {
		return nil
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid recipe path: %w", err)
	}
	cc.Cfg.Recipe = abs
	return nil
}
