package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lisahligono/semantique/internal/cli/output"
	"github.com/lisahligono/semantique/internal/engine"
	"github.com/lisahligono/semantique/internal/metrics"
	"github.com/lisahligono/semantique/pkg/core"
)

// ErrResultsFailed is returned when at least one recipe result failed.
var ErrResultsFailed = errors.New("recipe results failed")

// EvalOptions holds options for the eval command.
type EvalOptions struct {
	Watch bool
	Label string
}

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	opts := &EvalOptions{}

	cmd := &cobra.Command{
		Use:   "eval [recipe]",
		Short: "Evaluate a query recipe",
		Long: `Evaluate every result of a query recipe against the configured mapping,
layout and data cube.

A failing result does not stop the others; the command exits with an error
when any result failed.`,
		Example: `  # Evaluate recipe.yaml from the project root
  semantique eval

  # Evaluate another recipe, independent results in parallel
  semantique eval recipes/water.yaml --parallel

  # Record the run and re-evaluate when a file changes
  semantique eval --record --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args, opts)
		},
	}

	cmd.Flags().Bool("parallel", false, "Evaluate independent results concurrently")
	cmd.Flags().Int("workers", 0, "Maximum concurrent results (default: number of CPUs)")
	cmd.Flags().Bool("record", false, "Record the run in the state database")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file after each evaluation")
	cmd.Flags().StringVar(&opts.Label, "label", "", "Label stored with the recorded run")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-evaluate when the recipe, mapping, layout or cube file changes")

	return cmd
}

func runEval(cmd *cobra.Command, args []string, opts *EvalOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if err := useRecipeArg(cc, args); err != nil {
		return err
	}

	if opts.Watch {
		return watchEval(cmd.Context(), cc, opts)
	}
	_, err = evalOnce(cmd.Context(), cc, opts)
	return err
}

// evalOnce loads the project, evaluates it and renders the outcomes.
func evalOnce(ctx context.Context, cc *CommandContext, opts *EvalOptions) (*engine.Response, error) {
	project, err := cc.LoadProject()
	if err != nil {
		return nil, err
	}

	collector := metrics.New()
	eng, cleanup, err := cc.OpenEngine(ctx, project, EngineOptions{Metrics: collector, RunLabel: opts.Label})
	if err != nil {
		return nil, err
	}
	defer cleanup()

	start := time.Now()
	resp, err := eng.Evaluate(ctx, project.Recipe)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if err := renderEval(cc.Renderer, resp, elapsed); err != nil {
		return resp, err
	}

	if cc.Cfg.MetricsFile != "" {
		if err := collector.WriteTextfile(cc.Cfg.MetricsFile); err != nil {
			return resp, err
		}
		cc.Logger.Debug("wrote metrics", "path", cc.Cfg.MetricsFile)
	}

	if failed := resp.Failed(); failed > 0 {
		return resp, fmt.Errorf("%w: %d of %d", ErrResultsFailed, failed, len(resp.Outcomes))
	}
	return resp, nil
}

func renderEval(r *output.Renderer, resp *engine.Response, elapsed time.Duration) error {
	results := make([]output.ResultOutput, len(resp.Outcomes))
	for i, o := range resp.Outcomes {
		results[i] = outcomeOutput(o)
	}
	failed := resp.Failed()

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(output.EvalOutput{
			RunID:   resp.RunID,
			Results: results,
			Summary: output.EvalSummary{
				Total:      len(results),
				Succeeded:  len(results) - failed,
				Failed:     failed,
				DurationMS: output.Millis(elapsed),
			},
		})
	}

	if r.EffectiveMode() == output.ModeText {
		r.Header(1, "Results")
	} else {
		r.Println(output.FormatHeader(1, "Results"))
		r.Println("")
	}
	resultTable(r, results)

	if resp.RunID != "" {
		r.Muted(fmt.Sprintf("Recorded as run %s", resp.RunID))
	}
	summary := fmt.Sprintf("%d results evaluated in %s", len(results), elapsed.Round(time.Millisecond))
	if failed > 0 {
		r.Warning(fmt.Sprintf("%d of %d results failed", failed, len(results)))
	} else {
		r.Success(summary)
	}
	return nil
}

// resultTable renders one row per result: its shape and summary, or its error.
func resultTable(r *output.Renderer, results []output.ResultOutput) {
	rows := make([][]string, len(results))
	for i, res := range results {
		rows[i] = []string{res.Name, res.Status, resultShape(res), resultSummary(res)}
	}
	r.Table([]string{"Result", "Status", "Shape", "Summary"}, rows)
}

func resultShape(res output.ResultOutput) string {
	switch {
	case res.Error != "":
		return ""
	case res.Kind == "collection":
		return fmt.Sprintf("collection[%d]", res.Elements)
	default:
		return output.FormatShape(res.Dims, res.Shape)
	}
}

func resultSummary(res output.ResultOutput) string {
	if res.Error != "" {
		return res.Error
	}
	if res.Stats == nil {
		return ""
	}
	parts := []string{fmt.Sprintf("valid %d/%d", res.Stats.Valid, res.Stats.Count)}
	for _, s := range []struct {
		label string
		v     *float64
	}{{"min", res.Stats.Min}, {"mean", res.Stats.Mean}, {"max", res.Stats.Max}} {
		if s.v != nil {
			parts = append(parts, s.label+" "+output.FormatNumber(*s.v))
		}
	}
	return strings.Join(parts, ", ")
}

// outcomeOutput converts an evaluation outcome to its output form.
func outcomeOutput(o engine.Outcome) output.ResultOutput {
	res := output.ResultOutput{
		Name:       o.Name,
		Status:     "success",
		DurationMS: output.Millis(o.Duration),
	}
	if o.Err != nil {
		res.Status = "failed"
		res.Error = o.Err.Error()
		return res
	}

	switch v := o.Value.(type) {
	case *core.Array:
		s := v.Summary()
		res.Kind = "array"
		res.Dims = v.Dims
		res.Shape = v.Shape
		res.Stats = &output.StatsOutput{
			Count: s.Count,
			Valid: s.Valid,
			Min:   output.Finite(s.Min),
			Mean:  output.Finite(s.Mean),
			Max:   output.Finite(s.Max),
		}
	case *core.Collection:
		res.Kind = "collection"
		res.Elements = v.Len()
	}
	return res
}
