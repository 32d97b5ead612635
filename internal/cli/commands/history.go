package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lisahligono/semantique/internal/cli/output"
	"github.com/lisahligono/semantique/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded evaluation runs",
		Long: `List the runs recorded with "eval --record", most recent first.
With a run ID, show the results of that run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string, limit int) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStateStore(ctx, cc.Cfg.StatePath, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var runs []*state.Run
	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		runs = []*state.Run{run}
	} else if runs, err = store.ListRuns(ctx, limit); err != nil {
		return err
	}

	out := output.HistoryOutput{Runs: make([]output.RunOutput, 0, len(runs))}
	for _, run := range runs {
		ro := output.RunOutput{
			ID:          run.ID,
			Label:       run.Label,
			Status:      string(run.Status),
			StartedAt:   run.StartedAt,
			CompletedAt: run.CompletedAt,
			Error:       run.Error,
		}
		if len(args) == 1 {
			results, err := store.ListResults(ctx, run.ID)
			if err != nil {
				return err
			}
			for _, rr := range results {
				ro.Results = append(ro.Results, resultRunOutput(rr))
			}
		}
		out.Runs = append(out.Runs, ro)
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}
	if len(out.Runs) == 0 {
		r.Muted("No runs recorded. Use eval --record to record one.")
		return nil
	}
	if len(args) == 1 {
		return runDetail(r, out.Runs[0])
	}

	rows := make([][]string, len(out.Runs))
	for i, ro := range out.Runs {
		rows[i] = []string{ro.ID, ro.Label, ro.Status, ro.StartedAt.Local().Format(time.DateTime), runDuration(ro), ro.Error}
	}
	r.Table([]string{"Run", "Label", "Status", "Started", "Duration", "Error"}, rows)
	return nil
}

func runDetail(r *output.Renderer, ro output.RunOutput) error {
	if r.EffectiveMode() == output.ModeText {
		r.Header(1, "Run "+ro.ID)
	} else {
		r.Println(output.FormatHeader(1, "Run "+ro.ID))
		r.Println("")
	}
	r.Println(output.FormatKeyValue("Status", ro.Status))
	r.Println(output.FormatKeyValue("Started", ro.StartedAt.Local().Format(time.DateTime)))
	if ro.Label != "" {
		r.Println(output.FormatKeyValue("Label", ro.Label))
	}
	if ro.Error != "" {
		r.Println(output.FormatKeyValue("Error", ro.Error))
	}
	r.Println("")
	resultTable(r, ro.Results)
	return nil
}

func runDuration(ro output.RunOutput) string {
	if ro.CompletedAt == nil {
		return ""
	}
	return ro.CompletedAt.Sub(ro.StartedAt).Round(time.Millisecond).String()
}

// resultRunOutput converts a recorded result to its output form. Only the
// shape and the number of valid cells are recorded.
func resultRunOutput(rr *state.ResultRun) output.ResultOutput {
	res := output.ResultOutput{
		Name:       rr.Name,
		Status:     string(rr.Status),
		Dims:       rr.Dims,
		Shape:      rr.Shape,
		Error:      rr.Error,
		DurationMS: output.Millis(rr.Duration),
	}
	if rr.Status == state.ResultStatusSuccess && (len(rr.Dims) > 0 || rr.ValidCells > 0) {
		count := 1
		for _, n := range rr.Shape {
			count *= n
		}
		res.Stats = &output.StatsOutput{Count: count, Valid: rr.ValidCells}
	}
	return res
}

