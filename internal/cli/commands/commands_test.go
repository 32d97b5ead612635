package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisahligono/semantique/internal/cli/output"
	clitest "github.com/lisahligono/semantique/internal/cli/testutil"
	"github.com/lisahligono/semantique/internal/engine"
	"github.com/lisahligono/semantique/internal/state"
	"github.com/lisahligono/semantique/internal/testutil"
	"github.com/lisahligono/semantique/pkg/core"
)

func TestNewEvalCommand(t *testing.T) {
	cmd := NewEvalCommand()

	assert.Equal(t, "eval [recipe]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"parallel", "workers", "record", "metrics-file", "label", "watch"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewHistoryCommand(t *testing.T) {
	cmd := NewHistoryCommand()

	assert.Equal(t, "history [run-id]", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("limit"))
}

func TestNewDepsCommand(t *testing.T) {
	cmd := NewDepsCommand()

	assert.Equal(t, "deps [recipe]", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("upstream"))
	assert.NotNil(t, cmd.Flags().Lookup("result"))
}

// execute runs cmd in dir, the project root.
func execute(t *testing.T, dir string, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	t.Chdir(dir)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestEval_JSON(t *testing.T) {
	dir := testutil.WriteProject(t)
	t.Setenv("SEMANTIQUE_OUTPUT", "json")

	out, err := execute(t, dir, NewEvalCommand())
	require.NoError(t, err)

	var got output.EvalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Results, 3)
	assert.Equal(t, output.EvalSummary{Total: 3, Succeeded: 3, Failed: 0, DurationMS: got.Summary.DurationMS}, got.Summary)
	assert.Empty(t, got.RunID, "runs are only recorded on request")

	water := got.Results[0]
	assert.Equal(t, "water", water.Name)
	assert.Equal(t, "success", water.Status)
	assert.Equal(t, []string{"x"}, water.Dims)
	assert.Equal(t, []int{4}, water.Shape)
	require.NotNil(t, water.Stats)
	assert.Equal(t, 4, water.Stats.Valid)
	assert.InDelta(t, 0.75, *water.Stats.Mean, 1e-9)

	count := got.Results[1]
	assert.Equal(t, "water_count", count.Name)
	assert.Empty(t, count.Dims)
	assert.InDelta(t, 3.0, *count.Stats.Max, 1e-9)

	cloudy := got.Results[2]
	assert.Equal(t, 3, cloudy.Stats.Valid, "the missing cloud pixel stays missing")
	assert.Equal(t, 4, cloudy.Stats.Count)
}

func TestEval_FailuresAreReported(t *testing.T) {
	dir := testutil.WriteProject(t)
	testutil.WriteFile(t, dir, "broken.yaml", `fire:
  reference: {type: concept, reference: [entity, fire]}
water:
  reference: {type: concept, reference: [entity, water]}
`)
	t.Setenv("SEMANTIQUE_OUTPUT", "markdown")

	out, err := execute(t, dir, NewEvalCommand(), "broken.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResultsFailed))
	assert.Contains(t, err.Error(), "1 of 2")

	assert.Contains(t, out, "# Results")
	assert.Contains(t, out, "| fire | failed |")
	assert.Contains(t, out, "| water | success | x=4 |")
}

func TestEval_RecordsAndMetrics(t *testing.T) {
	dir := testutil.WriteProject(t)
	t.Setenv("SEMANTIQUE_OUTPUT", "json")

	out, err := execute(t, dir, NewEvalCommand(), "--record", "--label", "nightly", "--metrics-file", "metrics.prom")
	require.NoError(t, err)

	var got output.EvalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotEmpty(t, got.RunID)

	metrics, err := os.ReadFile(filepath.Join(dir, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "semantique_datacube_fetches_total 2")

	out, err = execute(t, dir, NewHistoryCommand(), got.RunID)
	require.NoError(t, err)

	var hist output.HistoryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Len(t, hist.Runs, 1)
	assert.Equal(t, got.RunID, hist.Runs[0].ID)
	assert.Equal(t, "nightly", hist.Runs[0].Label)
	assert.Equal(t, string(state.RunStatusCompleted), hist.Runs[0].Status)
	require.Len(t, hist.Runs[0].Results, 3)
	assert.Equal(t, "water", hist.Runs[0].Results[0].Name)
	assert.Equal(t, 4, hist.Runs[0].Results[0].Stats.Valid)
}

func TestHistory_Empty(t *testing.T) {
	dir := testutil.WriteProject(t)
	t.Setenv("SEMANTIQUE_OUTPUT", "markdown")

	out, err := execute(t, dir, NewHistoryCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		dir := testutil.WriteProject(t)
		t.Setenv("SEMANTIQUE_OUTPUT", "markdown")

		out, err := execute(t, dir, NewValidateCommand())
		require.NoError(t, err)
		assert.Contains(t, out, "Recipe is valid: 3 results")
	})

	t.Run("problems", func(t *testing.T) {
		dir := testutil.WriteProject(t)
		testutil.WriteFile(t, dir, "recipe.yaml", `a:
  reference: {type: result, name: b}
b:
  reference: {type: result, name: a}
c:
  reference: {type: layer, reference: [appearance, nope]}
`)
		t.Setenv("SEMANTIQUE_OUTPUT", "json")

		out, err := execute(t, dir, NewValidateCommand())
		require.ErrorIs(t, err, ErrInvalidRecipe)

		var got output.ValidateOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.False(t, got.Valid)
		assert.Equal(t, 3, got.Results)
		assert.Len(t, got.Errors, 2)
		assert.Equal(t, []string{"result:a", "result:b", "result:a"}, got.Cycle)
	})
}

func TestDeps(t *testing.T) {
	dir := testutil.WriteProject(t)
	t.Setenv("SEMANTIQUE_OUTPUT", "json")

	out, err := execute(t, dir, NewDepsCommand(), "--upstream")
	require.NoError(t, err)

	var got output.DepsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Levels, 2)
	assert.Equal(t, 0, got.Levels[0].Level)
	assert.Len(t, got.Levels[0].Results, 2)

	last := got.Levels[1].Results
	require.Len(t, last, 1)
	assert.Equal(t, "water_count", last[0].Name)
	assert.Equal(t, []string{"water"}, last[0].DependsOn)
	assert.Contains(t, last[0].Upstream, "layer:appearance/colortype")

	var water output.DepsNode
	for _, node := range got.Levels[0].Results {
		if node.Name == "water" {
			water = node
		}
	}
	assert.Equal(t, []string{"water_count"}, water.UsedBy)
}

func TestDeps_Result(t *testing.T) {
	dir := testutil.WriteProject(t)
	t.Setenv("SEMANTIQUE_OUTPUT", "markdown")

	out, err := execute(t, dir, NewDepsCommand(), "--result", "water")
	require.NoError(t, err)
	assert.Contains(t, out, "- water\n  - used by: water_count")
	assert.Contains(t, out, "- water_count\n  - depends on: water")
	assert.NotContains(t, out, "cloudy")

	_, err = execute(t, dir, NewDepsCommand(), "--result", "nope")
	assert.ErrorIs(t, err, core.ErrUnknownResult)
}

func TestRenderEval_Text(t *testing.T) {
	r := clitest.NewTestRendererText()
	arr, err := core.NewArray("water", []string{"x"}, []int{2}, []float64{1, 0})
	require.NoError(t, err)
	resp := &engine.Response{
		RunID: "run-1",
		Outcomes: []engine.Outcome{
			{Name: "water", Value: arr},
			{Name: "both", Value: core.NewCollectionValue(arr, arr)},
		},
	}

	require.NoError(t, renderEval(r.Renderer, resp, time.Second))
	assert.Contains(t, r.Output(), "Results")
	assert.Contains(t, r.Output(), "valid 2/2, min 0, mean 0.5, max 1")
	assert.Contains(t, r.Output(), "collection[2]")
	assert.Contains(t, r.Output(), "Recorded as run run-1")
	assert.Contains(t, r.Output(), "2 results evaluated in 1s")
	assert.Empty(t, r.ErrorOutput())
}

func TestOutcomeOutput(t *testing.T) {
	failed := outcomeOutput(engine.Outcome{Name: "a", Err: core.ErrUnknownResult, Duration: 2 * time.Millisecond})
	assert.Equal(t, "failed", failed.Status)
	assert.Equal(t, core.ErrUnknownResult.Error(), failed.Error)
	assert.Equal(t, int64(2), failed.DurationMS)
	assert.Nil(t, failed.Stats)

	empty, err := core.NewArray("e", []string{"x"}, []int{1}, []float64{math.NaN()})
	require.NoError(t, err)
	res := outcomeOutput(engine.Outcome{Name: "e", Value: empty})
	require.NotNil(t, res.Stats)
	assert.Nil(t, res.Stats.Mean, "no valid cell gives no statistics")
}

func TestWatchLoop(t *testing.T) {
	dir := t.TempDir()
	recipe := testutil.WriteFile(t, dir, "recipe.yaml", "{}\n")

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer func() { _ = watcher.Close() }()
	require.NoError(t, watcher.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, watcher, []string{recipe}, 10*time.Millisecond, func(changed string) {
			changes <- changed
		})
	}()

	testutil.WriteFile(t, dir, "notes.txt", "ignored")
	testutil.WriteFile(t, dir, "recipe.yaml", "a: {reference: {type: self}}\n")

	select {
	case changed := <-changes:
		assert.Equal(t, recipe, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}
