package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	version, err := store.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// idempotent
	require.NoError(t, store.Migrate(ctx))

	for _, table := range []string{"runs", "result_runs"} {
		rows, err := store.db.QueryContext(ctx, "SELECT 1 FROM "+table+" LIMIT 1")
		require.NoError(t, err, "table %s does not exist", table)
		_ = rows.Close()
	}
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	_, err := store.CreateRun(ctx, "x")
	assert.Error(t, err)
	_, err = store.ListRuns(ctx, 1)
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name       string
		status     RunStatus
		errMsg     string
		wantStatus RunStatus
	}{
		{"completed", RunStatusCompleted, "", RunStatusCompleted},
		{"partial", RunStatusPartial, "1 of 2 results failed", RunStatusPartial},
		{"failed", RunStatusFailed, "all results failed", RunStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)
			ctx := context.Background()

			run, err := store.CreateRun(ctx, "recipe.yaml")
			require.NoError(t, err)
			assert.NotEmpty(t, run.ID)
			assert.Equal(t, RunStatusRunning, run.Status)

			require.NoError(t, store.CompleteRun(ctx, run.ID, tt.status, tt.errMsg))

			got, err := store.GetRun(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, "recipe.yaml", got.Label)
			assert.Equal(t, tt.errMsg, got.Error)
			assert.Equal(t, run.StartedAt, got.StartedAt)
			require.NotNil(t, got.CompletedAt)
		})
	}
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetRun(ctx, "missing")
	assert.ErrorContains(t, err, "run not found")
	assert.Error(t, store.CompleteRun(ctx, "missing", RunStatusCompleted, ""))
}

func TestSQLiteStore_Results(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, "")
	require.NoError(t, err)

	require.NoError(t, store.RecordResult(ctx, &ResultRun{
		RunID:    run.ID,
		Name:     "count",
		Position: 1,
		Status:   ResultStatusFailed,
		Duration: 3 * time.Millisecond,
		Error:    "unknown result",
	}))
	water := &ResultRun{
		RunID:      run.ID,
		Name:       "water",
		Position:   0,
		Status:     ResultStatusSuccess,
		Dims:       []string{"time", "y", "x"},
		Shape:      []int{2, 3, 4},
		ValidCells: 20,
		Duration:   15 * time.Millisecond,
	}
	require.NoError(t, store.RecordResult(ctx, water))
	assert.NotEmpty(t, water.ID)

	results, err := store.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "water", results[0].Name, "results are ordered by position")
	assert.Equal(t, []string{"time", "y", "x"}, results[0].Dims)
	assert.Equal(t, []int{2, 3, 4}, results[0].Shape)
	assert.Equal(t, 20, results[0].ValidCells)
	assert.Equal(t, 15*time.Millisecond, results[0].Duration)

	assert.Equal(t, ResultStatusFailed, results[1].Status)
	assert.Equal(t, "unknown result", results[1].Error)
	assert.Empty(t, results[1].Dims)
}

func TestSQLiteStore_ResultRequiresRun(t *testing.T) {
	store := setupTestStore(t)

	err := store.RecordResult(context.Background(), &ResultRun{RunID: "nope", Name: "x", Status: ResultStatusSuccess})
	assert.Error(t, err, "foreign keys are enforced")
}

func TestSQLiteStore_ListRunsFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)

	var ids []string
	for range 3 {
		run, err := store.CreateRun(ctx, "")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID, "newest first")
	assert.Equal(t, ids[1], runs[1].ID)

	all, err := reopened.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
