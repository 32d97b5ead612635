// Package state records the history of recipe evaluations in SQLite.
// Each evaluation is a run; each recipe entry of a run is a result run.
package state

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses. A partial run finished with at least one failed entry.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// ResultStatus is the outcome of one recipe entry.
type ResultStatus string

// Result statuses.
const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusFailed  ResultStatus = "failed"
)

// Run is one recipe evaluation.
type Run struct {
	ID          string
	Label       string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// ResultRun is the recorded outcome of one recipe entry.
type ResultRun struct {
	ID         string
	RunID      string
	Name       string
	Position   int
	Status     ResultStatus
	Dims       []string
	Shape      []int
	ValidCells int
	Duration   time.Duration
	Error      string
}

// Store persists runs and their results.
type Store interface {
	CreateRun(ctx context.Context, label string) (*Run, error)
	RecordResult(ctx context.Context, result *ResultRun) error
	CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListResults(ctx context.Context, runID string) ([]*ResultRun, error)
	Close() error
}
