package output

import (
	"math"
	"time"
)

// EvalOutput is the JSON output of the eval command.
type EvalOutput struct {
	RunID   string         `json:"run_id,omitempty"`
	Results []ResultOutput `json:"results"`
	Summary EvalSummary    `json:"summary"`
}

// EvalSummary counts the entries of an evaluation.
type EvalSummary struct {
	Total      int   `json:"total"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	DurationMS int64 `json:"duration_ms"`
}

// ResultOutput is one evaluated recipe entry.
type ResultOutput struct {
	Name       string       `json:"name"`
	Status     string       `json:"status"`
	Kind       string       `json:"kind,omitempty"`
	Dims       []string     `json:"dims,omitempty"`
	Shape      []int        `json:"shape,omitempty"`
	Elements   int          `json:"elements,omitempty"`
	Stats      *StatsOutput `json:"stats,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

// StatsOutput summarizes an array. Statistics are null when no cell is valid.
type StatsOutput struct {
	Count int      `json:"count"`
	Valid int      `json:"valid"`
	Min   *float64 `json:"min"`
	Mean  *float64 `json:"mean"`
	Max   *float64 `json:"max"`
}

// Finite returns a pointer to v, or nil for NaN and infinities.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Millis converts a duration to milliseconds.
func Millis(d time.Duration) int64 {
	return d.Milliseconds()
}

// ValidateOutput is the JSON output of the validate command.
type ValidateOutput struct {
	Valid   bool     `json:"valid"`
	Results int      `json:"results"`
	Errors  []string `json:"errors,omitempty"`
	Cycle   []string `json:"cycle,omitempty"`
}

// DepsOutput is the JSON output of the deps command.
type DepsOutput struct {
	Levels []DepsLevel `json:"levels"`
}

// DepsLevel is one execution level.
type DepsLevel struct {
	Level   int        `json:"level"`
	Results []DepsNode `json:"results"`
}

// DepsNode is a result with its direct and transitive dependencies.
type DepsNode struct {
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on,omitempty"`
	UsedBy    []string `json:"used_by,omitempty"`
	Upstream  []string `json:"upstream,omitempty"`
}

// HistoryOutput is the JSON output of the history command.
type HistoryOutput struct {
	Runs []RunOutput `json:"runs"`
}

// RunOutput is one recorded run.
type RunOutput struct {
	ID          string         `json:"id"`
	Label       string         `json:"label,omitempty"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Results     []ResultOutput `json:"results,omitempty"`
}
