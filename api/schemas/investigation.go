package schemas

import "time"

// -- Investigation Schemas --

// InvestigationStatus is the lifecycle state of a whole investigation.
type InvestigationStatus string

// Investigation lifecycle states. "completed" and "error" are terminal and
// reached only through the executor's finalize step; "paused" is resumable.
const (
	InvestigationActive    InvestigationStatus = "active"
	InvestigationCompleted InvestigationStatus = "completed"
	InvestigationPaused    InvestigationStatus = "paused"
	InvestigationError     InvestigationStatus = "error"
)

// Terminal reports whether the status can no longer change through toggle.
func (s InvestigationStatus) Terminal() bool {
	return s == InvestigationCompleted || s == InvestigationError
}

// Investigation is a point-in-time snapshot of one end-to-end run of the
// pipeline sequence for a single submitted query. Snapshots are deep copies;
// holding one never observes later mutations.
type Investigation struct {
	ID        string              `json:"id"`
	QueryText string              `json:"query_text"`
	Status    InvestigationStatus `json:"status"`
	StartedAt time.Time           `json:"started_at"`

	// EndedAt is set exactly once, when execution finishes or the
	// investigation is explicitly stopped.
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// Pipelines in execution order, fixed at creation.
	Pipelines []Pipeline `json:"pipelines"`

	// Summary is the one-line success-ratio report, set at finalize.
	Summary string `json:"summary,omitempty"`
}

// InvestigationSummary is the derived roll-up over an investigation's
// completed pipelines. It is recomputed on request, never stored.
type InvestigationSummary struct {
	TotalPipelines     int `json:"total_pipelines"`
	CompletedPipelines int `json:"completed_pipelines"`
	TotalResultItems   int `json:"total_result_items"`

	// AverageConfidence is the mean result confidence over completed
	// pipelines, and exactly 0 when none have completed.
	AverageConfidence float64 `json:"average_confidence"`

	DurationMs int64 `json:"duration_ms"`
}
