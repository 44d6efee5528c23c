package schemas

// -- Query Schemas --

// SentinelTarget is the fallback subject used when a query carries no
// extractable target. Both the parser and the executor's single-subject
// bridge rely on it.
const SentinelTarget = "unknown"

// Priority indicates how urgently an investigation should be treated by
// downstream consumers. The values are lowercase to align with the wire format.
type Priority string

// Constants defining the supported priority levels.
const (
	PriorityLow    Priority = "low"    // Background work, no urgency.
	PriorityMedium Priority = "medium" // Default priority for new queries.
	PriorityHigh   Priority = "high"   // Operator flagged the query as urgent.
)

// QueryOptions carries per-investigation execution options extracted from the
// submitted query.
type QueryOptions struct {
	// HumanReview requests that results be held for operator review before
	// being acted on. The core records it; enforcement is a consumer concern.
	HumanReview bool `json:"human_review"`

	Priority Priority `json:"priority"` // Urgency hint for consumers.

	// TimeoutMs bounds each individual stage call. Zero disables the bound.
	TimeoutMs int64 `json:"timeout_ms"`
}

// StructuredQuery is the parsed form of a free-text investigation request.
// It is produced once by the query parser and immutable thereafter; the
// executor owns it for the duration of a single run.
type StructuredQuery struct {
	RawText string `json:"raw_text"` // The original query as typed by the operator.

	// Targets is the ordered list of investigation subjects (emails, file
	// paths, IPs, domains, handles). Never empty: the parser falls back to
	// the sentinel target "unknown".
	Targets []string `json:"targets"`

	// PipelineKinds selects which stages run, in canonical execution order.
	// Empty means the parser found no stage keywords; callers should treat
	// that as the full set.
	PipelineKinds []PipelineKind `json:"pipeline_kinds"`

	Options QueryOptions `json:"options"`
}
