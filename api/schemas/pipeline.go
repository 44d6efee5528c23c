package schemas

import "encoding/json"

// -- Pipeline Schemas --

// PipelineKind identifies one of the five analysis stages. The enumeration is
// closed: an unknown kind reaching the executor is treated as a stage failure,
// never a crash.
type PipelineKind string

// Constants for the five stage identifiers, in canonical execution order.
const (
	KindAliasMapping       PipelineKind = "alias-mapping"       // Username/handle correlation for a single identity.
	KindMetadataExtraction PipelineKind = "metadata-extraction" // File and document metadata recovery.
	KindImageFaceAnalysis  PipelineKind = "image-face-analysis" // Face detection and matching over image targets.
	KindGeoIPLookup        PipelineKind = "geo-ip-lookup"       // Network origin and geolocation lookups.
	KindDeepfakeDetection  PipelineKind = "deepfake-detection"  // Synthetic-media likelihood scoring.
)

// AllPipelineKinds returns the full stage set in canonical execution order.
// The returned slice is a fresh copy; callers may reorder or trim it.
func AllPipelineKinds() []PipelineKind {
	return []PipelineKind{
		KindAliasMapping,
		KindMetadataExtraction,
		KindImageFaceAnalysis,
		KindGeoIPLookup,
		KindDeepfakeDetection,
	}
}

// displayNames maps each kind to its operator-facing label.
var displayNames = map[PipelineKind]string{
	KindAliasMapping:       "Alias Mapping",
	KindMetadataExtraction: "Metadata Extraction",
	KindImageFaceAnalysis:  "Image & Face Analysis",
	KindGeoIPLookup:        "Geo/IP Lookup",
	KindDeepfakeDetection:  "Deepfake Detection",
}

// DisplayName returns the human-readable label for the kind, falling back to
// the raw identifier for kinds outside the closed set.
func (k PipelineKind) DisplayName() string {
	if name, ok := displayNames[k]; ok {
		return name
	}
	return string(k)
}

// Valid reports whether the kind belongs to the closed enumeration.
func (k PipelineKind) Valid() bool {
	_, ok := displayNames[k]
	return ok
}

// PipelineStatus is the lifecycle state of a single pipeline within an
// investigation.
type PipelineStatus string

// Pipeline lifecycle states. A pipeline always passes through "running"
// before reaching a terminal state.
const (
	PipelinePending   PipelineStatus = "pending"
	PipelineRunning   PipelineStatus = "running"
	PipelineCompleted PipelineStatus = "completed"
	PipelineError     PipelineStatus = "error"
)

// Terminal reports whether the status is one of the two terminal states.
func (s PipelineStatus) Terminal() bool {
	return s == PipelineCompleted || s == PipelineError
}

// StageStatus qualifies the outcome recorded inside a StageResult. A runner
// that resolves with StagePartial still completes its pipeline; the partial
// marker is informational.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageError   StageStatus = "error"
	StagePartial StageStatus = "partial"
)

// StageResult is the immutable output of one stage runner invocation. It is
// attached to exactly one Pipeline and never mutated afterwards.
type StageResult struct {
	Status StageStatus `json:"status"`

	// Items holds the opaque result records produced by the runner. The core
	// only counts them; their shape belongs to each runner.
	Items []json.RawMessage `json:"items"`

	ExecutionTimeMs int64 `json:"execution_time_ms"` // Wall-clock cost of the runner call.

	// Confidence is the runner's aggregate confidence in its items, in [0,1].
	Confidence float64 `json:"confidence"`

	Sources []string `json:"sources"` // The intelligence sources consulted.

	// Errors records per-item failures for partial results.
	Errors []string `json:"errors,omitempty"`
}

// Pipeline is the externally observable state of one stage within an
// investigation. Instances handed out by the core are snapshots; mutation
// happens only inside the investigation record.
type Pipeline struct {
	ID          PipelineKind   `json:"id"`
	DisplayName string         `json:"display_name"`
	Status      PipelineStatus `json:"status"`

	// Progress is a 0-100 estimate. While running it is monotonically
	// non-decreasing and capped at 90 until the real result arrives; it is
	// exactly 100 iff the pipeline completed, and reset to 0 on error.
	Progress float64 `json:"progress"`

	// Result is set iff Status == PipelineCompleted.
	Result *StageResult `json:"result,omitempty"`

	// ErrorMessage is set iff Status == PipelineError.
	ErrorMessage string `json:"error_message,omitempty"`
}
