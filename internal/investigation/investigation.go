// Package investigation holds the mutable record behind one end-to-end
// investigation run: the investigation-level and per-pipeline state machines
// and their invariants. All mutation goes through the methods here, under a
// single lock, and every external read is a deep-copy snapshot, so no partial
// stage write is ever observable outside.
package investigation

import (
	"fmt"
	"sync"
	"time"

	"github.com/vantrace/ferret-cli/api/schemas"
)

// progressCeiling caps simulated progress until the real stage result lands.
const progressCeiling = 90

// fallbackStageError is recorded when a runner fails without a message.
const fallbackStageError = "stage failed without detail"

// Investigation is the single mutable record for one run. Create with New;
// the zero value is not usable.
type Investigation struct {
	mu sync.Mutex

	id        string
	queryText string
	status    schemas.InvestigationStatus
	startedAt time.Time
	endedAt   *time.Time
	pipelines []schemas.Pipeline
	summary   string

	// stopped is latched by Stop. Once set, the executor's finalize step is
	// skipped and the status stamped by Stop is never overwritten.
	stopped bool
}

// New creates an active investigation with one pending pipeline per kind, in
// the given execution order.
func New(id, queryText string, kinds []schemas.PipelineKind) *Investigation {
	pipelines := make([]schemas.Pipeline, len(kinds))
	for i, kind := range kinds {
		pipelines[i] = schemas.Pipeline{
			ID:          kind,
			DisplayName: kind.DisplayName(),
			Status:      schemas.PipelinePending,
			Progress:    0,
		}
	}
	return &Investigation{
		id:        id,
		queryText: queryText,
		status:    schemas.InvestigationActive,
		startedAt: time.Now().UTC(),
		pipelines: pipelines,
	}
}

// ID returns the investigation's identifier.
func (inv *Investigation) ID() string {
	return inv.id
}

// PipelineCount returns the number of pipelines, fixed at creation.
func (inv *Investigation) PipelineCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.pipelines)
}

// KindAt returns the kind of the pipeline at index i.
func (inv *Investigation) KindAt(i int) (schemas.PipelineKind, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if i < 0 || i >= len(inv.pipelines) {
		return "", fmt.Errorf("pipeline index %d out of range [0,%d)", i, len(inv.pipelines))
	}
	return inv.pipelines[i].ID, nil
}

// Snapshot returns a deep copy of the externally observable state.
func (inv *Investigation) Snapshot() schemas.Investigation {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	snap := schemas.Investigation{
		ID:        inv.id,
		QueryText: inv.queryText,
		Status:    inv.status,
		StartedAt: inv.startedAt,
		Summary:   inv.summary,
		Pipelines: make([]schemas.Pipeline, len(inv.pipelines)),
	}
	copy(snap.Pipelines, inv.pipelines)
	if inv.endedAt != nil {
		ended := *inv.endedAt
		snap.EndedAt = &ended
	}
	return snap
}

// Stopped reports whether Stop has been called.
func (inv *Investigation) Stopped() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.stopped
}

// StartPipeline transitions the pipeline at index i from pending to running.
// A pipeline never skips this transition on its way to a terminal state.
func (inv *Investigation) StartPipeline(i int) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	p, err := inv.pipelineAt(i)
	if err != nil {
		return err
	}
	if p.Status != schemas.PipelinePending {
		return fmt.Errorf("pipeline %s: cannot start from status %q", p.ID, p.Status)
	}
	p.Status = schemas.PipelineRunning
	p.Progress = 0
	return nil
}

// AdvanceProgress raises the running pipeline's progress estimate by delta,
// clamped to the simulated ceiling. Progress never decreases, and calls
// against a non-running pipeline are ignored: the simulator may race the
// stage's terminal transition by one tick.
func (inv *Investigation) AdvanceProgress(i int, delta float64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	p, err := inv.pipelineAt(i)
	if err != nil || p.Status != schemas.PipelineRunning || delta <= 0 {
		return
	}
	p.Progress += delta
	if p.Progress > progressCeiling {
		p.Progress = progressCeiling
	}
}

// CompletePipeline transitions the pipeline at index i from running to
// completed, forcing progress to 100 and attaching the result.
func (inv *Investigation) CompletePipeline(i int, result *schemas.StageResult) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	p, err := inv.pipelineAt(i)
	if err != nil {
		return err
	}
	if p.Status != schemas.PipelineRunning {
		return fmt.Errorf("pipeline %s: cannot complete from status %q", p.ID, p.Status)
	}
	if result == nil {
		return fmt.Errorf("pipeline %s: completion requires a result", p.ID)
	}
	p.Status = schemas.PipelineCompleted
	p.Progress = 100
	p.Result = result
	p.ErrorMessage = ""
	return nil
}

// FailPipeline transitions the pipeline at index i from running to error,
// resetting progress and recording the failure message.
func (inv *Investigation) FailPipeline(i int, message string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	p, err := inv.pipelineAt(i)
	if err != nil {
		return err
	}
	if p.Status != schemas.PipelineRunning {
		return fmt.Errorf("pipeline %s: cannot fail from status %q", p.ID, p.Status)
	}
	if message == "" {
		message = fallbackStageError
	}
	p.Status = schemas.PipelineError
	p.Progress = 0
	p.Result = nil
	p.ErrorMessage = message
	return nil
}

// Finalize sets the investigation's terminal status and ratio summary after
// every pipeline has reached a terminal state. It reports false without
// mutating anything when the investigation was stopped first: the status and
// endedAt stamped by Stop stand.
func (inv *Investigation) Finalize() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.stopped {
		return false
	}

	completed := 0
	for _, p := range inv.pipelines {
		if p.Status == schemas.PipelineCompleted {
			completed++
		}
	}

	if completed == len(inv.pipelines) {
		inv.status = schemas.InvestigationCompleted
	} else {
		inv.status = schemas.InvestigationError
	}
	inv.summary = fmt.Sprintf("%d/%d pipelines successful", completed, len(inv.pipelines))
	inv.stampEnded()
	return true
}

// Toggle flips the investigation between active and paused. On a terminal
// status it is a no-op; the current status is returned either way.
func (inv *Investigation) Toggle() schemas.InvestigationStatus {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	switch inv.status {
	case schemas.InvestigationActive:
		inv.status = schemas.InvestigationPaused
	case schemas.InvestigationPaused:
		inv.status = schemas.InvestigationActive
	}
	return inv.status
}

// Stop freezes the investigation: status forced to paused, endedAt stamped.
// It reports whether this call was the one that stopped it, so the caller can
// release the realtime channel exactly once.
func (inv *Investigation) Stop() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.stopped {
		return false
	}
	inv.stopped = true
	inv.status = schemas.InvestigationPaused
	inv.stampEnded()
	return true
}

// pipelineAt returns a pointer into the pipeline slice. Callers hold the lock.
func (inv *Investigation) pipelineAt(i int) (*schemas.Pipeline, error) {
	if i < 0 || i >= len(inv.pipelines) {
		return nil, fmt.Errorf("pipeline index %d out of range [0,%d)", i, len(inv.pipelines))
	}
	return &inv.pipelines[i], nil
}

// stampEnded sets endedAt exactly once. Callers hold the lock.
func (inv *Investigation) stampEnded() {
	if inv.endedAt == nil {
		now := time.Now().UTC()
		inv.endedAt = &now
	}
}
