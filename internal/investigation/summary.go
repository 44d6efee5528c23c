package investigation

import (
	"time"

	"github.com/vantrace/ferret-cli/api/schemas"
)

// Summarize computes the roll-up statistics for an investigation snapshot.
// It is a pure function: safe to call at any point in the lifecycle,
// including before execution starts and concurrently with a run. Average
// confidence is exactly 0 when no pipeline has completed.
func Summarize(snap schemas.Investigation, now time.Time) schemas.InvestigationSummary {
	summary := schemas.InvestigationSummary{
		TotalPipelines: len(snap.Pipelines),
	}

	var confidenceSum float64
	for _, p := range snap.Pipelines {
		if p.Status != schemas.PipelineCompleted || p.Result == nil {
			continue
		}
		summary.CompletedPipelines++
		summary.TotalResultItems += len(p.Result.Items)
		confidenceSum += p.Result.Confidence
	}
	if summary.CompletedPipelines > 0 {
		summary.AverageConfidence = confidenceSum / float64(summary.CompletedPipelines)
	}

	end := now
	if snap.EndedAt != nil {
		end = *snap.EndedAt
	}
	if d := end.Sub(snap.StartedAt); d > 0 {
		summary.DurationMs = d.Milliseconds()
	}
	return summary
}
