// Package engine drives every pipeline of a single investigation to a
// terminal status, strictly in order, one at a time. All effects are state
// mutations on the investigation record; stage-level errors never escape the
// executor boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vantrace/ferret-cli/api/schemas"
	"github.com/vantrace/ferret-cli/internal/config"
	"github.com/vantrace/ferret-cli/internal/investigation"
)

// Executor runs investigations sequentially. Stage runners are resolved
// through the injected registry; an unknown kind is an ordinary stage
// failure, not a crash.
type Executor struct {
	cfg      config.EngineConfig
	logger   *zap.Logger
	registry schemas.RunnerRegistry
}

// New creates an Executor. All dependencies are required.
func New(cfg config.EngineConfig, logger *zap.Logger, registry schemas.RunnerRegistry) (*Executor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("runner registry cannot be nil")
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 500 * time.Millisecond
	}
	return &Executor{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "executor")),
		registry: registry,
	}, nil
}

// Execute drives every pipeline of inv to a terminal status in declaration
// order. It returns when all pipelines are terminal, or earlier when the
// investigation is stopped between stages; an in-flight stage call is never
// cancelled by stop, only by ctx or the per-stage timeout.
func (e *Executor) Execute(ctx context.Context, inv *investigation.Investigation, q schemas.StructuredQuery) {
	logger := e.logger.With(zap.String("investigation_id", inv.ID()))
	logger.Info("Starting sequential execution",
		zap.Int("pipelines", inv.PipelineCount()),
		zap.Strings("targets", q.Targets),
	)

	for i := 0; i < inv.PipelineCount(); i++ {
		if inv.Stopped() {
			logger.Warn("Investigation stopped, abandoning remaining pipelines", zap.Int("next_index", i))
			return
		}
		e.runStage(ctx, logger, inv, i, q)
	}

	if inv.Finalize() {
		snap := inv.Snapshot()
		logger.Info("Execution finished",
			zap.String("status", string(snap.Status)),
			zap.String("summary", snap.Summary),
		)
	}
}

// runStage executes the single pipeline at index i: mark running, simulate
// progress, invoke the runner, record the outcome. The progress simulator is
// stopped on every exit path.
func (e *Executor) runStage(ctx context.Context, logger *zap.Logger, inv *investigation.Investigation, i int, q schemas.StructuredQuery) {
	kind, err := inv.KindAt(i)
	if err != nil {
		logger.Error("Pipeline index out of range, skipping", zap.Error(err))
		return
	}
	stageLogger := logger.With(zap.String("pipeline", string(kind)))

	if err := inv.StartPipeline(i); err != nil {
		stageLogger.Error("Failed to mark pipeline running", zap.Error(err))
		return
	}
	stageLogger.Info("Pipeline started")

	sim := startProgressSimulator(e.cfg.ProgressInterval, func(delta float64) {
		inv.AdvanceProgress(i, delta)
	})
	// The simulator must die with the stage, on every exit path. A leaked
	// ticker goroutine here is a defect.
	defer sim.Stop()

	result, err := e.invokeRunner(ctx, kind, q)
	if err != nil {
		sim.Stop()
		if failErr := inv.FailPipeline(i, err.Error()); failErr != nil {
			stageLogger.Error("Failed to record stage failure", zap.Error(failErr))
			return
		}
		stageLogger.Warn("Pipeline failed, continuing with remaining stages", zap.Error(err))
		return
	}

	sim.Stop()
	if err := inv.CompletePipeline(i, result); err != nil {
		stageLogger.Error("Failed to record stage completion", zap.Error(err))
		return
	}
	stageLogger.Info("Pipeline completed",
		zap.Int("items", len(result.Items)),
		zap.Float64("confidence", result.Confidence),
	)
}

// invokeRunner resolves and calls the stage runner for kind, bridging the
// single-subject signature of identity runners and applying the per-stage
// timeout. The call suspends the executor until the runner resolves; no other
// pipeline advances during the wait.
func (e *Executor) invokeRunner(ctx context.Context, kind schemas.PipelineKind, q schemas.StructuredQuery) (*schemas.StageResult, error) {
	stageCtx := ctx
	if timeout := e.stageTimeout(q); timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if runner, ok := e.registry.TargetRunner(kind); ok {
		result, err := runner.Run(stageCtx, q.Targets)
		return checkResult(kind, result, err)
	}
	if runner, ok := e.registry.IdentityRunner(kind); ok {
		identity := schemas.SentinelTarget
		if len(q.Targets) > 0 {
			identity = q.Targets[0]
		}
		result, err := runner.RunIdentity(stageCtx, identity)
		return checkResult(kind, result, err)
	}
	return nil, fmt.Errorf("no stage runner registered for pipeline kind %q", kind)
}

// stageTimeout picks the effective timeout: the query option wins, then the
// engine default, then unbounded.
func (e *Executor) stageTimeout(q schemas.StructuredQuery) time.Duration {
	if q.Options.TimeoutMs > 0 {
		return time.Duration(q.Options.TimeoutMs) * time.Millisecond
	}
	return e.cfg.StageTimeout
}

// checkResult normalizes the runner contract: resolving with a nil result is
// a stage failure, not a completion.
func checkResult(kind schemas.PipelineKind, result *schemas.StageResult, err error) (*schemas.StageResult, error) {
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("stage runner for %q resolved without a result", kind)
	}
	return result, nil
}
