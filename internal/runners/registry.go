// Package runners provides the built-in stage runner implementations and the
// registry the executor resolves them from. Every runner is self-contained and
// deterministic: analysis is derived from the targets themselves, so the tool
// works offline and results are reproducible.
package runners

import (
	"go.uber.org/zap"

	"github.com/vantrace/ferret-cli/api/schemas"
)

// Registry maps pipeline kinds to their runner implementations. It is built
// once during bootstrap and read-only afterwards, so lookups need no lock.
type Registry struct {
	targets    map[schemas.PipelineKind]schemas.StageRunner
	identities map[schemas.PipelineKind]schemas.IdentityRunner
}

// NewRegistry wires the default runner for every supported pipeline kind.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "runners"))

	reg := &Registry{
		targets:    make(map[schemas.PipelineKind]schemas.StageRunner),
		identities: make(map[schemas.PipelineKind]schemas.IdentityRunner),
	}
	reg.identities[schemas.KindAliasMapping] = NewAliasMapper(logger)
	reg.registerTarget(NewMetadataExtractor(logger))
	reg.registerTarget(NewFaceAnalyzer(logger))
	reg.registerTarget(NewGeoIPLookup(logger))
	reg.registerTarget(NewDeepfakeDetector(logger))
	return reg
}

func (r *Registry) registerTarget(runner schemas.StageRunner) {
	r.targets[runner.Kind()] = runner
}

// TargetRunner resolves the list-signature runner for kind, if one exists.
func (r *Registry) TargetRunner(kind schemas.PipelineKind) (schemas.StageRunner, bool) {
	runner, ok := r.targets[kind]
	return runner, ok
}

// IdentityRunner resolves the single-subject runner for kind, if one exists.
func (r *Registry) IdentityRunner(kind schemas.PipelineKind) (schemas.IdentityRunner, bool) {
	runner, ok := r.identities[kind]
	return runner, ok
}
