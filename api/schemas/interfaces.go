package schemas

import "context"

// -- Stage Runner Contracts --

// StageRunner is the uniform contract for a stage's real work: given the
// investigation's target list, produce a StageResult or fail. Runners are
// opaque to the core and independently swappable; a failure is isolated to
// the owning pipeline.
type StageRunner interface {
	// Kind identifies which pipeline this runner serves.
	Kind() PipelineKind
	// Run executes the analysis. Implementations must honor ctx cancellation
	// and deadlines.
	Run(ctx context.Context, targets []string) (*StageResult, error)
}

// IdentityRunner is the single-subject variant of the runner contract, used
// by alias mapping, which operates on one identity rather than the target
// list. The executor bridges the signature mismatch by passing the first
// target, or the sentinel "unknown" when the list is empty.
type IdentityRunner interface {
	Kind() PipelineKind
	RunIdentity(ctx context.Context, identity string) (*StageResult, error)
}

// RunnerRegistry resolves pipeline kinds to runners. Exactly one of the two
// lookups succeeds for a registered kind.
type RunnerRegistry interface {
	// TargetRunner returns the list-signature runner for the kind, if any.
	TargetRunner(kind PipelineKind) (StageRunner, bool)
	// IdentityRunner returns the single-subject runner for the kind, if any.
	IdentityRunner(kind PipelineKind) (IdentityRunner, bool)
}

// -- Realtime Channel Contract --

// RealtimeChannel is the notification transport scoped to one investigation's
// lifetime. The core depends only on this connect/disconnect contract; the
// transport and inbound message semantics belong to the adapter.
type RealtimeChannel interface {
	// Connect opens the channel for the given investigation. It is called
	// once per investigation, before execution begins.
	Connect(ctx context.Context, investigationID string) error
	// Disconnect tears the channel down. It must be idempotent; the session
	// guarantees it is invoked on stop and on investigation replacement.
	Disconnect() error
	// On registers a handler for a named inbound event. Registration is
	// allowed before or after Connect.
	On(event string, handler func(payload []byte))
}
