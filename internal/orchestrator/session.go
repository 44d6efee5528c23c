// Package orchestrator manages the high-level lifecycle of investigations. A
// session owns at most one investigation at a time; starting a new one tears
// the previous one down first. It is injected with fully configured engine
// components via interfaces, keeping it decoupled and testable.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vantrace/ferret-cli/api/schemas"
	"github.com/vantrace/ferret-cli/internal/investigation"
)

// ErrNoInvestigation is returned by operations that need an active
// investigation when the session has never started one.
var ErrNoInvestigation = errors.New("no investigation in session")

// Executor runs an investigation's pipeline sequence to completion.
type Executor interface {
	Execute(ctx context.Context, inv *investigation.Investigation, q schemas.StructuredQuery)
}

// Session coordinates one investigation at a time: bootstrap, realtime
// channel lifetime, executor hand-off and teardown.
type Session struct {
	logger   *zap.Logger
	executor Executor
	channel  schemas.RealtimeChannel

	mu      sync.Mutex
	current *run

	wg sync.WaitGroup
}

// run pairs an investigation with its one-shot channel release. The channel
// is released exactly once per run, whether the run finishes on its own or is
// stopped from outside.
type run struct {
	inv     *investigation.Investigation
	release sync.Once
}

// New creates a session. All dependencies are required.
func New(logger *zap.Logger, executor Executor, channel schemas.RealtimeChannel) (*Session, error) {
	if logger == nil || executor == nil || channel == nil {
		return nil, fmt.Errorf("cannot initialize session with nil dependencies")
	}
	return &Session{
		logger:   logger.With(zap.String("component", "session")),
		executor: executor,
		channel:  channel,
	}, nil
}

// Start bootstraps a new investigation from the structured query and launches
// its execution in the background. Any previous investigation is stopped and
// its channel released first. A channel connect failure is a bootstrap
// failure: no investigation is created and the session keeps its prior state.
func (s *Session) Start(ctx context.Context, q schemas.StructuredQuery) (schemas.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(q.PipelineKinds) == 0 {
		return schemas.Investigation{}, fmt.Errorf("bootstrap: query selects no pipelines")
	}

	if s.current != nil {
		s.stopLocked(s.current)
	}

	id := uuid.New().String()
	if err := s.channel.Connect(ctx, id); err != nil {
		return schemas.Investigation{}, fmt.Errorf("bootstrap: connecting realtime channel: %w", err)
	}

	inv := investigation.New(id, q.RawText, q.PipelineKinds)
	r := &run{inv: inv}
	s.current = r

	s.logger.Info("investigation started",
		zap.String("investigation_id", id),
		zap.Int("pipelines", inv.PipelineCount()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executor.Execute(ctx, inv, q)
		s.releaseChannel(r)
	}()

	return inv.Snapshot(), nil
}

// Toggle flips the current investigation between active and paused and
// returns the resulting status. Terminal investigations are left untouched.
func (s *Session) Toggle() (schemas.InvestigationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return "", ErrNoInvestigation
	}
	status := s.current.inv.Toggle()
	s.logger.Info("investigation toggled",
		zap.String("investigation_id", s.current.inv.ID()),
		zap.String("status", string(status)))
	return status, nil
}

// Stop freezes the current investigation and releases its realtime channel.
// Calling it again, or after the run finished on its own, is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoInvestigation
	}
	s.stopLocked(s.current)
	return nil
}

// stopLocked stops a run and releases its channel. Callers hold s.mu.
func (s *Session) stopLocked(r *run) {
	if r.inv.Stop() {
		s.logger.Info("investigation stopped", zap.String("investigation_id", r.inv.ID()))
	}
	s.releaseChannel(r)
}

// Current returns a snapshot of the session's investigation.
func (s *Session) Current() (schemas.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return schemas.Investigation{}, ErrNoInvestigation
	}
	return s.current.inv.Snapshot(), nil
}

// Summary recomputes the roll-up over the current investigation's state.
func (s *Session) Summary() (schemas.InvestigationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return schemas.InvestigationSummary{}, ErrNoInvestigation
	}
	return investigation.Summarize(s.current.inv.Snapshot(), time.Now().UTC()), nil
}

// Wait blocks until the background execution of every started investigation
// has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) releaseChannel(r *run) {
	r.release.Do(func() {
		if err := s.channel.Disconnect(); err != nil {
			s.logger.Warn("releasing realtime channel", zap.Error(err))
		}
	})
}
