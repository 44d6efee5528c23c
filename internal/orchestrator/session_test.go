package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/vantrace/ferret-cli/api/schemas"
	"github.com/vantrace/ferret-cli/internal/investigation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockExecutor drives the investigation to a configurable terminal state, or
// blocks until released when blocking is set.
type mockExecutor struct {
	fail     bool
	blocking chan struct{}

	mu   sync.Mutex
	runs []string
}

func (e *mockExecutor) Execute(ctx context.Context, inv *investigation.Investigation, q schemas.StructuredQuery) {
	e.mu.Lock()
	e.runs = append(e.runs, inv.ID())
	e.mu.Unlock()

	if e.blocking != nil {
		<-e.blocking
	}
	for i := 0; i < inv.PipelineCount(); i++ {
		if inv.Stopped() {
			break
		}
		_ = inv.StartPipeline(i)
		if e.fail {
			_ = inv.FailPipeline(i, "runner rejected")
		} else {
			_ = inv.CompletePipeline(i, &schemas.StageResult{Status: schemas.StageSuccess, Confidence: 0.8})
		}
	}
	inv.Finalize()
}

// mockChannel records the connect/disconnect sequence.
type mockChannel struct {
	connectErr error

	mu          sync.Mutex
	connects    []string
	disconnects int
}

func (c *mockChannel) Connect(ctx context.Context, investigationID string) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects = append(c.connects, investigationID)
	return nil
}

func (c *mockChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *mockChannel) On(event string, handler func(payload []byte)) {}

func (c *mockChannel) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func sessionQuery() schemas.StructuredQuery {
	return schemas.StructuredQuery{
		RawText:       "check user@example.com",
		Targets:       []string{"user@example.com"},
		PipelineKinds: schemas.AllPipelineKinds(),
	}
}

func newSession(t *testing.T, exec Executor, ch *mockChannel) *Session {
	t.Helper()
	s, err := New(zap.NewNop(), exec, ch)
	require.NoError(t, err)
	return s
}

func TestNew_RejectsNilDependencies(t *testing.T) {
	_, err := New(nil, &mockExecutor{}, &mockChannel{})
	assert.Error(t, err)
	_, err = New(zap.NewNop(), nil, &mockChannel{})
	assert.Error(t, err)
	_, err = New(zap.NewNop(), &mockExecutor{}, nil)
	assert.Error(t, err)
}

func TestSession_StartRunsToCompletion(t *testing.T) {
	ch := &mockChannel{}
	s := newSession(t, &mockExecutor{}, ch)

	snap, err := s.Start(context.Background(), sessionQuery())
	require.NoError(t, err)
	assert.Equal(t, schemas.InvestigationActive, snap.Status)
	assert.Len(t, snap.Pipelines, 5)
	for _, p := range snap.Pipelines {
		assert.Equal(t, schemas.PipelinePending, p.Status)
	}

	s.Wait()

	current, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, schemas.InvestigationCompleted, current.Status)
	assert.Equal(t, "5/5 pipelines successful", current.Summary)

	ch.mu.Lock()
	assert.Equal(t, []string{snap.ID}, ch.connects, "channel scoped to the investigation id")
	ch.mu.Unlock()
	assert.Equal(t, 1, ch.disconnectCount(), "channel released once when the run finishes")
}

func TestSession_StartRejectsEmptyKindSet(t *testing.T) {
	s := newSession(t, &mockExecutor{}, &mockChannel{})
	q := sessionQuery()
	q.PipelineKinds = nil
	_, err := s.Start(context.Background(), q)
	assert.ErrorContains(t, err, "no pipelines")
}

func TestSession_ConnectFailureIsBootstrapFailure(t *testing.T) {
	ch := &mockChannel{connectErr: errors.New("endpoint unreachable")}
	s := newSession(t, &mockExecutor{}, ch)

	_, err := s.Start(context.Background(), sessionQuery())
	require.ErrorContains(t, err, "bootstrap")

	// No investigation may exist after a failed bootstrap.
	_, err = s.Current()
	assert.ErrorIs(t, err, ErrNoInvestigation)
	s.Wait()
	assert.Zero(t, ch.disconnectCount())
}

func TestSession_StopReleasesChannelExactlyOnce(t *testing.T) {
	release := make(chan struct{})
	exec := &mockExecutor{blocking: release}
	ch := &mockChannel{}
	s := newSession(t, exec, ch)

	snap, err := s.Start(context.Background(), sessionQuery())
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	current, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, schemas.InvestigationPaused, current.Status)
	require.NotNil(t, current.EndedAt, "endedAt stamped even with pipelines non-terminal")
	assert.Equal(t, snap.ID, current.ID)
	assert.Equal(t, 1, ch.disconnectCount(), "repeated stop must not release the channel twice")

	close(release)
	s.Wait()
	assert.Equal(t, 1, ch.disconnectCount(), "the finishing run must not release the stopped channel again")

	// Stop latched before any stage ran, so the executor started nothing and
	// finalize was skipped.
	current, err = s.Current()
	require.NoError(t, err)
	assert.Equal(t, schemas.InvestigationPaused, current.Status)
	assert.Empty(t, current.Summary)
}

func TestSession_StopWithoutInvestigation(t *testing.T) {
	s := newSession(t, &mockExecutor{}, &mockChannel{})
	assert.ErrorIs(t, s.Stop(), ErrNoInvestigation)
	_, err := s.Toggle()
	assert.ErrorIs(t, err, ErrNoInvestigation)
	_, err = s.Summary()
	assert.ErrorIs(t, err, ErrNoInvestigation)
}

func TestSession_Toggle(t *testing.T) {
	release := make(chan struct{})
	s := newSession(t, &mockExecutor{blocking: release}, &mockChannel{})

	_, err := s.Start(context.Background(), sessionQuery())
	require.NoError(t, err)

	status, err := s.Toggle()
	require.NoError(t, err)
	assert.Equal(t, schemas.InvestigationPaused, status)

	status, err = s.Toggle()
	require.NoError(t, err)
	assert.Equal(t, schemas.InvestigationActive, status)

	close(release)
	s.Wait()

	// Terminal state: toggle is a no-op.
	status, err = s.Toggle()
	require.NoError(t, err)
	assert.Equal(t, schemas.InvestigationCompleted, status)
}

func TestSession_NewQueryReplacesCurrent(t *testing.T) {
	release := make(chan struct{})
	exec := &mockExecutor{blocking: release}
	ch := &mockChannel{}
	s := newSession(t, exec, ch)

	first, err := s.Start(context.Background(), sessionQuery())
	require.NoError(t, err)

	second, err := s.Start(context.Background(), sessionQuery())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	current, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID, "the new investigation supersedes the old one")

	ch.mu.Lock()
	assert.Equal(t, []string{first.ID, second.ID}, ch.connects)
	ch.mu.Unlock()

	close(release)
	s.Wait()
	// One release for the replaced run, one for the finished second run.
	assert.Equal(t, 2, ch.disconnectCount())
}

func TestSession_SummaryDuringAndAfterRun(t *testing.T) {
	s := newSession(t, &mockExecutor{fail: true}, &mockChannel{})

	_, err := s.Start(context.Background(), sessionQuery())
	require.NoError(t, err)
	s.Wait()

	summary, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalPipelines)
	assert.Zero(t, summary.CompletedPipelines)
	assert.Zero(t, summary.AverageConfidence)

	current, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, schemas.InvestigationError, current.Status)
	assert.Equal(t, "0/5 pipelines successful", current.Summary)

	// Idempotent apart from duration, which is frozen once ended.
	again, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, summary, again)
}

func TestSession_SummaryBeforeExecutionProgresses(t *testing.T) {
	release := make(chan struct{})
	s := newSession(t, &mockExecutor{blocking: release}, &mockChannel{})

	_, err := s.Start(context.Background(), sessionQuery())
	require.NoError(t, err)

	summary, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalPipelines)
	assert.Zero(t, summary.CompletedPipelines)
	assert.GreaterOrEqual(t, summary.DurationMs, int64(0))

	close(release)
	s.Wait()
}

func TestSession_StopAfterNaturalFinish(t *testing.T) {
	ch := &mockChannel{}
	s := newSession(t, &mockExecutor{}, ch)

	_, err := s.Start(context.Background(), sessionQuery())
	require.NoError(t, err)
	s.Wait()
	require.Equal(t, 1, ch.disconnectCount())

	// Stop after the run released its own channel must not release it again.
	require.NoError(t, s.Stop())
	assert.Equal(t, 1, ch.disconnectCount())
}
