package runner

import (
	"context"
	"testing"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/model"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct{ shutdownCalled bool }

func (f *fakeHandle) Shutdown(ctx context.Context) error {
	f.shutdownCalled = true
	return nil
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	return New(Settings{
		NewHandle: func(ctx context.Context, cfg contracts.AgentConfig, provider model.Client) (Handle, error) {
			return &fakeHandle{}, nil
		},
	}, nil)
}

func TestGetOrCreateRunnerReusesForSameConfig(t *testing.T) {
	m := newManager(t)
	cfg := contracts.AgentConfig{AgentType: "chat", Name: "a"}
	ctx := context.Background()

	r1, s1, err := m.GetOrCreateRunner(ctx, cfg, "agent-1", nil, "", true, true, nil)
	require.NoError(t, err)
	require.NotEmpty(t, r1)
	require.NotEmpty(t, s1)

	r2, s2, err := m.GetOrCreateRunner(ctx, cfg, "agent-2", nil, "", true, true, nil)
	require.NoError(t, err)
	require.Equal(t, r1, r2, "same config hash must reuse the runner")
	require.NotEqual(t, s1, s2, "each call with create_session=true gets a distinct session")
}

func TestSessionToRunnerInvariant(t *testing.T) {
	m := newManager(t)
	cfg := contracts.AgentConfig{AgentType: "chat", Name: "a"}
	ctx := context.Background()

	runnerID, sessionID, err := m.GetOrCreateRunner(ctx, cfg, "agent-1", nil, "", true, true, nil)
	require.NoError(t, err)

	gotRunner, ok := m.GetRunnerBySession(sessionID)
	require.True(t, ok)
	require.Equal(t, runnerID, gotRunner)

	rc, ok := m.RunnerContext(runnerID)
	require.True(t, ok)
	_, present := rc.sessions[sessionID]
	require.True(t, present, "session_to_runner[s]=r must imply s in runners[r].sessions")
}

func TestCleanupRunnerPurgesAllIndices(t *testing.T) {
	m := newManager(t)
	cfg := contracts.AgentConfig{AgentType: "chat", Name: "a"}
	ctx := context.Background()

	runnerID, sessionID, err := m.GetOrCreateRunner(ctx, cfg, "agent-1", nil, "", true, true, nil)
	require.NoError(t, err)

	ok := m.CleanupRunner(ctx, runnerID)
	require.True(t, ok)

	_, exists := m.RunnerContext(runnerID)
	require.False(t, exists)
	_, exists = m.GetRunnerBySession(sessionID)
	require.False(t, exists)
	_, exists = m.GetRunnerForAgent("agent-1")
	require.False(t, exists)

	require.True(t, m.CleanupRunner(ctx, runnerID), "cleanup must be idempotent")
}

func TestCleanupRunnerInvokesAgentCallbackOutsideLock(t *testing.T) {
	var called []string
	var m *Manager
	m = New(Settings{
		NewHandle: func(ctx context.Context, cfg contracts.AgentConfig, provider model.Client) (Handle, error) {
			return &fakeHandle{}, nil
		},
	}, func(ctx context.Context, agentID string) {
		// Re-entering the manager deadlocks if the lock is still held here.
		_, _ = m.GetRunnerForAgent(agentID)
		called = append(called, agentID)
	})
	cfg := contracts.AgentConfig{AgentType: "chat", Name: "a"}
	ctx := context.Background()

	runnerID, _, err := m.GetOrCreateRunner(ctx, cfg, "agent-1", nil, "", true, true, nil)
	require.NoError(t, err)

	m.CleanupRunner(ctx, runnerID)
	require.Equal(t, []string{"agent-1"}, called)
}

func TestGetOrCreateRunnerWithoutSession(t *testing.T) {
	m := newManager(t)
	cfg := contracts.AgentConfig{AgentType: "chat", Name: "a"}
	ctx := context.Background()

	runnerID, sessionID, err := m.GetOrCreateRunner(ctx, cfg, "agent-1", nil, "", true, false, nil)
	require.NoError(t, err)
	require.NotEmpty(t, runnerID)
	require.Empty(t, sessionID)
	require.Equal(t, 0, m.GetRunnerSessionCount(runnerID))
}

func TestMaxSessionsPerAgentForcesNewRunner(t *testing.T) {
	m := New(Settings{
		MaxSessionsPerAgent: 1,
		NewHandle: func(ctx context.Context, cfg contracts.AgentConfig, provider model.Client) (Handle, error) {
			return &fakeHandle{}, nil
		},
	}, nil)
	cfg := contracts.AgentConfig{AgentType: "chat", Name: "a"}
	ctx := context.Background()

	r1, _, err := m.GetOrCreateRunner(ctx, cfg, "", nil, "", true, true, nil)
	require.NoError(t, err)
	r2, _, err := m.GetOrCreateRunner(ctx, cfg, "", nil, "", true, true, nil)
	require.NoError(t, err)
	require.NotEqual(t, r1, r2, "runner at capacity must not be reused")
}
