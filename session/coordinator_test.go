package session

import (
	"context"
	"testing"
	"time"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/model"
	"github.com/aether-frame/aether-frame/recovery"
	"github.com/aether-frame/aether-frame/runner"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct{}

func (fakeHandle) Shutdown(ctx context.Context) error { return nil }

type historyHandle struct {
	fakeHandle
	history map[string][]contracts.HistoryEntry
}

func (h *historyHandle) ExtractHistory(ctx context.Context, runnerSessionID string) ([]contracts.HistoryEntry, error) {
	return h.history[runnerSessionID], nil
}

func (h *historyHandle) InjectHistory(ctx context.Context, runnerSessionID string, history []contracts.HistoryEntry) error {
	if h.history == nil {
		h.history = map[string][]contracts.HistoryEntry{}
	}
	h.history[runnerSessionID] = append(h.history[runnerSessionID], history...)
	return nil
}

func newTestManager(t *testing.T) (*runner.Manager, *historyHandle) {
	t.Helper()
	handle := &historyHandle{history: map[string][]contracts.HistoryEntry{}}
	m := runner.New(runner.Settings{
		NewHandle: func(ctx context.Context, cfg contracts.AgentConfig, provider model.Client) (runner.Handle, error) {
			return handle, nil
		},
	}, nil)
	return m, handle
}

func bindAgent(t *testing.T, m *runner.Manager, agentID string) {
	t.Helper()
	cfg := contracts.AgentConfig{AgentType: "chat", Name: agentID}
	_, _, err := m.GetOrCreateRunner(context.Background(), cfg, agentID, nil, "", true, false, nil)
	require.NoError(t, err)
}

func TestCoordinateFirstTimeBind(t *testing.T) {
	m, _ := newTestManager(t)
	bindAgent(t, m, "agent-a")
	c := New(m, nil, Settings{}, nil, nil)

	res, err := c.Coordinate(context.Background(), "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t1"})
	require.NoError(t, err)
	require.False(t, res.SwitchOccurred)
	require.NotEmpty(t, res.RunnerSessionID)
}

func TestCoordinateSameAgentReusesSession(t *testing.T) {
	m, _ := newTestManager(t)
	bindAgent(t, m, "agent-a")
	c := New(m, nil, Settings{}, nil, nil)
	ctx := context.Background()

	first, err := c.Coordinate(ctx, "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t1"})
	require.NoError(t, err)

	second, err := c.Coordinate(ctx, "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t2"})
	require.NoError(t, err)
	require.False(t, second.SwitchOccurred)
	require.Equal(t, first.RunnerSessionID, second.RunnerSessionID)
}

func TestCoordinateSwitchMigratesHistory(t *testing.T) {
	m, handle := newTestManager(t)
	bindAgent(t, m, "agent-a")
	bindAgent(t, m, "agent-b")
	c := New(m, nil, Settings{}, nil, nil)
	ctx := context.Background()

	first, err := c.Coordinate(ctx, "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t1"})
	require.NoError(t, err)
	handle.history[first.RunnerSessionID] = []contracts.HistoryEntry{{Role: contracts.RoleUser, Content: "hello"}}

	second, err := c.Coordinate(ctx, "chat-1", "agent-b", "user-1", contracts.TaskRequest{TaskID: "t2"})
	require.NoError(t, err)
	require.True(t, second.SwitchOccurred)
	require.Equal(t, "agent-a", second.PreviousAgentID)
	require.Equal(t, "agent-b", second.NewAgentID)
	require.NotEqual(t, first.RunnerSessionID, second.RunnerSessionID)
	require.Contains(t, handle.history[second.RunnerSessionID], contracts.HistoryEntry{Role: contracts.RoleUser, Content: "hello"})
}

func TestCoordinateRejectsClearedSession(t *testing.T) {
	m, _ := newTestManager(t)
	bindAgent(t, m, "agent-a")
	c := New(m, nil, Settings{}, nil, nil)
	c.mu.Lock()
	c.clearedSessions["chat-1"] = clearedEntry{clearedAt: time.Now(), reason: "idle_timeout"}
	c.mu.Unlock()

	_, err := c.Coordinate(context.Background(), "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t1"})
	require.Error(t, err)
	afErr, ok := err.(*contracts.Error)
	require.True(t, ok)
	require.Equal(t, contracts.ErrSessionCleared, afErr.Code)
}

func TestIdleSweepArchivesAndClears(t *testing.T) {
	m, handle := newTestManager(t)
	bindAgent(t, m, "agent-a")
	store := recovery.NewInMemStore()
	c := New(m, store, Settings{SessionIdleTimeout: time.Millisecond, CheckInterval: time.Hour}, nil, nil)
	ctx := context.Background()

	res, err := c.Coordinate(ctx, "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t1"})
	require.NoError(t, err)
	handle.history[res.RunnerSessionID] = []contracts.HistoryEntry{{Role: contracts.RoleUser, Content: "hi"}}

	time.Sleep(2 * time.Millisecond)
	c.sweepOnce_(ctx)

	_, err = c.Coordinate(ctx, "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t2"})
	require.Error(t, err)
	afErr, ok := err.(*contracts.Error)
	require.True(t, ok)
	require.Equal(t, contracts.ErrSessionCleared, afErr.Code)

	record, err := store.Load(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, "agent-a", record.AgentID)
	require.Len(t, record.ChatHistory, 1)
}

func TestRecoverAndClearRestoresBinding(t *testing.T) {
	m, handle := newTestManager(t)
	bindAgent(t, m, "agent-a")
	store := recovery.NewInMemStore()
	c := New(m, store, Settings{}, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, contracts.SessionRecoveryRecord{
		ChatSessionID: "chat-1",
		UserID:        "user-1",
		AgentID:       "agent-a",
		ChatHistory:   []contracts.HistoryEntry{{Role: contracts.RoleUser, Content: "resume me"}},
		ArchivedAt:    time.Now(),
	}))
	c.mu.Lock()
	c.clearedSessions["chat-1"] = clearedEntry{clearedAt: time.Now(), reason: "idle_timeout"}
	c.mu.Unlock()

	res, err := c.RecoverAndClear(ctx, "chat-1", "user-1", contracts.TaskRequest{TaskID: "t3"})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunnerSessionID)
	require.Contains(t, handle.history[res.RunnerSessionID], contracts.HistoryEntry{Role: contracts.RoleUser, Content: "resume me"})

	_, err = store.Load(ctx, "chat-1")
	require.ErrorIs(t, err, recovery.ErrNotFound)

	again, err := c.Coordinate(ctx, "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t4"})
	require.NoError(t, err, "cleared_sessions entry must be purged after successful recovery")
	require.False(t, again.SwitchOccurred)
}
