package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/recovery"
)

// TestCoordinateSerializesPerChatSession verifies that two Coordinate calls
// for the same chat_session_id never run concurrently: the second call must
// block until the chat session's mutex, held by the first, is released.
func TestCoordinateSerializesPerChatSession(t *testing.T) {
	m, _ := newTestManager(t)
	bindAgent(t, m, "agent-a")
	c := New(m, nil, Settings{}, nil, nil)

	lock := c.chatLock("chat-1")
	lock.Lock()

	done := make(chan struct{})
	go func() {
		_, _ = c.Coordinate(context.Background(), "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t1"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Coordinate proceeded while the chat session's lock was held by another holder")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Coordinate did not proceed after the chat session's lock was released")
	}
}

// TestSweepSkipsChatSessionWithInFlightTurn verifies that sweepOnce_ leaves
// a chat session alone while a turn is in flight for it, even once its
// LastActivity is old enough to otherwise qualify as idle, and archives it
// once the turn ends.
func TestSweepSkipsChatSessionWithInFlightTurn(t *testing.T) {
	m, handle := newTestManager(t)
	bindAgent(t, m, "agent-a")
	store := recovery.NewInMemStore()
	c := New(m, store, Settings{SessionIdleTimeout: time.Millisecond, CheckInterval: time.Hour}, nil, nil)
	ctx := context.Background()

	res, err := c.Coordinate(ctx, "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t1"})
	require.NoError(t, err)
	handle.history[res.RunnerSessionID] = []contracts.HistoryEntry{{Role: contracts.RoleUser, Content: "hi"}}

	time.Sleep(2 * time.Millisecond)
	c.beginTurn("chat-1")
	c.sweepOnce_(ctx)

	_, err = c.Coordinate(ctx, "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t2"})
	require.NoError(t, err, "an in-flight chat session must not be archived out from under its turn")

	c.endTurn("chat-1")
	time.Sleep(2 * time.Millisecond)
	c.sweepOnce_(ctx)

	_, err = c.Coordinate(ctx, "chat-1", "agent-a", "user-1", contracts.TaskRequest{TaskID: "t3"})
	require.Error(t, err, "once the turn ends and the session is idle again, the sweeper must archive it")
	afErr, ok := err.(*contracts.Error)
	require.True(t, ok)
	require.Equal(t, contracts.ErrSessionCleared, afErr.Code)
}
