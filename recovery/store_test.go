package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aether-frame/aether-frame/contracts"
)

func TestInMemStoreLoadMissingReturnsErrNotFound(t *testing.T) {
	s := NewInMemStore()
	_, err := s.Load(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInMemStoreSaveThenLoadRoundTrips(t *testing.T) {
	s := NewInMemStore()
	record := contracts.SessionRecoveryRecord{
		ChatSessionID: "chat-1",
		UserID:        "user-1",
		AgentID:       "agent-1",
		ArchivedAt:    time.Unix(0, 0),
	}
	require.NoError(t, s.Save(context.Background(), record))

	got, err := s.Load(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, record, got)
}

func TestInMemStoreSaveIsIdempotentOverwrite(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, contracts.SessionRecoveryRecord{ChatSessionID: "chat-1", UserID: "old"}))
	require.NoError(t, s.Save(ctx, contracts.SessionRecoveryRecord{ChatSessionID: "chat-1", UserID: "new"}))

	got, err := s.Load(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, "new", got.UserID)
}

func TestInMemStoreDeleteRemovesRecord(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, contracts.SessionRecoveryRecord{ChatSessionID: "chat-1"}))
	require.NoError(t, s.Delete(ctx, "chat-1"))

	_, err := s.Load(ctx, "chat-1")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestInMemStoreDeleteMissingIsNoop(t *testing.T) {
	s := NewInMemStore()
	require.NoError(t, s.Delete(context.Background(), "never-existed"))
}
