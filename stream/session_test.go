package stream

import (
	"context"
	"testing"
	"time"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/interrupt"
	"github.com/stretchr/testify/require"
)

func TestEmitAssignsMonotonicSequenceIDs(t *testing.T) {
	ctrl := interrupt.NewController()
	s := NewSession("t1", ctrl, Options{})
	ctx := context.Background()

	require.NoError(t, s.Emit(ctx, contracts.TaskStreamChunk{ChunkType: contracts.ChunkProcessing}))
	require.NoError(t, s.Emit(ctx, contracts.TaskStreamChunk{ChunkType: contracts.ChunkProgress}))

	first, ok, err := s.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := s.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, int64(1), first.SequenceID)
	require.Equal(t, int64(2), second.SequenceID)
	require.Equal(t, "t1", first.TaskID)
}

func TestApproveToolUnblocksRequestToolApproval(t *testing.T) {
	ctrl := interrupt.NewController()
	s := NewSession("t1", ctrl, Options{})
	ctx := context.Background()

	go func() {
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, s.ApproveTool(ctx, "int-1", true, ""))
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok, err := s.Recv(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}()

	resp, err := s.RequestToolApproval(ctx, "int-1", "call-1", map[string]any{"name": "search"})
	require.NoError(t, err)
	require.True(t, resp.Approved)
	<-done
}

func TestApproveToolIgnoresUnmatchedInteraction(t *testing.T) {
	ctrl := interrupt.NewController()
	s := NewSession("t1", ctrl, Options{})
	require.NoError(t, s.ApproveTool(context.Background(), "does-not-exist", true, ""))
}

func TestRequestToolApprovalAutoCancelOnTimeout(t *testing.T) {
	ctrl := interrupt.NewController()
	s := NewSession("t1", ctrl, Options{ToolApprovalTimeout: time.Millisecond, Policy: PolicyAutoCancel})
	ctx := context.Background()

	reqChunk, ok, err := recvAfter(s, ctx, func() {
		go func() {
			_, _ = s.RequestToolApproval(ctx, "int-1", "call-1", nil)
		}()
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, contracts.ChunkToolApprovalReq, reqChunk.ChunkType)

	cancelChunk, ok, err := s.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, contracts.ChunkCancelled, cancelChunk.ChunkType)
	require.True(t, cancelChunk.IsFinal)
}

func recvAfter(s *Session, ctx context.Context, trigger func()) (contracts.TaskStreamChunk, bool, error) {
	trigger()
	return s.Recv(ctx)
}

func TestRequestToolApprovalAutoApproveOnTimeout(t *testing.T) {
	ctrl := interrupt.NewController()
	s := NewSession("t1", ctrl, Options{ToolApprovalTimeout: time.Millisecond, Policy: PolicyAutoApprove})
	ctx := context.Background()

	respCh := make(chan contracts.InteractionResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := s.RequestToolApproval(ctx, "int-1", "call-1", nil)
		respCh <- resp
		errCh <- err
	}()

	_, ok, err := s.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, <-errCh)
	require.True(t, (<-respCh).Approved)
}

func TestSendUserMessageDeliversResumeRequest(t *testing.T) {
	ctrl := interrupt.NewController()
	s := NewSession("t1", ctrl, Options{})
	require.NoError(t, s.SendUserMessage(context.Background(), "hello"))

	req, err := ctrl.WaitResume(context.Background())
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	require.Equal(t, "hello", req.Messages[0].ContentText)
}

func TestCloseIsIdempotentAndCancelsPending(t *testing.T) {
	ctrl := interrupt.NewController()
	s := NewSession("t1", ctrl, Options{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.RequestToolApproval(ctx, "int-1", "call-1", nil)
		require.ErrorIs(t, err, ErrClosed)
	}()

	// Drain the tool_approval_request chunk emitted by RequestToolApproval.
	_, ok, err := s.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx)) // idempotent

	// The cancelled chunk for the pending interaction should be queued before
	// the channel closes.
	var sawCancelled bool
	for {
		chunk, ok, _ := s.Recv(ctx)
		if !ok {
			break
		}
		if chunk.ChunkType == contracts.ChunkCancelled {
			sawCancelled = true
		}
	}
	require.True(t, sawCancelled)

	require.ErrorIs(t, s.Emit(ctx, contracts.TaskStreamChunk{}), ErrClosed)
	<-done
}
