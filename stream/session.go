// Package stream implements StreamSession: the live-execution chunk source
// and its Communicator back-channel described in spec §4.10. A StreamSession
// wraps a bounded chunk channel (the producer side, driven by DomainAgent's
// execute_live loop) plus the caller-facing operations that answer
// human-in-the-loop interactions raised mid-stream: approve_tool,
// send_user_message, and close.
//
// Chunks are delivered cooperatively to a single reader and are totally
// ordered per task by a monotonically increasing SequenceID. Unlike the
// reference system's hook-bridged Sink/Event bus — which fans internal
// runtime events out to many subscribers across many concurrent runs — a
// StreamSession is scoped to exactly one task and one reader, so ordering is
// just "assign the next counter value before the chunk leaves the producer".
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/interrupt"
	"github.com/aether-frame/aether-frame/telemetry"
)

// ErrClosed is returned by Emit and the interaction helpers once the session
// has been closed.
var ErrClosed = errors.New("stream: session closed")

// Options configures a Session.
type Options struct {
	// ChunkBuffer sizes the chunk channel. Defaults to 32.
	ChunkBuffer int
	// ToolApprovalTimeout bounds how long RequestToolApproval waits for a
	// response before applying Policy. Zero disables the timeout (waits
	// indefinitely, or until ctx is canceled).
	ToolApprovalTimeout time.Duration
	// Policy selects the behavior applied when ToolApprovalTimeout elapses.
	// Defaults to PolicyAutoCancel per spec §4.10.
	Policy TimeoutPolicy
	Log    telemetry.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkBuffer <= 0 {
		o.ChunkBuffer = 32
	}
	if o.Policy == "" {
		o.Policy = PolicyAutoCancel
	}
	if o.Log == nil {
		o.Log = telemetry.NoopLogger{}
	}
	return o
}

// pendingInteraction tracks an outstanding InteractionRequest so a later
// approve_tool/provide-results call can be correlated to it.
type pendingInteraction struct {
	interactionType contracts.InteractionType
}

// Session is a single task's live chunk stream plus its Communicator.
type Session struct {
	taskID     string
	chunks     chan contracts.TaskStreamChunk
	seq        atomic.Int64
	controller *interrupt.Controller
	opts       Options

	mu          sync.Mutex
	pending     map[string]pendingInteraction
	closed      bool
	closeSignal chan struct{}
}

// NewSession constructs a Session for taskID. controller must not be nil: it
// is the signal plumbing used to deliver approve_tool/send_user_message calls
// to the producer loop.
func NewSession(taskID string, controller *interrupt.Controller, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		taskID:      taskID,
		chunks:      make(chan contracts.TaskStreamChunk, opts.ChunkBuffer),
		controller:  controller,
		opts:        opts,
		pending:     map[string]pendingInteraction{},
		closeSignal: make(chan struct{}),
	}
}

// Emit assigns the next SequenceID and publishes chunk to the reader. Blocks
// if the channel is full, honoring ctx cancellation. Returns ErrClosed if the
// session has already been closed.
func (s *Session) Emit(ctx context.Context, chunk contracts.TaskStreamChunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	chunk.TaskID = s.taskID
	chunk.SequenceID = s.seq.Add(1)
	s.mu.Unlock()

	select {
	case s.chunks <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks for the next chunk. Cooperative single-reader: callers must not
// invoke Recv concurrently from more than one goroutine. Returns false once
// the channel has been drained after Close.
func (s *Session) Recv(ctx context.Context) (contracts.TaskStreamChunk, bool, error) {
	select {
	case chunk, ok := <-s.chunks:
		return chunk, ok, nil
	case <-ctx.Done():
		return contracts.TaskStreamChunk{}, false, ctx.Err()
	}
}

// RequestToolApproval emits a tool_approval_request chunk, registers the
// interaction as pending, and blocks for its resolution: an explicit
// approve_tool call, ctx cancellation, or (if ToolApprovalTimeout is set) the
// configured TimeoutPolicy. On PolicyAutoCancel it emits a cancelled terminal
// chunk scoped to this tool call only; the conversation itself is left
// running.
func (s *Session) RequestToolApproval(ctx context.Context, interactionID, toolCallID string, payload any) (contracts.InteractionResponse, error) {
	if err := s.Emit(ctx, contracts.TaskStreamChunk{
		ChunkType:     contracts.ChunkToolApprovalReq,
		ChunkKind:     contracts.KindToolProposal,
		InteractionID: interactionID,
		Content:       payload,
	}); err != nil {
		return contracts.InteractionResponse{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return contracts.InteractionResponse{}, ErrClosed
	}
	s.pending[interactionID] = pendingInteraction{interactionType: contracts.InteractionToolApproval}
	s.mu.Unlock()

	resp, err := s.waitForApproval(ctx, interactionID, toolCallID)
	s.mu.Lock()
	delete(s.pending, interactionID)
	s.mu.Unlock()
	return resp, err
}

// waitForApproval blocks on the controller for a response, unblocking early
// (with ErrClosed) if the session is closed out from under it.
func (s *Session) waitForApproval(ctx context.Context, interactionID, toolCallID string) (contracts.InteractionResponse, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closeSignal:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	if s.opts.ToolApprovalTimeout <= 0 {
		rs, err := s.controller.WaitProvideToolResults(waitCtx)
		if err != nil {
			if s.isClosed() {
				return contracts.InteractionResponse{}, ErrClosed
			}
			return contracts.InteractionResponse{}, err
		}
		return toolResultsToResponse(interactionID, rs), nil
	}

	timer := time.NewTimer(s.opts.ToolApprovalTimeout)
	defer timer.Stop()
	rs, err := s.controller.WaitProvideToolResultsTimeout(waitCtx, timer.C)
	if err == nil {
		return toolResultsToResponse(interactionID, rs), nil
	}
	if s.isClosed() {
		return contracts.InteractionResponse{}, ErrClosed
	}
	if !interrupt.ErrTimedOut(err) {
		return contracts.InteractionResponse{}, err
	}

	s.opts.Log.Warn(ctx, "tool approval timed out, applying policy", "task_id", s.taskID, "interaction_id", interactionID, "policy", string(s.opts.Policy))
	switch s.opts.Policy {
	case PolicyAutoApprove:
		return contracts.InteractionResponse{InteractionID: interactionID, Approved: true}, nil
	case PolicyError:
		return contracts.InteractionResponse{}, fmt.Errorf("stream: tool approval %q timed out: %w", interactionID, err)
	default: // PolicyAutoCancel
		_ = s.Emit(ctx, contracts.TaskStreamChunk{
			ChunkType:     contracts.ChunkCancelled,
			ChunkKind:     contracts.KindToolError,
			InteractionID: interactionID,
			IsFinal:       true,
			Content:       map[string]any{"tool_call_id": toolCallID, "reason": "tool_approval_timeout"},
		})
		return contracts.InteractionResponse{InteractionID: interactionID, Approved: false}, nil
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func toolResultsToResponse(interactionID string, rs interrupt.ToolResultsSet) contracts.InteractionResponse {
	return contracts.InteractionResponse{
		InteractionID: interactionID,
		Approved:      !rs.Denied,
	}
}

// ApproveTool implements the Communicator's approve_tool operation. It
// correlates interactionID against the pending tool_approval_request raised
// by RequestToolApproval; an unmatched interactionID is ignored with a
// warning, per spec §4.10.
func (s *Session) ApproveTool(ctx context.Context, interactionID string, approved bool, userMessage string) error {
	s.mu.Lock()
	_, ok := s.pending[interactionID]
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		s.opts.Log.Warn(ctx, "approve_tool: unmatched interaction id, ignoring", "task_id", s.taskID, "interaction_id", interactionID)
		return nil
	}
	s.controller.ProvideToolResults(interrupt.ToolResultsSet{
		TaskID: s.taskID,
		Denied: !approved,
	})
	if userMessage != "" {
		s.controller.Resume(interrupt.ResumeRequest{
			TaskID:   s.taskID,
			Notes:    userMessage,
			Messages: []contracts.UniversalMessage{{Role: contracts.RoleUser, ContentText: userMessage}},
		})
	}
	return nil
}

// SendUserMessage implements the Communicator's send_user_message operation:
// it injects a user message mid-stream for the producer to fold into the
// conversation before its next turn.
func (s *Session) SendUserMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	s.controller.Resume(interrupt.ResumeRequest{
		TaskID:   s.taskID,
		Messages: []contracts.UniversalMessage{{Role: contracts.RoleUser, ContentText: text}},
	})
	return nil
}

// Close cancels any outstanding interactions (emitting a cancelled chunk for
// each) and drains the producer side by closing the chunk channel. Idempotent:
// calling Close more than once is a no-op after the first call.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pending
	s.pending = map[string]pendingInteraction{}
	s.mu.Unlock()
	close(s.closeSignal)

	for interactionID := range pending {
		select {
		case s.chunks <- contracts.TaskStreamChunk{
			TaskID:        s.taskID,
			ChunkType:     contracts.ChunkCancelled,
			SequenceID:    s.seq.Add(1),
			InteractionID: interactionID,
			IsFinal:       true,
			Content:       map[string]any{"reason": "session_closed"},
		}:
		case <-ctx.Done():
		default:
		}
	}
	close(s.chunks)
	return nil
}
