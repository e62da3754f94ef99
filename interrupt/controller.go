// Package interrupt provides the pause/resume/clarification/tool-result
// signal plumbing DomainAgent and StreamSession use for human-in-the-loop
// execution. Unlike the reference system's Controller, which is a thin
// wrapper over a specific workflow engine's named signal channels, this one
// is engine-agnostic: it is backed directly by Go channels, so it works the
// same whether the caller is running in-process (engine/inmem) or behind a
// durable workflow engine (engine/temporal) that merely forwards signals
// into it.
package interrupt

import (
	"context"
	"errors"

	"github.com/aether-frame/aether-frame/contracts"
)

// PauseRequest carries metadata attached to a pause signal.
type PauseRequest struct {
	TaskID      string
	Reason      string
	RequestedBy string
	Metadata    map[string]any
}

// ResumeRequest carries metadata attached to a resume signal. Messages
// allows a human or policy actor to inject new conversational turns before
// execution resumes.
type ResumeRequest struct {
	TaskID      string
	Notes       string
	RequestedBy string
	Messages    []contracts.UniversalMessage
}

// ClarificationAnswer carries a typed answer for a paused clarification
// request raised via an InteractionRequest.
type ClarificationAnswer struct {
	TaskID         string
	InteractionID  string
	Answer         string
	StructuredData map[string]any
}

// ToolResultsSet carries externally-supplied results for a paused
// tool-approval request.
type ToolResultsSet struct {
	TaskID  string
	Results []contracts.ToolResult
	Denied  bool
}

// Controller drains pause/resume/clarification/tool-result signals for a
// single task execution. It is not safe for use across more than one
// concurrent execution; DomainAgent constructs one per live run.
type Controller struct {
	pauseCh   chan PauseRequest
	resumeCh  chan ResumeRequest
	clarifyCh chan ClarificationAnswer
	resultsCh chan ToolResultsSet
}

// NewController allocates a Controller with buffered signal channels so a
// single pending signal of each kind can be queued without blocking the
// sender.
func NewController() *Controller {
	return &Controller{
		pauseCh:   make(chan PauseRequest, 1),
		resumeCh:  make(chan ResumeRequest, 1),
		clarifyCh: make(chan ClarificationAnswer, 1),
		resultsCh: make(chan ToolResultsSet, 1),
	}
}

// Pause delivers a pause request. Returns false if one was already pending
// and not yet consumed (the channel is full).
func (c *Controller) Pause(req PauseRequest) bool {
	select {
	case c.pauseCh <- req:
		return true
	default:
		return false
	}
}

// Resume delivers a resume request.
func (c *Controller) Resume(req ResumeRequest) bool {
	select {
	case c.resumeCh <- req:
		return true
	default:
		return false
	}
}

// ProvideClarification delivers a clarification answer.
func (c *Controller) ProvideClarification(ans ClarificationAnswer) bool {
	select {
	case c.clarifyCh <- ans:
		return true
	default:
		return false
	}
}

// ProvideToolResults delivers externally-supplied tool results.
func (c *Controller) ProvideToolResults(rs ToolResultsSet) bool {
	select {
	case c.resultsCh <- rs:
		return true
	default:
		return false
	}
}

// PollPause attempts to dequeue a pause request without blocking.
func (c *Controller) PollPause() (PauseRequest, bool) {
	select {
	case req := <-c.pauseCh:
		return req, true
	default:
		return PauseRequest{}, false
	}
}

// WaitResume blocks until a resume request is delivered or ctx is canceled.
func (c *Controller) WaitResume(ctx context.Context) (ResumeRequest, error) {
	select {
	case req := <-c.resumeCh:
		return req, nil
	case <-ctx.Done():
		return ResumeRequest{}, ctx.Err()
	}
}

// WaitProvideClarification blocks until a clarification answer is delivered
// or ctx is canceled.
func (c *Controller) WaitProvideClarification(ctx context.Context) (ClarificationAnswer, error) {
	select {
	case ans := <-c.clarifyCh:
		return ans, nil
	case <-ctx.Done():
		return ClarificationAnswer{}, ctx.Err()
	}
}

// WaitProvideToolResults blocks until external tool results are delivered or
// ctx is canceled.
func (c *Controller) WaitProvideToolResults(ctx context.Context) (ToolResultsSet, error) {
	select {
	case rs := <-c.resultsCh:
		return rs, nil
	case <-ctx.Done():
		return ToolResultsSet{}, ctx.Err()
	}
}

// WaitProvideToolResultsTimeout blocks until external tool results arrive,
// ctx is canceled, or timeout elapses — whichever comes first. Used by
// StreamSession to implement the HITL approval timeout policies (§4.10):
// auto_approve, auto_cancel, error.
func (c *Controller) WaitProvideToolResultsTimeout(ctx context.Context, timedOut <-chan struct{}) (ToolResultsSet, error) {
	select {
	case rs := <-c.resultsCh:
		return rs, nil
	case <-timedOut:
		return ToolResultsSet{}, errTimedOut
	case <-ctx.Done():
		return ToolResultsSet{}, ctx.Err()
	}
}

var errTimedOut = errors.New("interrupt: tool approval timed out")

// ErrTimedOut reports whether err is the timeout sentinel returned by
// WaitProvideToolResultsTimeout.
func ErrTimedOut(err error) bool {
	return errors.Is(err, errTimedOut)
}
