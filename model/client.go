// Package model defines the provider-neutral contract DomainAgent and
// RunnerManager depend on. Concrete providers (providers/anthropic,
// providers/openai, providers/bedrock) implement Client against a specific
// SDK; callers never import a provider package directly.
package model

import (
	"context"
	"errors"

	"github.com/aether-frame/aether-frame/contracts"
)

// ErrRateLimited wraps a provider error that indicates a rate limit was hit,
// so callers can apply retry/backoff policy uniformly across providers.
var ErrRateLimited = errors.New("model: rate limited")

// ModelClass selects a model family/tier when Request.Model is empty,
// letting ProviderConfig.Model stay unset and defer to provider defaults.
type ModelClass string

const (
	ModelClassDefault       ModelClass = ""
	ModelClassHighReasoning ModelClass = "high_reasoning"
	ModelClassSmall         ModelClass = "small"
)

// ToolDefinition describes a tool exposed to the model for this call.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a requested tool invocation returned by the model.
type ToolCall struct {
	ID      string
	Name    string
	Payload map[string]any
}

// ToolChoiceMode controls how the model is allowed to use tools.
type ToolChoiceMode string

const (
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	ToolChoiceModeNone ToolChoiceMode = "none"
	ToolChoiceModeAny  ToolChoiceMode = "any"
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

// ToolChoice configures tool-use behavior for a Request.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// TokenUsage tracks token counts for a single model call.
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Request is a single model invocation: a conversation plus the tools
// available to it and generation parameters.
type Request struct {
	Messages    []contracts.UniversalMessage
	Tools       []*ToolDefinition
	ToolChoice  *ToolChoice
	Model       string
	ModelClass  ModelClass
	MaxTokens   int
	Temperature float32
}

// Response is a completed (non-streaming) model invocation result.
type Response struct {
	Content    []contracts.UniversalMessage
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
}

// ChunkType classifies a streamed Chunk.
type ChunkType string

const (
	ChunkTypeText      ChunkType = "text"
	ChunkTypeToolCall  ChunkType = "tool_call"
	ChunkTypeUsage     ChunkType = "usage"
	ChunkTypeStop      ChunkType = "stop"
)

// Chunk is a single streaming event from the model.
type Chunk struct {
	Type       ChunkType
	Text       string
	ToolCall   *ToolCall
	UsageDelta *TokenUsage
	StopReason string
}

// Streamer yields Chunks for an in-flight streaming request. Recv returns
// io.EOF once the stream has delivered its terminal stop chunk.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}

// Client is the interface every provider adapter implements. RunnerManager
// pools one Client per resolved ProviderConfig; DomainAgent calls Complete
// on both its sync and live paths and does not call Stream.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (Streamer, error)
}
