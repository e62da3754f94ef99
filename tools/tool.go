// Package tools implements the tool subsystem: registration, namespaced
// resolution with permission filtering, and synchronous/streaming
// execution, including remote-tool-server dispatch.
package tools

import (
	"context"

	"github.com/aether-frame/aether-frame/contracts"
)

// Tool is a single executable tool registered with ToolService.
type Tool interface {
	Describe() contracts.UniversalTool
	ValidateParameters(params map[string]any) bool
	Execute(ctx context.Context, req contracts.ToolRequest) (contracts.ToolResult, error)
}

// StreamingTool is implemented by tools that can emit incremental chunks.
// ToolService falls back to sync Execute (wrapped in a single final chunk)
// when a tool doesn't implement this.
type StreamingTool interface {
	Tool
	ExecuteStream(ctx context.Context, req contracts.ToolRequest, emit func(contracts.ToolResult)) error
}

// Func adapts a plain function to the Tool interface for builtins that need
// no parameter validation beyond "accept anything".
type Func struct {
	Spec contracts.UniversalTool
	Fn   func(ctx context.Context, req contracts.ToolRequest) (contracts.ToolResult, error)
}

func (f Func) Describe() contracts.UniversalTool { return f.Spec }

func (f Func) ValidateParameters(map[string]any) bool { return true }

func (f Func) Execute(ctx context.Context, req contracts.ToolRequest) (contracts.ToolResult, error) {
	return f.Fn(ctx, req)
}
