package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/hooks"
	"github.com/aether-frame/aether-frame/interrupt"
	"github.com/aether-frame/aether-frame/model"
	"github.com/aether-frame/aether-frame/stream"
)

// ApprovalRequired decides whether a given tool name needs a HITL
// tool_approval_request before execution. A nil ApprovalRequired approves
// every tool call automatically.
type ApprovalRequired func(toolName string) bool

// ExecuteLive implements DomainAgent.execute_live: it returns a running
// stream.Session immediately and drives the turn loop in a background
// goroutine, emitting plan deltas, tool proposals, tool results, the final
// response, and a closing complete chunk.
func (a *DomainAgent) ExecuteLive(ctx context.Context, req AgentRequest, approvalRequired ApprovalRequired) *stream.Session {
	ctrl := interrupt.NewController()
	session := stream.NewSession(req.TaskRequest.TaskID, ctrl, stream.Options{Log: a.opts.Log})

	if missing := req.RuntimeContext.Missing(); len(missing) > 0 {
		go func() {
			_ = session.Emit(ctx, contracts.TaskStreamChunk{
				ChunkType: contracts.ChunkError,
				IsFinal:   true,
				Content: map[string]any{
					"code":                string(contracts.ErrRunnerExecution),
					"missing_components": missing,
				},
			})
			_ = session.Close(ctx)
		}()
		return session
	}

	go a.runLive(ctx, req, session, approvalRequired)
	return session
}

func (a *DomainAgent) runLive(ctx context.Context, req AgentRequest, session *stream.Session, approvalRequired ApprovalRequired) {
	taskID := req.TaskRequest.TaskID
	agentID := req.RuntimeContext.AgentID
	sessionID := req.RuntimeContext.SessionID

	a.publish(ctx, hooks.RunStarted, taskID, agentID, sessionID, map[string]any{"mode": "live"})
	defer func() {
		a.publish(ctx, hooks.RunCompleted, taskID, agentID, sessionID, map[string]any{"mode": "live"})
		_ = session.Close(ctx)
	}()

	if err := a.ensureToolsInitialized(ctx, req.RuntimeContext.AgentID); err != nil {
		a.emitError(ctx, session, "tool initialization failed", err)
		return
	}
	messages, err := a.buildPrompt(ctx, req.TaskRequest)
	if err != nil {
		a.emitError(ctx, session, "prompt assembly failed", err)
		return
	}
	toolDefs := a.toolDefinitions(req.TaskRequest.AvailableTools)

	for turn := 0; turn < a.opts.MaxTurns; turn++ {
		a.publish(ctx, hooks.ModelCallStarted, taskID, agentID, sessionID, map[string]any{"turn": turn, "mode": "live"})
		resp, err := req.RuntimeContext.Client.Complete(ctx, &model.Request{Messages: messages, Tools: toolDefs})
		if err != nil {
			a.emitError(ctx, session, "model invocation failed", err)
			return
		}
		a.publish(ctx, hooks.ModelCallCompleted, taskID, agentID, sessionID, map[string]any{"turn": turn, "mode": "live", "usage": resp.Usage})

		text := flattenContent(resp.Content)
		if text != "" {
			if emitErr := session.Emit(ctx, contracts.TaskStreamChunk{
				ChunkType: contracts.ChunkProcessing,
				ChunkKind: contracts.KindPlanDelta,
				Content:   text,
			}); emitErr != nil {
				return
			}
		}

		if len(resp.ToolCalls) == 0 {
			_ = session.Emit(ctx, contracts.TaskStreamChunk{
				ChunkType: contracts.ChunkResponse,
				ChunkKind: contracts.KindPlanSummary,
				IsFinal:   true,
				Content:   text,
			})
			_ = session.Emit(ctx, contracts.TaskStreamChunk{ChunkType: contracts.ChunkComplete, IsFinal: true})
			return
		}

		assistantMsg := contracts.UniversalMessage{Role: contracts.RoleAssistant, ContentText: text}
		for _, tc := range resp.ToolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, contracts.ToolCallDecl{ToolCallID: tc.ID, Name: tc.Name, Arguments: tc.Payload})
		}
		messages = append(messages, assistantMsg)

		for _, tc := range resp.ToolCalls {
			a.publish(ctx, hooks.ToolCallScheduled, taskID, agentID, sessionID, map[string]any{"tool_name": tc.Name, "mode": "live"})
			result, ok := a.runLiveToolCall(ctx, req, session, approvalRequired, tc)
			a.publish(ctx, hooks.ToolResultReceived, taskID, agentID, sessionID, map[string]any{"tool_name": tc.Name, "mode": "live", "status": result.Status})
			messages = append(messages, toolResultMessage(tc.ID, result))
			if !ok {
				return
			}
		}
	}

	a.emitError(ctx, session, "max_turns_exceeded", fmt.Errorf("exceeded %d turns", a.opts.MaxTurns))
}

// runLiveToolCall gates tc behind a HITL approval when required, then
// executes it and emits its proposal/result chunks. The second return
// value is false when the surrounding loop should stop (session closed).
func (a *DomainAgent) runLiveToolCall(ctx context.Context, req AgentRequest, session *stream.Session, approvalRequired ApprovalRequired, tc model.ToolCall) (contracts.ToolResult, bool) {
	interactionID := uuid.NewString()

	if approvalRequired != nil && approvalRequired(tc.Name) {
		// RequestToolApproval emits its own tool_approval_request/tool.proposal
		// chunk, so this path announces the proposal and gates on it in one step.
		resp, err := session.RequestToolApproval(ctx, interactionID, tc.ID, map[string]any{"name": tc.Name, "payload": tc.Payload})
		if err != nil {
			return contracts.ToolResult{Status: contracts.ToolStatusError, ErrorMessage: err.Error()}, false
		}
		if !resp.Approved {
			result := contracts.ToolResult{ToolName: tc.Name, Status: contracts.ToolStatusUnauthorized, ErrorMessage: "tool call not approved"}
			return result, true
		}
	} else if emitErr := session.Emit(ctx, contracts.TaskStreamChunk{
		ChunkType:     contracts.ChunkToolCallRequest,
		ChunkKind:     contracts.KindToolProposal,
		InteractionID: interactionID,
		Content:       map[string]any{"tool_call_id": tc.ID, "name": tc.Name, "payload": tc.Payload},
	}); emitErr != nil {
		return contracts.ToolResult{Status: contracts.ToolStatusError, ErrorMessage: emitErr.Error()}, false
	}

	result := a.opts.Tools.ExecuteTool(ctx, contracts.ToolRequest{
		ToolName:         tc.Name,
		Parameters:       tc.Payload,
		UserContext:      req.TaskRequest.UserContext,
		SessionContext:   req.TaskRequest.SessionContext,
		ExecutionContext: req.TaskRequest.ExecutionContext,
		Metadata:         req.TaskRequest.Metadata,
	})
	kind := contracts.KindToolComplete
	if result.Status != contracts.ToolStatusSuccess {
		kind = contracts.KindToolError
	}
	if emitErr := session.Emit(ctx, contracts.TaskStreamChunk{
		ChunkType:     contracts.ChunkResponse,
		ChunkKind:     kind,
		InteractionID: interactionID,
		Content:       map[string]any{"tool_call_id": tc.ID, "result": result.ResultData, "error": result.ErrorMessage},
	}); emitErr != nil {
		return result, false
	}
	return result, true
}

func (a *DomainAgent) emitError(ctx context.Context, session *stream.Session, reason string, err error) {
	_ = session.Emit(ctx, contracts.TaskStreamChunk{
		ChunkType: contracts.ChunkError,
		IsFinal:   true,
		Content:   map[string]any{"reason": reason, "error": err.Error()},
	})
}
