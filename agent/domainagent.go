package agent

import (
	"context"
	"fmt"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/hooks"
	"github.com/aether-frame/aether-frame/model"
	"github.com/aether-frame/aether-frame/telemetry"
	"github.com/aether-frame/aether-frame/tools"
)

// MemoryProvider retrieves memory snippets relevant to a task, folded into
// the prompt ahead of the caller's own messages. A nil MemoryProvider
// yields no snippets.
type MemoryProvider interface {
	Retrieve(ctx context.Context, req contracts.TaskRequest) ([]string, error)
}

// ToolInitializer prepares an agent's tools exactly once per agent
// lifetime (step 2 of the execute algorithm), e.g. registering builtins or
// discovering remote tool servers scoped to that agent's config.
type ToolInitializer func(ctx context.Context, agentID string) error

// Options configures a DomainAgent.
type Options struct {
	Tools           *tools.Service
	Memory          MemoryProvider
	ToolInitializer ToolInitializer
	// MaxTurns bounds the tool-call/resume loop within a single execute
	// call. Defaults to 8.
	MaxTurns int
	Log      telemetry.Logger
	// Hooks, if set, receives RunStarted/RunCompleted/ModelCallStarted/
	// ModelCallCompleted/ToolCallScheduled/ToolResultReceived events as
	// Execute/ExecuteLive progress. Nil disables publishing entirely.
	Hooks *hooks.Bus
}

func (o Options) withDefaults() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = 8
	}
	if o.Log == nil {
		o.Log = telemetry.NewNoopLogger()
	}
	return o
}

// DomainAgent implements spec §4.8: translating an AgentRequest into a
// model turn loop over the RuntimeContext's Client, with tool execution
// folded in between turns.
type DomainAgent struct {
	opts Options

	initialized map[string]bool
}

// New constructs a DomainAgent.
func New(opts Options) *DomainAgent {
	return &DomainAgent{opts: opts.withDefaults(), initialized: map[string]bool{}}
}

// publish fans out an event through opts.Hooks, if configured.
func (a *DomainAgent) publish(ctx context.Context, eventType hooks.EventType, taskID, agentID, sessionID string, payload any) {
	if a.opts.Hooks == nil {
		return
	}
	a.opts.Hooks.Publish(ctx, hooks.Event{
		Type: eventType, TaskID: taskID, AgentID: agentID, SessionID: sessionID, Payload: payload,
	})
}

// Execute implements DomainAgent.execute: AgentRequest -> TaskResult. Never
// returns a Go error — every failure is taxonomized into the returned
// TaskResult per the package boundary convention (contracts.Error).
func (a *DomainAgent) Execute(ctx context.Context, req AgentRequest) contracts.TaskResult {
	taskID := req.TaskRequest.TaskID
	agentID := req.RuntimeContext.AgentID
	sessionID := req.RuntimeContext.SessionID

	a.publish(ctx, hooks.RunStarted, taskID, agentID, sessionID, nil)
	defer func() {
		a.publish(ctx, hooks.RunCompleted, taskID, agentID, sessionID, nil)
	}()

	if missing := req.RuntimeContext.Missing(); len(missing) > 0 {
		return contracts.NewErrorResult(taskID, contracts.NewError(contracts.ErrRunnerExecution, "runner_execution", map[string]any{
			"missing_components": missing,
		}), "conversation_continuation")
	}

	if err := a.ensureToolsInitialized(ctx, req.RuntimeContext.AgentID); err != nil {
		return contracts.NewErrorResult(taskID, contracts.NewError(contracts.ErrRunnerExecution, "runner_execution", map[string]any{
			"reason": "tool initialization failed", "error": err.Error(),
		}), "conversation_continuation")
	}

	messages, err := a.buildPrompt(ctx, req.TaskRequest)
	if err != nil {
		return contracts.NewErrorResult(taskID, contracts.NewError(contracts.ErrInternal, "runner_execution", map[string]any{
			"reason": "prompt assembly failed", "error": err.Error(),
		}), "conversation_continuation")
	}

	toolDefs := a.toolDefinitions(req.TaskRequest.AvailableTools)

	var best candidate
	var allToolResults []contracts.ToolResult
	var aggUsage model.TokenUsage

	for turn := 0; turn < a.opts.MaxTurns; turn++ {
		a.publish(ctx, hooks.ModelCallStarted, taskID, agentID, sessionID, map[string]any{"turn": turn})
		resp, err := req.RuntimeContext.Client.Complete(ctx, &model.Request{
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return contracts.NewErrorResult(taskID, contracts.NewError(contracts.ErrRunnerExecution, "runner_execution", map[string]any{
				"reason": "model invocation failed", "error": err.Error(), "turn": turn,
			}), "conversation_continuation")
		}
		a.publish(ctx, hooks.ModelCallCompleted, taskID, agentID, sessionID, map[string]any{"turn": turn, "usage": resp.Usage})
		aggUsage = addUsage(aggUsage, resp.Usage)

		if len(resp.ToolCalls) == 0 {
			text := flattenContent(resp.Content)
			best.consider(text, true)
			break
		}

		assistantMsg := contracts.UniversalMessage{Role: contracts.RoleAssistant, ContentText: flattenContent(resp.Content)}
		for _, tc := range resp.ToolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, contracts.ToolCallDecl{ToolCallID: tc.ID, Name: tc.Name, Arguments: tc.Payload})
		}
		messages = append(messages, assistantMsg)

		for _, tc := range resp.ToolCalls {
			a.publish(ctx, hooks.ToolCallScheduled, taskID, agentID, sessionID, map[string]any{"tool_name": tc.Name})
			result := a.opts.Tools.ExecuteTool(ctx, contracts.ToolRequest{
				ToolName:         tc.Name,
				Parameters:       tc.Payload,
				UserContext:      req.TaskRequest.UserContext,
				SessionContext:   req.TaskRequest.SessionContext,
				ExecutionContext: req.TaskRequest.ExecutionContext,
				Metadata:         req.TaskRequest.Metadata,
			})
			a.publish(ctx, hooks.ToolResultReceived, taskID, agentID, sessionID, map[string]any{"tool_name": tc.Name, "status": result.Status})
			allToolResults = append(allToolResults, result)
			messages = append(messages, toolResultMessage(tc.ID, result))
		}
	}

	if !best.found {
		return contracts.NewErrorResult(taskID, contracts.NewError(contracts.ErrRunnerExecution, "runner_execution", map[string]any{
			"reason": "max_turns_exceeded", "max_turns": a.opts.MaxTurns,
		}), "conversation_continuation")
	}

	return contracts.TaskResult{
		TaskID:      taskID,
		Status:      contracts.TaskStatusSuccess,
		Messages:    []contracts.UniversalMessage{{Role: contracts.RoleAssistant, ContentText: best.text}},
		ToolResults: allToolResults,
		SessionID:   req.RuntimeContext.SessionID,
		AgentID:     req.RuntimeContext.AgentID,
		Metadata: map[string]any{
			"total_tokens": aggUsage.TotalTokens,
		},
	}
}

// ensureToolsInitialized runs the configured ToolInitializer exactly once
// per agentID, matching execute()'s step 2.
func (a *DomainAgent) ensureToolsInitialized(ctx context.Context, agentID string) error {
	if a.opts.ToolInitializer == nil || agentID == "" {
		return nil
	}
	if a.initialized[agentID] {
		return nil
	}
	if err := a.opts.ToolInitializer(ctx, agentID); err != nil {
		return err
	}
	a.initialized[agentID] = true
	return nil
}

// buildPrompt converts memory snippets and the caller's messages into a
// single ordered message list, per execute()'s step 3. Memory snippets are
// folded in as a leading system message; the caller's own messages follow
// unchanged.
func (a *DomainAgent) buildPrompt(ctx context.Context, req contracts.TaskRequest) ([]contracts.UniversalMessage, error) {
	out := make([]contracts.UniversalMessage, 0, len(req.Messages)+1)
	if a.opts.Memory != nil {
		snippets, err := a.opts.Memory.Retrieve(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("retrieve memory: %w", err)
		}
		if len(snippets) > 0 {
			var text string
			for i, s := range snippets {
				if i > 0 {
					text += "\n"
				}
				text += s
			}
			out = append(out, contracts.UniversalMessage{Role: contracts.RoleSystem, ContentText: text})
		}
	}
	out = append(out, req.Messages...)
	return out, nil
}

func (a *DomainAgent) toolDefinitions(names []string) []*model.ToolDefinition {
	if a.opts.Tools == nil {
		return nil
	}
	var out []*model.ToolDefinition
	for _, name := range names {
		t, ok := a.opts.Tools.Registry().Get(name)
		if !ok {
			continue
		}
		spec := t.Describe()
		out = append(out, &model.ToolDefinition{Name: spec.Name, Description: spec.Description, InputSchema: spec.ParametersSchema})
	}
	return out
}

// candidate tracks the "best" final response observed across turns: the
// longest text among events flagged final, per execute()'s step 5.
type candidate struct {
	found bool
	text  string
}

func (c *candidate) consider(text string, final bool) {
	if !final {
		return
	}
	if !c.found || len(text) > len(c.text) {
		c.found = true
		c.text = text
	}
}

func flattenContent(msgs []contracts.UniversalMessage) string {
	var out string
	for i, m := range msgs {
		if i > 0 {
			out += "\n"
		}
		out += m.Content()
	}
	return out
}

func toolResultMessage(toolCallID string, result contracts.ToolResult) contracts.UniversalMessage {
	text := result.ErrorMessage
	if result.Status == contracts.ToolStatusSuccess {
		text = fmt.Sprint(result.ResultData)
	}
	return contracts.UniversalMessage{
		Role:        contracts.RoleTool,
		ContentText: text,
		Metadata: map[string]any{
			"tool_call_id": toolCallID,
			"is_error":     result.Status != contracts.ToolStatusSuccess,
		},
	}
}

func addUsage(a, b model.TokenUsage) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:      a.InputTokens + b.InputTokens,
		OutputTokens:     a.OutputTokens + b.OutputTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
		CacheReadTokens:  a.CacheReadTokens + b.CacheReadTokens,
		CacheWriteTokens: a.CacheWriteTokens + b.CacheWriteTokens,
	}
}
