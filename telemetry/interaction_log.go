package telemetry

import (
	"context"

	"github.com/aether-frame/aether-frame/hooks"
)

// InteractionLog is a hooks.Subscriber that records prompt/response/
// tool-call pairs for offline analysis, writing through a Logger rather
// than a bespoke on-disk format (the concrete log format stays a caller
// concern). Register it on the hooks.Bus passed to DomainAgent through
// agent.Options.Hooks when interaction-level auditing is desired.
type InteractionLog struct {
	log Logger
}

// NewInteractionLog constructs an InteractionLog writing through log.
func NewInteractionLog(log Logger) *InteractionLog {
	return &InteractionLog{log: log}
}

// HandleEvent implements hooks.Subscriber.
func (l *InteractionLog) HandleEvent(ctx context.Context, event hooks.Event) error {
	switch event.Type {
	case hooks.RunStarted:
		l.log.Info(ctx, "interaction.run_started", "task_id", event.TaskID, "agent_id", event.AgentID, "session_id", event.SessionID)
	case hooks.RunCompleted:
		l.log.Info(ctx, "interaction.run_completed", "task_id", event.TaskID, "agent_id", event.AgentID)
	case hooks.ModelCallStarted:
		l.log.Debug(ctx, "interaction.model_call_started", "task_id", event.TaskID, "agent_id", event.AgentID)
	case hooks.ModelCallCompleted:
		l.log.Debug(ctx, "interaction.model_call_completed", "task_id", event.TaskID, "agent_id", event.AgentID)
	case hooks.ToolCallScheduled:
		l.log.Info(ctx, "interaction.tool_call_scheduled", "task_id", event.TaskID, "payload", event.Payload)
	case hooks.ToolResultReceived:
		l.log.Info(ctx, "interaction.tool_result_received", "task_id", event.TaskID, "payload", event.Payload)
	case hooks.AgentSwitchOccurred:
		l.log.Info(ctx, "interaction.agent_switch", "session_id", event.SessionID, "payload", event.Payload)
	case hooks.SessionCleared:
		l.log.Warn(ctx, "interaction.session_cleared", "session_id", event.SessionID, "payload", event.Payload)
	}
	return nil
}
