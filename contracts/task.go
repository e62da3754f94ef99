package contracts

import "time"

// TaskStatus enumerates TaskResult.Status values.
type TaskStatus string

const (
	TaskStatusSuccess   TaskStatus = "success"
	TaskStatusError     TaskStatus = "error"
	TaskStatusPartial   TaskStatus = "partial"
	TaskStatusTimeout   TaskStatus = "timeout"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// ExecutionConfig carries caller-supplied execution tuning: an optional
// timeout and arbitrary runtime options consumed by TaskRouter/AdapterCore.
type ExecutionConfig struct {
	Timeout        time.Duration
	RuntimeOptions map[string]any
}

// TaskRequest is the top-level request accepted by AIAssistant. Exactly one
// of AgentConfig (creation) or AgentID (continuation) should be set;
// Messages MUST be empty when AgentConfig is set.
type TaskRequest struct {
	TaskID             string
	TaskType           string
	Description        string
	Messages           []UniversalMessage
	AvailableTools     []string
	AvailableKnowledge []string
	Attachments        []string

	UserContext      *UserContext
	SessionContext   *SessionContext
	ExecutionContext *ExecutionContext
	ExecutionConfig  *ExecutionConfig

	AgentConfig *AgentConfig
	AgentID     string
	SessionID   string

	Metadata map[string]any
}

// Validate checks the top-level invariants from §3: non-empty task_id/
// task_type/description, at least one of AgentConfig, AgentID or SessionID
// present, and Messages empty when AgentConfig is given without AgentID.
func (r TaskRequest) Validate() *Error {
	if r.TaskID == "" || r.TaskType == "" || r.Description == "" {
		return NewError(ErrRequestValidation, "ai_assistant.validate_request", map[string]any{
			"reason": "task_id, task_type, and description are required",
		})
	}
	if r.AgentConfig == nil && r.AgentID == "" && r.SessionID == "" {
		return NewError(ErrContextMissing, "execution_engine.validate_context", map[string]any{
			"reason": "one of agent_config, agent_id, or session_id is required",
		})
	}
	if r.AgentConfig != nil && r.AgentID == "" && len(r.Messages) > 0 {
		return NewError(ErrRequestValidation, "adk_adapter.classify", map[string]any{
			"reason":       "Create the agent first",
			"request_mode": "agent_creation_with_messages",
		})
	}
	return nil
}

// TaskResult is the top-level response returned by AIAssistant.
type TaskResult struct {
	TaskID        string
	Status        TaskStatus
	Messages      []UniversalMessage
	ToolResults   []ToolResult
	Error         *Error
	ErrorMessage  string
	ExecutionTime time.Duration
	SessionID     string
	AgentID       string
	Metadata      map[string]any
}

// NewErrorResult builds a TaskResult for an error outcome, ensuring
// Metadata carries request_mode and error_stage as required by §3.
func NewErrorResult(taskID string, err *Error, requestMode string) TaskResult {
	md := map[string]any{
		"request_mode": requestMode,
		"error_stage":  err.Stage,
	}
	return TaskResult{
		TaskID:       taskID,
		Status:       TaskStatusError,
		Error:        err,
		ErrorMessage: err.Error(),
		Metadata:     md,
	}
}
