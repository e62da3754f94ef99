package contracts

import "time"

// UniversalTool describes a tool exposed to agents, whether builtin,
// registered locally, or discovered from a remote tool server.
type UniversalTool struct {
	Name               string // fully-qualified: "<namespace>.<local>"
	Description        string
	ParametersSchema   map[string]any
	Namespace          string
	SupportsStreaming  bool
	RequiredPermissions []string
	Metadata           map[string]any
}

// ToolResultStatus enumerates ToolResult.Status values.
type ToolResultStatus string

const (
	ToolStatusSuccess      ToolResultStatus = "success"
	ToolStatusError        ToolResultStatus = "error"
	ToolStatusTimeout      ToolResultStatus = "timeout"
	ToolStatusUnauthorized ToolResultStatus = "unauthorized"
	ToolStatusNotFound     ToolResultStatus = "not_found"
)

// ToolRequest carries everything needed to execute a single tool call.
type ToolRequest struct {
	ToolName         string
	ToolNamespace    string
	Parameters       map[string]any
	UserContext      *UserContext
	SessionContext   *SessionContext
	ExecutionContext *ExecutionContext
	Timeout          time.Duration
	Metadata         map[string]any
}

// QualifiedName returns the fully-qualified tool name, preferring an
// already-qualified ToolName and falling back to namespace.local when a
// separate namespace was supplied.
func (r ToolRequest) QualifiedName() string {
	if r.ToolNamespace == "" {
		return r.ToolName
	}
	return r.ToolNamespace + "." + r.ToolName
}

// ToolResult is the normalized outcome of executing a tool. ResultData is a
// tagged variant: nil, a string, a structured map, or a slice of content
// parts — never an opaque provider-specific value.
type ToolResult struct {
	ToolName      string
	Status        ToolResultStatus
	ResultData    any
	ErrorMessage  string
	ExecutionTime time.Duration
	Metadata      map[string]any
}
