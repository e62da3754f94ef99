package contracts

// ChunkType enumerates TaskStreamChunk.ChunkType values.
type ChunkType string

const (
	ChunkProcessing        ChunkType = "processing"
	ChunkToolCallRequest   ChunkType = "tool_call_request"
	ChunkToolApprovalReq   ChunkType = "tool_approval_request"
	ChunkUserInputRequest  ChunkType = "user_input_request"
	ChunkResponse          ChunkType = "response"
	ChunkProgress          ChunkType = "progress"
	ChunkComplete          ChunkType = "complete"
	ChunkError             ChunkType = "error"
	ChunkCancelled         ChunkType = "cancelled"
)

// ChunkKind is the finer taxonomy beneath ChunkType.
type ChunkKind string

const (
	KindPlanDelta    ChunkKind = "plan.delta"
	KindPlanSummary  ChunkKind = "plan.summary"
	KindToolProposal ChunkKind = "tool.proposal"
	KindToolResult   ChunkKind = "tool.result"
	KindToolDelta    ChunkKind = "tool.delta"
	KindToolComplete ChunkKind = "tool.complete"
	KindToolError    ChunkKind = "tool.error"
)

// TaskStreamChunk is a single unit of a live session's chunk stream. chunks
// within one StreamSession are totally ordered by SequenceID.
type TaskStreamChunk struct {
	TaskID        string
	ChunkType     ChunkType
	SequenceID    int64
	Content       any
	IsFinal       bool
	ChunkKind     ChunkKind
	InteractionID string
	Metadata      map[string]any
	ChunkVersion  int
}

// InteractionType enumerates InteractionRequest.InteractionType values.
type InteractionType string

const (
	InteractionToolApproval InteractionType = "tool_approval"
	InteractionUserInput    InteractionType = "user_input"
	InteractionConfirmation InteractionType = "confirmation"
	InteractionCancellation InteractionType = "cancellation"
)

// InteractionRequest is emitted by the producer when it needs caller input
// mid-stream (tool approval, free-form user input, confirmation).
type InteractionRequest struct {
	InteractionID   string
	InteractionType InteractionType
	TaskID          string
	Content         any
}

// InteractionResponse answers an outstanding InteractionRequest. InteractionID
// MUST match a request for the same task; unmatched responses are ignored
// with a warning by the consumer.
type InteractionResponse struct {
	InteractionID string
	Approved      bool
	ResponseData  map[string]any
	UserMessage   string
}
