package stream

// TimeoutPolicy selects what happens when a human-in-the-loop interaction's
// ToolApprovalTimeout elapses without a response, per spec §4.10.
type TimeoutPolicy string

const (
	// PolicyAutoApprove treats a timed-out tool_approval_request as approved
	// and lets execution proceed.
	PolicyAutoApprove TimeoutPolicy = "auto_approve"
	// PolicyAutoCancel is the default: it emits a cancelled terminal chunk
	// scoped to the in-flight tool call only. The surrounding conversation
	// may continue or end at the producer's discretion.
	PolicyAutoCancel TimeoutPolicy = "auto_cancel"
	// PolicyError surfaces the timeout as an error to the producer, which
	// the caller may translate into a terminal error chunk for the task.
	PolicyError TimeoutPolicy = "error"
)
