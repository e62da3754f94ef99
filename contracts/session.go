package contracts

import "time"

// ChatSessionInfo is owned exclusively by SessionCoordinator. Invariant: if
// any of ActiveRunnerSessionID/ActiveRunnerID is set, ActiveAgentID is also
// set and all three reference a live runner+session.
type ChatSessionInfo struct {
	UserID                 string
	ChatSessionID          string
	ActiveAgentID          string
	ActiveRunnerSessionID  string
	ActiveRunnerID         string
	AvailableKnowledge     []string
	SyncedKnowledgeSources map[string]struct{}
	CreatedAt              time.Time
	LastActivity           time.Time
	LastSwitchAt           *time.Time
}

// Bound reports whether the chat session currently has an active
// agent/runner/session binding.
func (c *ChatSessionInfo) Bound() bool {
	return c.ActiveAgentID != "" && c.ActiveRunnerSessionID != "" && c.ActiveRunnerID != ""
}

// HistoryEntry is a single migrated turn extracted from a runtime session's
// event history during an agent switch or recovery, stripped of any
// tool/function-call artifacts.
type HistoryEntry struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// SessionRecoveryRecord is an immutable snapshot of a cleared chat session,
// sufficient to re-inject its history on the next request. Lives in a
// SessionRecoveryStore.
type SessionRecoveryRecord struct {
	ChatSessionID string
	UserID        string
	AgentID       string
	AgentConfig   *AgentConfig
	ChatHistory   []HistoryEntry
	ArchivedAt    time.Time
}

// CoordinationResult is returned by SessionCoordinator.Coordinate on
// success.
type CoordinationResult struct {
	RunnerSessionID   string
	SwitchOccurred    bool
	PreviousAgentID   string
	NewAgentID        string
}
