// Package session implements SessionCoordinator: the state machine mapping
// business-level chat sessions onto runner sessions, including the Agent
// Switch Protocol, idle-driven archival/recovery, and a cooperative idle
// sweeper. Grounded on the reference system's AdkSessionManager, generalized
// away from any one specific LLM framework's session API.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/recovery"
	"github.com/aether-frame/aether-frame/runner"
	"github.com/aether-frame/aether-frame/telemetry"
)

// clearedEntry records why and when a chat session was idle-cleared.
type clearedEntry struct {
	clearedAt time.Time
	reason    string
}

// Settings configures idle timeouts and the sweeper cadence. RunnerIdle
// defaults to 3x SessionIdle per spec §4.7.
type Settings struct {
	SessionIdleTimeout time.Duration
	RunnerIdleTimeout  time.Duration
	AgentIdleTimeout   time.Duration
	CheckInterval      time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.SessionIdleTimeout <= 0 {
		s.SessionIdleTimeout = 30 * time.Minute
	}
	if s.RunnerIdleTimeout <= 0 {
		s.RunnerIdleTimeout = 3 * s.SessionIdleTimeout
	}
	if s.AgentIdleTimeout <= 0 {
		s.AgentIdleTimeout = s.RunnerIdleTimeout
	}
	if s.CheckInterval <= 0 {
		s.CheckInterval = time.Minute
	}
	return s
}

// AgentIdleCallback is invoked by the idle sweeper for every agent whose
// last-marked activity exceeds AgentIdleTimeout. The agent lifecycle itself
// (construction, teardown) lives outside this package.
type AgentIdleCallback func(ctx context.Context, agentID string)

// Coordinator implements SessionCoordinator.
type Coordinator struct {
	mu sync.Mutex

	chatSessions      map[string]*contracts.ChatSessionInfo
	clearedSessions   map[string]clearedEntry
	agentActivity     map[string]time.Time

	// chatLocks serializes Coordinate/RecoverAndClear/archiveAndClear calls
	// per chat_session_id, per spec §5's per-chat-session mutex requirement.
	// inFlight counts turns currently holding a chat session's lock, so the
	// idle sweeper can skip sessions with work in progress.
	chatLocks map[string]*sync.Mutex
	inFlight  map[string]int

	runners  *runner.Manager
	recovery recovery.Store
	settings Settings
	log      telemetry.Logger
	onAgentIdle AgentIdleCallback

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New constructs a Coordinator. recoveryStore and log may be nil; a nil
// recoveryStore falls back to an in-memory default, and a nil log discards
// output via the telemetry no-op logger.
func New(runners *runner.Manager, recoveryStore recovery.Store, settings Settings, log telemetry.Logger, onAgentIdle AgentIdleCallback) *Coordinator {
	if recoveryStore == nil {
		recoveryStore = recovery.NewInMemStore()
	}
	if log == nil {
		log = telemetry.NoopLogger{}
	}
	return &Coordinator{
		chatSessions:    map[string]*contracts.ChatSessionInfo{},
		clearedSessions: map[string]clearedEntry{},
		agentActivity:   map[string]time.Time{},
		chatLocks:       map[string]*sync.Mutex{},
		inFlight:        map[string]int{},
		runners:         runners,
		recovery:        recoveryStore,
		settings:        settings.withDefaults(),
		log:             log,
		onAgentIdle:     onAgentIdle,
		stopSweep:       make(chan struct{}),
	}
}

// chatLock returns the mutex serializing turns for chatSessionID, creating
// one on first use.
func (c *Coordinator) chatLock(chatSessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.chatLocks[chatSessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.chatLocks[chatSessionID] = lock
	}
	return lock
}

// beginTurn/endTurn bracket a chat session's in-flight turn so sweepOnce_
// can skip sessions with work in progress, even if that work outlasts
// SessionIdleTimeout.
func (c *Coordinator) beginTurn(chatSessionID string) {
	c.mu.Lock()
	c.inFlight[chatSessionID]++
	c.mu.Unlock()
}

func (c *Coordinator) endTurn(chatSessionID string) {
	c.mu.Lock()
	c.inFlight[chatSessionID]--
	if c.inFlight[chatSessionID] <= 0 {
		delete(c.inFlight, chatSessionID)
	}
	c.mu.Unlock()
}

// Coordinate implements coordinate_chat_session. On success it also
// refreshes the chat session's and the target agent's activity clocks.
func (c *Coordinator) Coordinate(ctx context.Context, chatSessionID, targetAgentID, userID string, req contracts.TaskRequest) (contracts.CoordinationResult, error) {
	lock := c.chatLock(chatSessionID)
	lock.Lock()
	defer lock.Unlock()
	c.beginTurn(chatSessionID)
	defer c.endTurn(chatSessionID)

	c.mu.Lock()
	if entry, cleared := c.clearedSessions[chatSessionID]; cleared {
		c.mu.Unlock()
		return contracts.CoordinationResult{}, &contracts.Error{
			Code:    contracts.ErrSessionCleared,
			Stage:   "session_coordination",
			Details: map[string]any{"chat_session_id": chatSessionID, "cleared_at": entry.clearedAt},
		}
	}
	chatSession := c.getOrCreateChatSessionLocked(chatSessionID, userID)
	c.mu.Unlock()

	current := chatSession.ActiveAgentID
	switch {
	case current == "":
		res, err := c.createSessionForAgent(ctx, chatSession, targetAgentID, userID, req)
		return res, err
	case current == targetAgentID && chatSession.Bound():
		c.mu.Lock()
		chatSession.LastActivity = time.Now()
		c.mu.Unlock()
		c.markAgentActivity(targetAgentID)
		return contracts.CoordinationResult{RunnerSessionID: chatSession.ActiveRunnerSessionID, SwitchOccurred: false}, nil
	case current == targetAgentID:
		return c.createSessionForAgent(ctx, chatSession, targetAgentID, userID, req)
	default:
		return c.switchAgentSession(ctx, chatSession, targetAgentID, userID, req)
	}
}

func (c *Coordinator) getOrCreateChatSessionLocked(chatSessionID, userID string) *contracts.ChatSessionInfo {
	if cs, ok := c.chatSessions[chatSessionID]; ok {
		return cs
	}
	cs := &contracts.ChatSessionInfo{
		UserID:                 userID,
		ChatSessionID:          chatSessionID,
		SyncedKnowledgeSources: map[string]struct{}{},
		CreatedAt:              time.Now(),
		LastActivity:           time.Now(),
	}
	c.chatSessions[chatSessionID] = cs
	c.log.Info(context.Background(), "created chat session tracking", "chat_session_id", chatSessionID)
	return cs
}

func (c *Coordinator) createSessionForAgent(ctx context.Context, chatSession *contracts.ChatSessionInfo, targetAgentID, userID string, req contracts.TaskRequest) (contracts.CoordinationResult, error) {
	runnerID, ok := c.runners.GetRunnerForAgent(targetAgentID)
	if !ok {
		return contracts.CoordinationResult{}, &contracts.Error{
			Code:    contracts.ErrRunnerExecution,
			Stage:   "session_coordination",
			Details: map[string]any{"reason": "no runner bound for agent", "agent_id": targetAgentID},
		}
	}
	externalSessionID := fmt.Sprintf("runner_session_%s_%s", req.TaskID, userID)
	if err := c.runners.CreateSessionInRunner(ctx, runnerID, externalSessionID, userID); err != nil {
		return contracts.CoordinationResult{}, &contracts.Error{Code: contracts.ErrRunnerExecution, Stage: "session_coordination", Details: map[string]any{"error": err.Error()}}
	}

	c.mu.Lock()
	chatSession.ActiveAgentID = targetAgentID
	chatSession.ActiveRunnerSessionID = externalSessionID
	chatSession.ActiveRunnerID = runnerID
	chatSession.LastActivity = time.Now()
	c.mu.Unlock()
	c.markAgentActivity(targetAgentID)

	return contracts.CoordinationResult{RunnerSessionID: externalSessionID, SwitchOccurred: false, NewAgentID: targetAgentID}, nil
}

// switchAgentSession implements the Agent Switch Protocol (spec §4.7,
// 6 steps): extract history, cleanup the old session, resolve/create the
// new runner session, inject history, update ChatSessionInfo, return the
// result. Ordering follows the protocol exactly; each step is best-effort
// past the point of no return (a failed history extraction or injection
// degrades to a fresh session rather than failing the switch).
func (c *Coordinator) switchAgentSession(ctx context.Context, chatSession *contracts.ChatSessionInfo, targetAgentID, userID string, req contracts.TaskRequest) (contracts.CoordinationResult, error) {
	previousAgentID := chatSession.ActiveAgentID
	c.log.Info(ctx, "agent switch detected", "chat_session_id", chatSession.ChatSessionID, "from", previousAgentID, "to", targetAgentID)

	var history []contracts.HistoryEntry
	if chatSession.ActiveRunnerSessionID != "" {
		var err error
		history, err = c.runners.ExtractHistory(ctx, chatSession.ActiveRunnerID, chatSession.ActiveRunnerSessionID)
		if err != nil {
			c.log.Warn(ctx, "history extraction failed", "error", err)
		}
		c.cleanupSessionOnly(ctx, chatSession)
	}

	runnerID, ok := c.runners.GetRunnerForAgent(targetAgentID)
	if !ok {
		return contracts.CoordinationResult{}, &contracts.Error{
			Code:    contracts.ErrRunnerExecution,
			Stage:   "session_coordination",
			Details: map[string]any{"reason": "no runner bound for agent", "agent_id": targetAgentID},
		}
	}
	newRunnerSessionID := fmt.Sprintf("runner_session_%s_%s", req.TaskID, userID)
	if err := c.runners.CreateSessionInRunner(ctx, runnerID, newRunnerSessionID, userID); err != nil {
		return contracts.CoordinationResult{}, &contracts.Error{Code: contracts.ErrRunnerExecution, Stage: "session_coordination", Details: map[string]any{"error": err.Error()}}
	}

	if len(history) > 0 {
		if err := c.runners.InjectHistory(ctx, runnerID, newRunnerSessionID, history); err != nil {
			c.log.Warn(ctx, "history injection failed", "error", err)
		}
	}

	now := time.Now()
	c.mu.Lock()
	chatSession.ActiveAgentID = targetAgentID
	chatSession.ActiveRunnerSessionID = newRunnerSessionID
	chatSession.ActiveRunnerID = runnerID
	chatSession.LastSwitchAt = &now
	chatSession.LastActivity = now
	c.mu.Unlock()
	c.markAgentActivity(targetAgentID)

	return contracts.CoordinationResult{
		RunnerSessionID: newRunnerSessionID,
		SwitchOccurred:  true,
		PreviousAgentID: previousAgentID,
		NewAgentID:      targetAgentID,
	}, nil
}

// cleanupSessionOnly removes the current runner session, and cleans up the
// runner itself if it is left with zero sessions, then clears the chat
// session's active-* fields.
func (c *Coordinator) cleanupSessionOnly(ctx context.Context, chatSession *contracts.ChatSessionInfo) {
	runnerID, sessionID := chatSession.ActiveRunnerID, chatSession.ActiveRunnerSessionID
	if runnerID == "" || sessionID == "" {
		c.clearActiveFields(chatSession)
		return
	}
	c.runners.RemoveSessionFromRunner(ctx, runnerID, sessionID)
	if c.runners.GetRunnerSessionCount(runnerID) == 0 {
		c.runners.CleanupRunner(ctx, runnerID)
	}
	c.clearActiveFields(chatSession)
}

func (c *Coordinator) clearActiveFields(chatSession *contracts.ChatSessionInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chatSession.ActiveAgentID = ""
	chatSession.ActiveRunnerSessionID = ""
	chatSession.ActiveRunnerID = ""
}

func (c *Coordinator) markAgentActivity(agentID string) {
	if agentID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentActivity[agentID] = time.Now()
}

// Recover implements the recovery protocol's lookup step: it loads the
// archived record for chatSessionID, if any. Callers invoke this after
// observing SessionCleared from Coordinate, then re-issue Coordinate (which
// will perform a fresh bind since cleared_sessions no longer blocks it once
// RecoverAndClear succeeds).
func (c *Coordinator) Recover(ctx context.Context, chatSessionID string) (contracts.SessionRecoveryRecord, error) {
	return c.recovery.Load(ctx, chatSessionID)
}

// RecoverAndClear loads the archived record, re-injects its history into a
// fresh runner session for the recovered agent, and on success purges both
// the archive and the cleared_sessions entry so a subsequent Coordinate call
// proceeds normally. On injection failure the archive is left in place (not
// purged) so a later retry can replay it, per spec §4.7.
func (c *Coordinator) RecoverAndClear(ctx context.Context, chatSessionID, userID string, req contracts.TaskRequest) (contracts.CoordinationResult, error) {
	lock := c.chatLock(chatSessionID)
	lock.Lock()
	defer lock.Unlock()
	c.beginTurn(chatSessionID)
	defer c.endTurn(chatSessionID)

	record, err := c.recovery.Load(ctx, chatSessionID)
	if err != nil {
		return contracts.CoordinationResult{}, &contracts.Error{
			Code:    contracts.ErrSessionRecoveryFail,
			Stage:   "session_recovery",
			Details: map[string]any{"chat_session_id": chatSessionID, "error": err.Error()},
		}
	}

	c.mu.Lock()
	chatSession := c.getOrCreateChatSessionLocked(chatSessionID, userID)
	c.mu.Unlock()

	res, err := c.createSessionForAgent(ctx, chatSession, record.AgentID, userID, req)
	if err != nil {
		return contracts.CoordinationResult{}, err
	}
	if len(record.ChatHistory) > 0 {
		if err := c.runners.InjectHistory(ctx, chatSession.ActiveRunnerID, chatSession.ActiveRunnerSessionID, record.ChatHistory); err != nil {
			c.log.Warn(ctx, "recovery history injection failed, record re-queued", "chat_session_id", chatSessionID, "error", err)
			return res, nil
		}
	}

	_ = c.recovery.Delete(ctx, chatSessionID)
	c.mu.Lock()
	delete(c.clearedSessions, chatSessionID)
	c.mu.Unlock()
	return res, nil
}

// StartIdleSweeper launches the cooperative background sweep described in
// spec §4.7/§5; it stops when ctx is canceled or Stop is called. Safe to
// call at most once.
func (c *Coordinator) StartIdleSweeper(ctx context.Context) {
	c.sweepOnce.Do(func() {
		go c.sweepLoop(ctx)
	})
}

// Stop ends a running idle sweeper.
func (c *Coordinator) Stop() {
	close(c.stopSweep)
}

func (c *Coordinator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(c.settings.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweepOnce_(ctx)
		}
	}
}

// sweepOnce_ runs a single sweep pass: archive+clear idle chat sessions,
// cleanup idle runners, and invoke the agent idle callback for idle agents.
func (c *Coordinator) sweepOnce_(ctx context.Context) {
	now := time.Now()

	c.mu.Lock()
	var idleChatSessions []*contracts.ChatSessionInfo
	for _, cs := range c.chatSessions {
		if c.inFlight[cs.ChatSessionID] > 0 {
			continue
		}
		if now.Sub(cs.LastActivity) >= c.settings.SessionIdleTimeout {
			idleChatSessions = append(idleChatSessions, cs)
		}
	}
	c.mu.Unlock()

	for _, cs := range idleChatSessions {
		c.archiveAndClear(ctx, cs)
	}

	for _, runnerID := range c.runners.IdleRunners(c.settings.RunnerIdleTimeout) {
		c.runners.CleanupRunner(ctx, runnerID)
	}

	if c.onAgentIdle != nil {
		c.mu.Lock()
		var idleAgents []string
		for agentID, lastActive := range c.agentActivity {
			if now.Sub(lastActive) >= c.settings.AgentIdleTimeout {
				idleAgents = append(idleAgents, agentID)
			}
		}
		for _, agentID := range idleAgents {
			delete(c.agentActivity, agentID)
		}
		c.mu.Unlock()
		for _, agentID := range idleAgents {
			c.onAgentIdle(ctx, agentID)
		}
	}
}

func (c *Coordinator) archiveAndClear(ctx context.Context, chatSession *contracts.ChatSessionInfo) {
	lock := c.chatLock(chatSession.ChatSessionID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	stillIdle := c.inFlight[chatSession.ChatSessionID] == 0 &&
		time.Since(chatSession.LastActivity) >= c.settings.SessionIdleTimeout
	c.mu.Unlock()
	if !stillIdle {
		return
	}

	c.mu.Lock()
	runnerID, sessionID := chatSession.ActiveRunnerID, chatSession.ActiveRunnerSessionID
	agentID, userID := chatSession.ActiveAgentID, chatSession.UserID
	chatSessionID := chatSession.ChatSessionID
	c.mu.Unlock()

	var history []contracts.HistoryEntry
	if runnerID != "" && sessionID != "" {
		history, _ = c.runners.ExtractHistory(ctx, runnerID, sessionID)
	}

	record := contracts.SessionRecoveryRecord{
		ChatSessionID: chatSessionID,
		UserID:        userID,
		AgentID:       agentID,
		ChatHistory:   history,
		ArchivedAt:    time.Now(),
	}
	if err := c.recovery.Save(ctx, record); err != nil {
		c.log.Warn(ctx, "failed to archive idle chat session", "chat_session_id", chatSessionID, "error", err)
	}

	c.cleanupSessionOnly(ctx, chatSession)

	c.mu.Lock()
	c.clearedSessions[chatSessionID] = clearedEntry{clearedAt: time.Now(), reason: "idle_timeout"}
	c.mu.Unlock()
}
