// Package runner implements RunnerManager: a pool of runner instances keyed
// by agent-config fingerprint, with per-runner session maps, agent↔runner
// binding, idle metrics, and cleanup callbacks.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/fingerprint"
	"github.com/aether-frame/aether-frame/model"
	"github.com/google/uuid"
)

// Handle is the runner-runtime-specific object RunnerManager pools — a
// constructed model.Client plus whatever else an agent needs to execute a
// turn. The manager itself is agnostic to what Handle contains.
type Handle interface {
	Shutdown(ctx context.Context) error
}

// SessionService abstracts the runtime-session CRUD a concrete runner
// handle exposes, analogous to the reference system's per-runner
// "session service". An in-memory default is provided by NewInMemSessionService.
type SessionService interface {
	CreateSession(ctx context.Context, sessionID, userID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	Shutdown(ctx context.Context) error
}

// Context is the per-runner record RunnerManager owns exclusively.
// SessionCoordinator holds only RunnerID references into it — never a live
// pointer across the manager boundary.
type Context struct {
	RunnerID       string
	RunnerHandle   Handle
	SessionService SessionService
	AgentConfig    contracts.AgentConfig
	ConfigHash     fingerprint.ConfigFingerprint
	AppName        string
	CreatedAt      time.Time
	LastActivity   time.Time

	sessions       map[string]struct{}        // runner_session_id -> present
	sessionUserIDs map[string]string          // runner_session_id -> user_id
}

// Settings configures a Manager.
type Settings struct {
	DefaultAppName      string
	DefaultUserID       string
	MaxSessionsPerAgent int
	SessionIDPrefix     string
	RunnerIDPrefix      string
	// NewHandle constructs a Handle for a given AgentConfig/ProviderConfig.
	// Required.
	NewHandle func(ctx context.Context, cfg contracts.AgentConfig, provider model.Client) (Handle, error)
}

// AgentCleanupCallback is invoked once per agent bound to a runner being
// cleaned up, outside the manager's write lock (to avoid deadlocking with
// AgentManager's own locks).
type AgentCleanupCallback func(ctx context.Context, agentID string)

// Manager implements RunnerManager. All exported methods are safe for
// concurrent use; the runner pool and session indices share a single
// rw-mutex (readers: lookups; writers: create/delete/cleanup).
type Manager struct {
	mu sync.RWMutex

	runners           map[string]*Context
	configToRunner    map[fingerprint.ConfigFingerprint]string
	sessionToRunner   map[string]string
	agentRunnerMapping map[string]string

	fingerprintLocks map[fingerprint.ConfigFingerprint]*sync.Mutex
	fpLocksMu        sync.Mutex

	settings Settings
	cleanup  AgentCleanupCallback
}

// New constructs an empty Manager.
func New(settings Settings, cleanup AgentCleanupCallback) *Manager {
	if settings.MaxSessionsPerAgent <= 0 {
		settings.MaxSessionsPerAgent = 50
	}
	if settings.SessionIDPrefix == "" {
		settings.SessionIDPrefix = "sess"
	}
	if settings.RunnerIDPrefix == "" {
		settings.RunnerIDPrefix = "runner"
	}
	if settings.DefaultAppName == "" {
		settings.DefaultAppName = "aether-frame"
	}
	if settings.DefaultUserID == "" {
		settings.DefaultUserID = "anonymous"
	}
	return &Manager{
		runners:            map[string]*Context{},
		configToRunner:     map[fingerprint.ConfigFingerprint]string{},
		sessionToRunner:    map[string]string{},
		agentRunnerMapping: map[string]string{},
		fingerprintLocks:   map[fingerprint.ConfigFingerprint]*sync.Mutex{},
		settings:           settings,
		cleanup:            cleanup,
	}
}

func (m *Manager) fingerprintLock(hash fingerprint.ConfigFingerprint) *sync.Mutex {
	m.fpLocksMu.Lock()
	defer m.fpLocksMu.Unlock()
	l, ok := m.fingerprintLocks[hash]
	if !ok {
		l = &sync.Mutex{}
		m.fingerprintLocks[hash] = l
	}
	return l
}

// GetOrCreateRunner computes cfg's fingerprint and either reuses an
// existing open runner (session count below MaxSessionsPerAgent) or
// creates a new one. When createSession is true it also creates a runtime
// session bound to the resolved user id, using engineSessionID when
// provided. Creation for a given fingerprint is serialized by a
// per-fingerprint mutex so concurrent first-use requests deduplicate.
func (m *Manager) GetOrCreateRunner(ctx context.Context, cfg contracts.AgentConfig, agentID string, uc *contracts.UserContext, engineSessionID string, allowReuse, createSession bool, provider model.Client) (runnerID string, sessionID string, err error) {
	hash := fingerprint.Of(cfg)
	lock := m.fingerprintLock(hash)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	existingID, hasExisting := m.configToRunner[hash]
	var existing *Context
	if hasExisting {
		existing = m.runners[existingID]
	}
	m.mu.RUnlock()

	var rc *Context
	if hasExisting && existing != nil && allowReuse && m.sessionCount(existing) < m.settings.MaxSessionsPerAgent {
		rc = existing
	} else {
		rc, err = m.createRunner(ctx, cfg, hash, provider)
		if err != nil {
			return "", "", err
		}
	}

	m.mu.Lock()
	if agentID != "" {
		m.agentRunnerMapping[agentID] = rc.RunnerID
	}
	m.mu.Unlock()

	if !createSession {
		return rc.RunnerID, "", nil
	}

	userID := contracts.ResolveUserID(uc)
	sid := engineSessionID
	if sid == "" {
		sid = fmt.Sprintf("%s_%s", m.settings.SessionIDPrefix, uuid.NewString())
	}
	if err := m.createSessionInRunner(ctx, rc, sid, userID); err != nil {
		return "", "", err
	}
	return rc.RunnerID, sid, nil
}

func (m *Manager) sessionCount(rc *Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(rc.sessions)
}

func (m *Manager) createRunner(ctx context.Context, cfg contracts.AgentConfig, hash fingerprint.ConfigFingerprint, provider model.Client) (*Context, error) {
	handle, err := m.settings.NewHandle(ctx, cfg, provider)
	if err != nil {
		return nil, fmt.Errorf("create runner handle: %w", err)
	}
	rc := &Context{
		RunnerID:       fmt.Sprintf("%s_%s", m.settings.RunnerIDPrefix, uuid.NewString()),
		RunnerHandle:   handle,
		SessionService: NewInMemSessionService(),
		AgentConfig:    cfg,
		ConfigHash:     hash,
		AppName:        m.settings.DefaultAppName,
		CreatedAt:      time.Now(),
		LastActivity:   time.Now(),
		sessions:       map[string]struct{}{},
		sessionUserIDs: map[string]string{},
	}
	m.mu.Lock()
	m.runners[rc.RunnerID] = rc
	m.configToRunner[hash] = rc.RunnerID
	m.mu.Unlock()
	return rc, nil
}

// createSessionInRunner enforces the per-runner user-id mapping; the
// manager never stores a process-wide user_id on the runner, keeping it
// multi-tenant safe.
func (m *Manager) createSessionInRunner(ctx context.Context, rc *Context, sessionID, userID string) error {
	if err := rc.SessionService.CreateSession(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("create session in runner: %w", err)
	}
	m.mu.Lock()
	rc.sessions[sessionID] = struct{}{}
	rc.sessionUserIDs[sessionID] = userID
	rc.LastActivity = time.Now()
	m.sessionToRunner[sessionID] = rc.RunnerID
	m.mu.Unlock()
	return nil
}

// CreateSessionInRunner is the externally callable counterpart used by
// SessionCoordinator during the agent-switch protocol, when a session must
// be created in an already-resolved runner.
func (m *Manager) CreateSessionInRunner(ctx context.Context, runnerID, sessionID, userID string) error {
	m.mu.RLock()
	rc, ok := m.runners[runnerID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("runner %s not found", runnerID)
	}
	return m.createSessionInRunner(ctx, rc, sessionID, userID)
}

// RemoveSessionFromRunner deletes a session via the underlying session
// service and purges it from all indices. No-op if missing.
func (m *Manager) RemoveSessionFromRunner(ctx context.Context, runnerID, sessionID string) {
	m.mu.RLock()
	rc, ok := m.runners[runnerID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	_ = rc.SessionService.DeleteSession(ctx, sessionID)
	m.mu.Lock()
	delete(rc.sessions, sessionID)
	delete(rc.sessionUserIDs, sessionID)
	delete(m.sessionToRunner, sessionID)
	m.mu.Unlock()
}

// GetRunnerSessionCount returns the number of live sessions for runnerID.
func (m *Manager) GetRunnerSessionCount(runnerID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rc, ok := m.runners[runnerID]
	if !ok {
		return 0
	}
	return len(rc.sessions)
}

// CleanupRunner shuts down the runner handle and session service
// best-effort, purges it from every index, and invokes the registered
// AgentCleanupCallback for every agent currently bound to it. Returns false
// if shutdown raised an error, but indices are purged regardless.
func (m *Manager) CleanupRunner(ctx context.Context, runnerID string) bool {
	m.mu.Lock()
	rc, ok := m.runners[runnerID]
	if !ok {
		m.mu.Unlock()
		return true
	}
	var boundAgents []string
	for agentID, rid := range m.agentRunnerMapping {
		if rid == runnerID {
			boundAgents = append(boundAgents, agentID)
		}
	}
	for sessionID := range rc.sessions {
		delete(m.sessionToRunner, sessionID)
	}
	delete(m.runners, runnerID)
	if m.configToRunner[rc.ConfigHash] == runnerID {
		delete(m.configToRunner, rc.ConfigHash)
	}
	for _, agentID := range boundAgents {
		delete(m.agentRunnerMapping, agentID)
	}
	m.mu.Unlock()

	ok1 := true
	if err := rc.RunnerHandle.Shutdown(ctx); err != nil {
		ok1 = false
	}
	if err := rc.SessionService.Shutdown(ctx); err != nil {
		ok1 = false
	}

	if m.cleanup != nil {
		for _, agentID := range boundAgents {
			m.cleanup(ctx, agentID)
		}
	}
	return ok1
}

// GetRunnerBySession returns the runner id owning sessionID.
func (m *Manager) GetRunnerBySession(sessionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sessionToRunner[sessionID]
	return id, ok
}

// GetRunnerForAgent returns the runner id currently bound to agentID.
func (m *Manager) GetRunnerForAgent(agentID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.agentRunnerMapping[agentID]
	return id, ok
}

// MarkRunnerActivity stamps runnerID's LastActivity with the current time.
func (m *Manager) MarkRunnerActivity(runnerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.runners[runnerID]; ok {
		rc.LastActivity = time.Now()
	}
}

// RunnerContext returns a shallow view of runnerID's Context, or false if
// absent. The returned value must not be mutated by callers.
func (m *Manager) RunnerContext(runnerID string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rc, ok := m.runners[runnerID]
	return rc, ok
}

// IdleRunners returns the ids of runners whose LastActivity is older than
// idleAfter, for consumption by the idle sweeper.
func (m *Manager) IdleRunners(idleAfter time.Duration) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	cutoff := time.Now().Add(-idleAfter)
	for id, rc := range m.runners {
		if rc.LastActivity.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}
