package adapter

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/aether-frame/aether-frame/agent"
	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/model"
	"github.com/aether-frame/aether-frame/router"
	"github.com/aether-frame/aether-frame/runner"
	"github.com/aether-frame/aether-frame/session"
	"github.com/aether-frame/aether-frame/stream"
	"github.com/aether-frame/aether-frame/telemetry"
)

// RequestMode classifies a TaskRequest per spec §4.5.
type RequestMode string

const (
	ModeAgentCreation            RequestMode = "agent_creation"
	ModeConversationContinuation RequestMode = "conversation_continuation"
	ModeInvalidMixed             RequestMode = "agent_creation_with_messages"
)

// Classify implements AdapterCore's request classification.
func Classify(req contracts.TaskRequest) RequestMode {
	hasConfig := req.AgentConfig != nil
	hasAgentID := req.AgentID != ""
	hasMessages := len(req.Messages) > 0

	switch {
	case hasConfig && hasMessages:
		return ModeInvalidMixed
	case hasConfig && !hasAgentID:
		return ModeAgentCreation
	default:
		return ModeConversationContinuation
	}
}

// Options configures a Core.
type Options struct {
	Runners          *runner.Manager
	Sessions         *session.Coordinator
	DomainAgent      *agent.DomainAgent
	ProviderResolver ProviderResolver
	Log              telemetry.Logger
}

// Core implements AdapterCore (spec §4.5): the hardest subsystem, wiring
// RunnerManager, SessionCoordinator, and DomainAgent behind the
// classify-then-dispatch pipeline ExecutionEngine calls into.
type Core struct {
	opts Options

	mu         sync.RWMutex
	agentStore map[string]contracts.AgentConfig
	available  bool
}

// New constructs a Core. Runners, Sessions, and DomainAgent are required.
func New(opts Options) *Core {
	if opts.Log == nil {
		opts.Log = telemetry.NewNoopLogger()
	}
	return &Core{opts: opts, agentStore: map[string]contracts.AgentConfig{}}
}

// Initialize implements framework.Adapter. settings is currently
// unconsulted — Core's dependencies are all injected at construction.
func (c *Core) Initialize(ctx context.Context, settings map[string]any) error {
	c.mu.Lock()
	c.available = true
	c.mu.Unlock()
	return nil
}

// Shutdown implements framework.Adapter.
func (c *Core) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.available = false
	c.mu.Unlock()
	return nil
}

// IsAvailable implements framework.Adapter.
func (c *Core) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// SupportsLiveExecution implements framework.Adapter: DomainAgent always
// offers ExecuteLive.
func (c *Core) SupportsLiveExecution() bool { return true }

// ExecuteTask implements AdapterCore.execute_task: classify, then either
// register an agent or dispatch one conversation turn.
func (c *Core) ExecuteTask(ctx context.Context, req contracts.TaskRequest, strategy router.ExecutionStrategy) contracts.TaskResult {
	mode := Classify(req)
	switch mode {
	case ModeInvalidMixed:
		return contracts.NewErrorResult(req.TaskID, contracts.NewError(contracts.ErrRequestValidation, "classify_request", map[string]any{
			"guidance": "Create the agent first", "request_mode": string(mode),
		}), string(mode))
	case ModeAgentCreation:
		return c.executeAgentCreation(ctx, req)
	default:
		return c.executeConversationContinuation(ctx, req, strategy)
	}
}

// executeAgentCreation creates or reuses a runner for req.AgentConfig's
// fingerprint, registers the agent id, and returns success without
// executing a task turn.
func (c *Core) executeAgentCreation(ctx context.Context, req contracts.TaskRequest) contracts.TaskResult {
	agentID := req.AgentID
	if agentID == "" {
		agentID = "agent_" + uuid.NewString()
	}
	client, err := c.resolveProvider(ctx, *req.AgentConfig)
	if err != nil {
		return c.errorResult(ctx, req.TaskID, contracts.ErrRunnerExecution, "create_agent", err, string(ModeAgentCreation), "", agentID)
	}
	runnerID, sessionID, err := c.opts.Runners.GetOrCreateRunner(ctx, *req.AgentConfig, agentID, req.UserContext, "", true, true, client)
	if err != nil {
		return c.errorResult(ctx, req.TaskID, contracts.ErrRunnerExecution, "create_agent", err, string(ModeAgentCreation), "", agentID)
	}
	c.mu.Lock()
	c.agentStore[agentID] = *req.AgentConfig
	c.mu.Unlock()
	c.opts.Runners.MarkRunnerActivity(runnerID)

	return contracts.TaskResult{
		TaskID:    req.TaskID,
		Status:    contracts.TaskStatusSuccess,
		SessionID: sessionID,
		AgentID:   agentID,
		Metadata:  map[string]any{"request_mode": string(ModeAgentCreation), "runner_id": runnerID},
	}
}

// executeConversationContinuation runs the dispatch pipeline: coordinate,
// recover-on-SessionCleared (bounded to one retry), assemble
// RuntimeContext, execute, mark activity.
func (c *Core) executeConversationContinuation(ctx context.Context, req contracts.TaskRequest, strategy router.ExecutionStrategy) contracts.TaskResult {
	mode := string(ModeConversationContinuation)
	agentConfig, ok := c.lookupAgentConfig(req.AgentID)
	if !ok {
		return c.errorResult(ctx, req.TaskID, contracts.ErrContextMissing, "resolve_agent", errUnknownAgent(req.AgentID), mode, "", req.AgentID)
	}

	if err := c.ensureRunnerForAgent(ctx, req.AgentID, agentConfig, req.UserContext); err != nil {
		return c.errorResult(ctx, req.TaskID, contracts.ErrRunnerExecution, "resolve_agent", err, mode, "", req.AgentID)
	}

	userID := contracts.ResolveUserID(req.UserContext)
	chatSessionID := req.SessionID
	if chatSessionID == "" {
		chatSessionID = "chat_" + uuid.NewString()
	}

	coord, err := c.opts.Sessions.Coordinate(ctx, chatSessionID, req.AgentID, userID, req)
	if isSessionCleared(err) {
		coord, err = c.recoverAndRetry(ctx, chatSessionID, userID, req)
	}
	if err != nil {
		return c.errorResult(ctx, req.TaskID, errCode(err, contracts.ErrRunnerExecution), "session_coordination", err, mode, chatSessionID, req.AgentID)
	}

	rc, err := buildRuntimeContext(c.opts.Runners, c.runnerIDForSession(coord.RunnerSessionID, req.AgentID), coord.RunnerSessionID, req.AgentID, agentConfig, userID)
	if err != nil {
		return c.errorResult(ctx, req.TaskID, contracts.ErrRunnerExecution, "build_runtime_context", err, mode, chatSessionID, req.AgentID)
	}

	result := c.opts.DomainAgent.Execute(ctx, agent.AgentRequest{TaskRequest: req, RuntimeContext: rc})
	c.opts.Runners.MarkRunnerActivity(rc.RunnerID)
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["request_mode"] = mode
	if result.SessionID == "" {
		result.SessionID = chatSessionID
	}
	return result
}

// recoverAndRetry implements the bounded-to-one-retry recovery step: on
// SessionCleared, attempt RecoverAndClear once and use its result.
func (c *Core) recoverAndRetry(ctx context.Context, chatSessionID, userID string, req contracts.TaskRequest) (contracts.CoordinationResult, error) {
	if _, err := c.opts.Sessions.Recover(ctx, chatSessionID); err != nil {
		return contracts.CoordinationResult{}, contracts.NewError(contracts.ErrSessionRecoveryFail, "session_recovery", map[string]any{
			"reason": "missing_recovery_record", "chat_session_id": chatSessionID,
		})
	}
	return c.opts.Sessions.RecoverAndClear(ctx, chatSessionID, userID, req)
}

// ensureRunnerForAgent guarantees a runner is bound to agentID before
// SessionCoordinator.Coordinate is asked to create a session in it
// (Coordinate's createSessionForAgent path requires GetRunnerForAgent to
// already resolve).
func (c *Core) ensureRunnerForAgent(ctx context.Context, agentID string, cfg contracts.AgentConfig, uc *contracts.UserContext) error {
	if _, ok := c.opts.Runners.GetRunnerForAgent(agentID); ok {
		return nil
	}
	client, err := c.resolveProvider(ctx, cfg)
	if err != nil {
		return err
	}
	_, _, err = c.opts.Runners.GetOrCreateRunner(ctx, cfg, agentID, uc, "", true, false, client)
	return err
}

// runnerIDForSession resolves the runner owning runnerSessionID, falling
// back to the agent's bound runner (the coordination result may reference
// a session whose runner mapping was just created in this same call).
func (c *Core) runnerIDForSession(runnerSessionID, agentID string) string {
	if id, ok := c.opts.Runners.GetRunnerBySession(runnerSessionID); ok {
		return id
	}
	id, _ := c.opts.Runners.GetRunnerForAgent(agentID)
	return id
}

func (c *Core) lookupAgentConfig(agentID string) (contracts.AgentConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.agentStore[agentID]
	return cfg, ok
}

func (c *Core) resolveProvider(ctx context.Context, cfg contracts.AgentConfig) (model.Client, error) {
	if c.opts.ProviderResolver == nil {
		return nil, nil
	}
	return c.opts.ProviderResolver(ctx, contracts.DecodeProviderConfig(cfg))
}

// ExecuteTaskLive implements AdapterCore.execute_task_live: same resolution
// as ExecuteTask's continuation path, but returns a running stream.Session
// instead of a synchronous TaskResult.
func (c *Core) ExecuteTaskLive(ctx context.Context, req contracts.TaskRequest, approvalRequired agent.ApprovalRequired) (*stream.Session, error) {
	agentConfig, ok := c.lookupAgentConfig(req.AgentID)
	if !ok {
		err := errUnknownAgent(req.AgentID)
		c.opts.Log.Error(ctx, "adapter_core.live_dispatch_failed", "task_id", req.TaskID, "stage", "resolve_agent", "error", err.Error())
		return nil, err
	}
	if err := c.ensureRunnerForAgent(ctx, req.AgentID, agentConfig, req.UserContext); err != nil {
		c.opts.Log.Error(ctx, "adapter_core.live_dispatch_failed", "task_id", req.TaskID, "stage", "resolve_agent", "error", err.Error())
		return nil, err
	}

	userID := contracts.ResolveUserID(req.UserContext)
	chatSessionID := req.SessionID
	if chatSessionID == "" {
		chatSessionID = "chat_" + uuid.NewString()
	}
	coord, err := c.opts.Sessions.Coordinate(ctx, chatSessionID, req.AgentID, userID, req)
	if isSessionCleared(err) {
		coord, err = c.recoverAndRetry(ctx, chatSessionID, userID, req)
	}
	if err != nil {
		c.opts.Log.Error(ctx, "adapter_core.live_dispatch_failed", "task_id", req.TaskID, "stage", "session_coordination", "error", err.Error())
		return nil, err
	}

	rc, err := buildRuntimeContext(c.opts.Runners, c.runnerIDForSession(coord.RunnerSessionID, req.AgentID), coord.RunnerSessionID, req.AgentID, agentConfig, userID)
	if err != nil {
		c.opts.Log.Error(ctx, "adapter_core.live_dispatch_failed", "task_id", req.TaskID, "stage", "build_runtime_context", "error", err.Error())
		return nil, err
	}

	session := c.opts.DomainAgent.ExecuteLive(ctx, agent.AgentRequest{TaskRequest: req, RuntimeContext: rc}, approvalRequired)
	c.opts.Runners.MarkRunnerActivity(rc.RunnerID)
	return session, nil
}

func (c *Core) errorResult(ctx context.Context, taskID string, code contracts.ErrorCode, stage string, err error, requestMode, sessionID, agentID string) contracts.TaskResult {
	c.opts.Log.Error(ctx, "adapter_core.dispatch_failed", "task_id", taskID, "stage", stage, "code", string(code), "error", err.Error())
	details := map[string]any{"request_mode": requestMode, "error": err.Error()}
	if sessionID != "" {
		details["session_id"] = sessionID
	}
	if agentID != "" {
		details["agent_id"] = agentID
	}
	result := contracts.NewErrorResult(taskID, contracts.NewError(code, stage, details), requestMode)
	result.SessionID = sessionID
	result.AgentID = agentID
	return result
}

func isSessionCleared(err error) bool {
	ce, ok := err.(*contracts.Error)
	return ok && ce.Code == contracts.ErrSessionCleared
}

func errCode(err error, fallback contracts.ErrorCode) contracts.ErrorCode {
	if ce, ok := err.(*contracts.Error); ok {
		return ce.Code
	}
	return fallback
}

type unknownAgentError struct{ agentID string }

func (e unknownAgentError) Error() string { return "adapter: unknown agent " + e.agentID }

func errUnknownAgent(agentID string) error { return unknownAgentError{agentID: agentID} }
