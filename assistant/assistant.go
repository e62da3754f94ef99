package assistant

import (
	"context"
	"fmt"

	"github.com/aether-frame/aether-frame/agent"
	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/stream"
	"github.com/aether-frame/aether-frame/telemetry"
)

// Version is reported by HealthCheck. Bump alongside breaking contract
// changes.
const Version = "0.1.0"

// AIAssistant is the single entrypoint external callers use: it validates
// incoming requests, then delegates to an ExecutionEngine for routing and
// dispatch. It never talks to a framework.Adapter directly.
type AIAssistant struct {
	engine *ExecutionEngine
	log    telemetry.Logger
}

// New constructs an AIAssistant around engine. log may be nil.
func New(engine *ExecutionEngine, log telemetry.Logger) *AIAssistant {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &AIAssistant{engine: engine, log: log}
}

// ProcessRequest implements AIAssistant.process_request: validate, dispatch,
// and guarantee a contracts.TaskResult is always returned, never a panic.
func (a *AIAssistant) ProcessRequest(ctx context.Context, req contracts.TaskRequest) (result contracts.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error(ctx, "ai_assistant.process_request_panic", "task_id", req.TaskID, "panic", fmt.Sprint(r))
			result = contracts.NewErrorResult(req.TaskID, contracts.NewError(
				contracts.ErrInternal, "ai_assistant.process_request", map[string]any{"panic": fmt.Sprint(r)},
			), requestModeOf(req))
		}
	}()

	if err := req.Validate(); err != nil {
		a.log.Warn(ctx, "ai_assistant.validate_request_failed", "task_id", req.TaskID, "stage", err.Stage, "code", string(err.Code))
		return contracts.NewErrorResult(req.TaskID, err, requestModeOf(req))
	}

	return a.engine.ExecuteTask(ctx, req)
}

// StartLiveSession implements AIAssistant.start_live_session: validate, fill
// in a default ExecutionContext for the live path if the caller omitted one,
// and delegate to the ExecutionEngine for a streaming session.
func (a *AIAssistant) StartLiveSession(ctx context.Context, req contracts.TaskRequest, approvalRequired agent.ApprovalRequired) (*stream.Session, error) {
	if err := req.Validate(); err != nil {
		a.log.Warn(ctx, "ai_assistant.validate_request_failed", "task_id", req.TaskID, "stage", err.Stage, "code", string(err.Code))
		return nil, err
	}
	if req.ExecutionContext == nil {
		req.ExecutionContext = &contracts.ExecutionContext{
			ExecutionID: "live_" + req.TaskID,
			Mode:        "live",
		}
	}

	return a.engine.ExecuteTaskLive(ctx, req, approvalRequired)
}

// HealthCheck implements AIAssistant.health_check: a cheap, synchronous
// liveness signal for callers that don't want to drive a real task.
func (a *AIAssistant) HealthCheck() map[string]any {
	return map[string]any{
		"status":  "ok",
		"version": Version,
	}
}
