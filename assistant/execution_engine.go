// Package assistant implements the top-level AIAssistant facade and the
// ExecutionEngine it delegates to: validate → route → fetch adapter →
// dispatch → normalize, per spec §4.1-4.2.
package assistant

import (
	"context"
	"fmt"

	"github.com/aether-frame/aether-frame/agent"
	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/framework"
	"github.com/aether-frame/aether-frame/router"
	"github.com/aether-frame/aether-frame/stream"
	"github.com/aether-frame/aether-frame/telemetry"
)

// taskAdapter is what ExecutionEngine actually needs from a registered
// framework.Adapter: the lifecycle methods FrameworkRegistry manages, plus
// the two dispatch entrypoints adapter.Core exposes beyond that interface.
type taskAdapter interface {
	framework.Adapter
	ExecuteTask(ctx context.Context, req contracts.TaskRequest, strategy router.ExecutionStrategy) contracts.TaskResult
	ExecuteTaskLive(ctx context.Context, req contracts.TaskRequest, approvalRequired agent.ApprovalRequired) (*stream.Session, error)
}

// ExecutionEngine implements spec §4.2: routing, adapter lookup, dispatch,
// and error-envelope normalization shared by both the sync and live paths.
type ExecutionEngine struct {
	router   *router.Router
	registry *framework.Registry
	log      telemetry.Logger
}

// NewExecutionEngine constructs an ExecutionEngine. log may be nil.
func NewExecutionEngine(r *router.Router, registry *framework.Registry, log telemetry.Logger) *ExecutionEngine {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &ExecutionEngine{router: r, registry: registry, log: log}
}

// ExecuteTask implements ExecutionEngine.execute_task.
func (e *ExecutionEngine) ExecuteTask(ctx context.Context, req contracts.TaskRequest) contracts.TaskResult {
	if err := req.Validate(); err != nil {
		return contracts.NewErrorResult(req.TaskID, err, requestModeOf(req))
	}

	strategy := e.router.Route(req, false)
	adapter, err := e.lookupAdapter(ctx, strategy.FrameworkType)
	if err != nil {
		return e.adapterUnavailable(req, strategy, err)
	}

	result := adapter.ExecuteTask(ctx, req, strategy)
	e.annotateFramework(&result, strategy)
	return result
}

// ExecuteTaskLive implements ExecutionEngine.execute_task_live: same
// routing, but requires the resolved adapter to advertise live support.
func (e *ExecutionEngine) ExecuteTaskLive(ctx context.Context, req contracts.TaskRequest, approvalRequired agent.ApprovalRequired) (*stream.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	strategy := e.router.Route(req, true)
	adapter, err := e.lookupAdapter(ctx, strategy.FrameworkType)
	if err != nil {
		return nil, contracts.NewError(contracts.ErrFrameworkUnavailable, "execution_engine.get_adapter", map[string]any{
			"framework_type": strategy.FrameworkType, "error": err.Error(),
		})
	}
	if !adapter.SupportsLiveExecution() {
		return nil, contracts.NewError(contracts.ErrFrameworkUnavailable, "execution_engine.get_adapter", map[string]any{
			"framework_type": strategy.FrameworkType, "reason": "adapter does not support live execution",
		})
	}

	return adapter.ExecuteTaskLive(ctx, req, approvalRequired)
}

func (e *ExecutionEngine) lookupAdapter(ctx context.Context, frameworkType string) (taskAdapter, error) {
	a, err := e.registry.GetAdapter(ctx, frameworkType)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("no adapter registered for framework %q", frameworkType)
	}
	ta, ok := a.(taskAdapter)
	if !ok {
		return nil, fmt.Errorf("adapter for framework %q does not implement task dispatch", frameworkType)
	}
	return ta, nil
}

func (e *ExecutionEngine) adapterUnavailable(req contracts.TaskRequest, strategy router.ExecutionStrategy, err error) contracts.TaskResult {
	e.log.Error(context.Background(), "execution_engine.get_adapter_failed", "framework_type", strategy.FrameworkType, "error", err.Error())
	return contracts.NewErrorResult(req.TaskID, contracts.NewError(contracts.ErrFrameworkUnavailable, "execution_engine.get_adapter", map[string]any{
		"framework_type": strategy.FrameworkType, "error": err.Error(),
	}), requestModeOf(req))
}

func (e *ExecutionEngine) annotateFramework(result *contracts.TaskResult, strategy router.ExecutionStrategy) {
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["framework_type"] = strategy.FrameworkType
	result.Metadata["task_complexity"] = string(strategy.TaskComplexity)
}

func requestModeOf(req contracts.TaskRequest) string {
	switch {
	case req.AgentConfig != nil && req.AgentID == "" && len(req.Messages) > 0:
		return "agent_creation_with_messages"
	case req.AgentConfig != nil && req.AgentID == "":
		return "agent_creation"
	default:
		return "conversation_continuation"
	}
}
