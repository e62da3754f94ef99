// Package adapter implements AdapterCore (spec §4.5): request
// classification, the SessionCoordinator/RunnerManager dispatch pipeline,
// and RuntimeContext assembly feeding DomainAgent.
package adapter

import (
	"context"
	"fmt"

	"github.com/aether-frame/aether-frame/agent"
	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/model"
	"github.com/aether-frame/aether-frame/runner"
)

// ProviderResolver constructs a model.Client for a decoded ProviderConfig.
// Concrete wiring (choosing anthropic/openai/bedrock and reading API keys
// from the configured env var) lives with the caller — Core stays provider
// agnostic.
type ProviderResolver func(ctx context.Context, cfg contracts.ProviderConfig) (model.Client, error)

// clientHandle adapts a constructed model.Client to runner.Handle, so
// RunnerManager can pool it without knowing about model.Client at all. It
// is the NewHandle factory's return value.
type clientHandle struct {
	client model.Client
}

func (h *clientHandle) Shutdown(context.Context) error { return nil }

// Client exposes the pooled model.Client back to RuntimeContext assembly.
func (h *clientHandle) Client() model.Client { return h.client }

// NewHandleFactory builds the runner.Settings.NewHandle callback callers
// wire into runner.New: it resolves the agent config's provider config into
// a concrete model.Client via resolve, then wraps it as a clientHandle.
func NewHandleFactory(resolve ProviderResolver) func(ctx context.Context, cfg contracts.AgentConfig, provider model.Client) (runner.Handle, error) {
	return func(ctx context.Context, cfg contracts.AgentConfig, provider model.Client) (runner.Handle, error) {
		if provider != nil {
			return &clientHandle{client: provider}, nil
		}
		client, err := resolve(ctx, contracts.DecodeProviderConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("resolve model client: %w", err)
		}
		return &clientHandle{client: client}, nil
	}
}

// buildRuntimeContext assembles an agent.RuntimeContext from the resolved
// runner/session pair, per spec §4.5 step 3. agentConfig/agentID are the
// values this request resolved to (either just-created or looked up from
// the agent store).
func buildRuntimeContext(runners *runner.Manager, runnerID, sessionID, agentID string, agentConfig contracts.AgentConfig, userID string) (agent.RuntimeContext, error) {
	rc, ok := runners.RunnerContext(runnerID)
	if !ok {
		return agent.RuntimeContext{}, fmt.Errorf("runner %s not found", runnerID)
	}
	handle, ok := rc.RunnerHandle.(*clientHandle)
	if !ok {
		return agent.RuntimeContext{}, fmt.Errorf("runner %s has no model client handle", runnerID)
	}
	return agent.RuntimeContext{
		RunnerID:    runnerID,
		SessionID:   sessionID,
		Client:      handle.Client(),
		AgentID:     agentID,
		AgentConfig: agentConfig,
		UserID:      userID,
	}, nil
}
