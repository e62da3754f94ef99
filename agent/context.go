// Package agent implements DomainAgent (spec §4.8): the glue between an
// AdapterCore-assembled RuntimeContext and a concrete model.Client turn
// loop, producing either a synchronous TaskResult or a live StreamSession.
package agent

import (
	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/model"
)

// RuntimeContext is the agent-facing execution context AdapterCore
// assembles for a single task: the resolved runner/session pair plus the
// model.Client that backs it. Kept deliberately separate from
// contracts.ExecutionContext (caller-facing) — see the design notes on
// context overlap in contracts/context.go.
type RuntimeContext struct {
	RunnerID    string
	SessionID   string
	Client      model.Client
	AgentID     string
	AgentConfig contracts.AgentConfig
	UserID      string
}

// Missing enumerates which required components RuntimeContext lacks, per
// the execute() validation step 1. Empty when the context is usable.
func (rc RuntimeContext) Missing() []string {
	var missing []string
	if rc.Client == nil {
		missing = append(missing, "runner")
	}
	if rc.SessionID == "" {
		missing = append(missing, "session_id")
	}
	return missing
}

// AgentRequest bundles the caller's TaskRequest with the RuntimeContext
// AdapterCore resolved for it. This is DomainAgent.execute's sole input.
type AgentRequest struct {
	TaskRequest    contracts.TaskRequest
	RuntimeContext RuntimeContext
}
