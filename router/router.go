// Package router implements TaskRouter: a pure function that classifies a
// TaskRequest's complexity and selects an ExecutionStrategy. It performs no
// I/O and invokes no network, by specification.
package router

import (
	"github.com/aether-frame/aether-frame/contracts"
)

// Complexity enumerates TaskRouter's complexity classification.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityAdvanced Complexity = "advanced"
)

// ExecutionMode enumerates ExecutionStrategy.ExecutionMode values.
type ExecutionMode string

const (
	ModeSync        ExecutionMode = "sync"
	ModeAsync       ExecutionMode = "async"
	ModeStreaming   ExecutionMode = "streaming"
	ModeBatch       ExecutionMode = "batch"
	ModeInteractive ExecutionMode = "interactive"
)

// ExecutionStrategy is the router's output: which framework to target, how
// complex the task looks, and what execution mode/options to apply.
type ExecutionStrategy struct {
	FrameworkType      string
	TaskComplexity     Complexity
	ExecutionConfig    *contracts.ExecutionConfig
	RuntimeOptions     map[string]any
	ExecutionMode      ExecutionMode
	FrameworkScore     float64
	FallbackFrameworks []string
}

// Router scores and classifies task requests. Capabilities, keyed by
// framework type, feeds the fallback scoring (supplemented
// FrameworkCapabilities from the original system).
type Router struct {
	defaultFramework string
	capabilities     map[string]contracts.FrameworkCapabilities
}

// New constructs a Router. capabilities may be nil; frameworks without an
// entry are treated as having no special capabilities for scoring.
func New(defaultFramework string, capabilities map[string]contracts.FrameworkCapabilities) *Router {
	if capabilities == nil {
		capabilities = map[string]contracts.FrameworkCapabilities{}
	}
	return &Router{defaultFramework: defaultFramework, capabilities: capabilities}
}

// Route classifies req and returns an ExecutionStrategy. live reports
// whether the caller is starting a live session: live callers get
// ModeStreaming, all others ModeSync.
func (r *Router) Route(req contracts.TaskRequest, live bool) ExecutionStrategy {
	framework := r.defaultFramework
	if req.AgentConfig != nil && req.AgentConfig.FrameworkType != "" {
		framework = req.AgentConfig.FrameworkType
	}
	complexity := classify(len(req.Messages), len(req.AvailableTools))
	mode := ModeSync
	if live {
		mode = ModeStreaming
	}
	var execConfig *contracts.ExecutionConfig
	var runtimeOpts map[string]any
	if req.ExecutionConfig != nil {
		execConfig = req.ExecutionConfig
		runtimeOpts = req.ExecutionConfig.RuntimeOptions
	}
	return ExecutionStrategy{
		FrameworkType:      framework,
		TaskComplexity:     complexity,
		ExecutionConfig:    execConfig,
		RuntimeOptions:     runtimeOpts,
		ExecutionMode:      mode,
		FrameworkScore:     r.score(framework, complexity, live),
		FallbackFrameworks: r.fallbacks(framework, live),
	}
}

// classify implements the complexity heuristic: len(messages) >= 11 OR
// len(available_tools) >= 6 → complex; else >= 4 OR >= 3 → moderate; else
// simple.
func classify(messageCount, toolCount int) Complexity {
	if messageCount >= 11 || toolCount >= 6 {
		return ComplexityComplex
	}
	if messageCount >= 4 || toolCount >= 3 {
		return ComplexityModerate
	}
	return ComplexitySimple
}

func (r *Router) score(framework string, complexity Complexity, live bool) float64 {
	caps, ok := r.capabilities[framework]
	if !ok {
		return 0.5
	}
	score := 0.5
	if live && caps.Streaming {
		score += 0.3
	}
	if caps.AsyncExecution {
		score += 0.1
	}
	if complexity == ComplexityComplex && caps.MaxIterations >= 10 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (r *Router) fallbacks(framework string, live bool) []string {
	var out []string
	for name, caps := range r.capabilities {
		if name == framework {
			continue
		}
		if live && !caps.Streaming {
			continue
		}
		out = append(out, name)
	}
	return out
}
