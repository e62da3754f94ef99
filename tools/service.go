package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/telemetry"
	"golang.org/x/time/rate"
)

// RemoteSource discovers and dispatches tools hosted by a remote tool
// server. ToolService registers every tool a RemoteSource reports during
// Initialize and routes calls for those tools back through it. ExecuteTool
// waits on one Service-wide token bucket before running any tool, local or
// remote; it limits the call rate, not the number of calls in flight.
type RemoteSource interface {
	ListTools(ctx context.Context) ([]contracts.UniversalTool, error)
	CallTool(ctx context.Context, req contracts.ToolRequest) (contracts.ToolResult, error)
	CallToolStream(ctx context.Context, req contracts.ToolRequest, emit func(contracts.ToolResult)) error
	Shutdown(ctx context.Context) error
}

// Options configures a Service.
type Options struct {
	Logger                telemetry.Logger
	Metrics               telemetry.Metrics
	MaxConcurrentRemote    int // burst and per-second refill of the Service-wide token bucket; 0 defaults to 8
}

// Service implements the ToolRegistry + execution contract: registration,
// parameter validation, synchronous and streaming execution, with remote
// tool servers folded into the same registry after discovery.
type Service struct {
	registry *Registry
	remotes  map[string]RemoteSource // keyed by fully-qualified namespace prefix
	limiter  *rate.Limiter
	log      telemetry.Logger
	metrics  telemetry.Metrics
}

// NewService constructs a Service with its own empty Registry.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	burst := opts.MaxConcurrentRemote
	if burst <= 0 {
		burst = 8
	}
	return &Service{
		registry: NewRegistry(),
		remotes:  map[string]RemoteSource{},
		limiter:  rate.NewLimiter(rate.Limit(burst), burst),
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Registry exposes the underlying tool registry (e.g. for a Resolver).
func (s *Service) Registry() *Registry { return s.registry }

// RegisterTool adds a locally-implemented tool.
func (s *Service) RegisterTool(tool Tool) { s.registry.Register(tool) }

// RegisterRemoteSource discovers tools from source (tagged under
// namespacePrefix) and routes their execution through it.
func (s *Service) RegisterRemoteSource(ctx context.Context, namespacePrefix string, source RemoteSource) error {
	discovered, err := source.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("discover remote tools for %s: %w", namespacePrefix, err)
	}
	s.remotes[namespacePrefix] = source
	for _, spec := range discovered {
		s.registry.Register(remoteTool{spec: spec, source: source})
	}
	return nil
}

// Shutdown cleans up every registered remote source.
func (s *Service) Shutdown(ctx context.Context) {
	for prefix, r := range s.remotes {
		if err := r.Shutdown(ctx); err != nil {
			s.log.Warn(ctx, "tool_service.remote_shutdown_failed", "namespace", prefix, "error", err.Error())
		}
	}
}

// ExecuteTool resolves and runs req, returning a normalized ToolResult
// (never propagating a raw error for expected failure modes — those are
// represented as ToolResult.Status).
func (s *Service) ExecuteTool(ctx context.Context, req contracts.ToolRequest) contracts.ToolResult {
	start := time.Now()
	tool, ok := s.registry.Resolve(req.ToolName, req.ToolNamespace)
	if !ok {
		return contracts.ToolResult{
			ToolName:     req.QualifiedName(),
			Status:       contracts.ToolStatusNotFound,
			ErrorMessage: "tool not declared",
			Metadata:     map[string]any{"error_code": string(contracts.ErrToolNotDeclared)},
		}
	}
	if !req.UserContext.HasPermission(tool.Describe().Namespace, tool.Describe().Name) {
		return contracts.ToolResult{
			ToolName:     tool.Describe().Name,
			Status:       contracts.ToolStatusUnauthorized,
			ErrorMessage: "access denied",
			Metadata:     map[string]any{"error_code": string(contracts.ErrToolUnauthorized)},
		}
	}
	if !tool.ValidateParameters(req.Parameters) {
		return contracts.ToolResult{
			ToolName:     tool.Describe().Name,
			Status:       contracts.ToolStatusError,
			ErrorMessage: "invalid parameters",
			Metadata:     map[string]any{"error_code": string(contracts.ErrToolInvalidParams)},
		}
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return contracts.ToolResult{
			ToolName:     tool.Describe().Name,
			Status:       contracts.ToolStatusTimeout,
			ErrorMessage: err.Error(),
		}
	}
	result, err := tool.Execute(ctx, req)
	result.ExecutionTime = time.Since(start)
	s.metrics.RecordTimer("tool.execution", result.ExecutionTime, "tool", tool.Describe().Name)
	if err != nil {
		s.log.Error(ctx, "tool_service.execution_failed", "tool", tool.Describe().Name, "error", err.Error())
		return contracts.ToolResult{
			ToolName:     tool.Describe().Name,
			Status:       contracts.ToolStatusError,
			ErrorMessage: err.Error(),
			Metadata:     map[string]any{"error_code": string(contracts.ErrToolExecution)},
		}
	}
	result.ToolName = tool.Describe().Name
	return result
}

// ExecuteToolStream runs req, emitting incremental chunks via emit. Tools
// without native streaming fall back to a single sync ExecuteTool call,
// with the final chunk's Metadata flagged fallback_to_sync=true.
func (s *Service) ExecuteToolStream(ctx context.Context, req contracts.ToolRequest, emit func(contracts.ToolResult)) {
	tool, ok := s.registry.Resolve(req.ToolName, req.ToolNamespace)
	if !ok {
		emit(contracts.ToolResult{
			ToolName:     req.QualifiedName(),
			Status:       contracts.ToolStatusNotFound,
			ErrorMessage: "tool not declared",
		})
		return
	}
	if !req.UserContext.HasPermission(tool.Describe().Namespace, tool.Describe().Name) {
		emit(contracts.ToolResult{ToolName: tool.Describe().Name, Status: contracts.ToolStatusUnauthorized})
		return
	}
	if !tool.ValidateParameters(req.Parameters) {
		emit(contracts.ToolResult{ToolName: tool.Describe().Name, Status: contracts.ToolStatusError, ErrorMessage: "invalid parameters"})
		return
	}
	streamer, ok := tool.(StreamingTool)
	if !ok {
		result := s.ExecuteTool(ctx, req)
		if result.Metadata == nil {
			result.Metadata = map[string]any{}
		}
		result.Metadata["fallback_to_sync"] = true
		emit(result)
		return
	}
	if err := streamer.ExecuteStream(ctx, req, emit); err != nil {
		emit(contracts.ToolResult{
			ToolName:     tool.Describe().Name,
			Status:       contracts.ToolStatusError,
			ErrorMessage: err.Error(),
		})
	}
}

// remoteTool adapts a RemoteSource-discovered tool to the Tool interface.
type remoteTool struct {
	spec   contracts.UniversalTool
	source RemoteSource
}

func (t remoteTool) Describe() contracts.UniversalTool { return t.spec }

func (t remoteTool) ValidateParameters(map[string]any) bool { return true }

func (t remoteTool) Execute(ctx context.Context, req contracts.ToolRequest) (contracts.ToolResult, error) {
	return t.source.CallTool(ctx, req)
}

func (t remoteTool) ExecuteStream(ctx context.Context, req contracts.ToolRequest, emit func(contracts.ToolResult)) error {
	return t.source.CallToolStream(ctx, req, emit)
}
