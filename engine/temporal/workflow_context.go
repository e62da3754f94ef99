package temporal

import (
	"context"
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aether-frame/aether-frame/engine"
	"github.com/aether-frame/aether-frame/telemetry"
)

// workflowFunc adapts def.Handler (an engine.RunFunc) into the
// func(workflow.Context, any) (any, error) shape Temporal's worker expects,
// wrapping the Temporal workflow.Context in a runContext so def.Handler never
// observes the SDK directly.
func (e *Engine) workflowFunc(def engine.RunDefinition) func(workflow.Context, any) (any, error) {
	return func(wctx workflow.Context, input any) (any, error) {
		rc := newRunContext(e, wctx)
		result, err := def.Handler(rc, input)
		return result, normalizeTemporalError(err)
	}
}

// normalizeTemporalError translates Temporal's cancellation error into
// context.Canceled so callers can classify cancellation the same way
// regardless of which engine backend is in use.
func normalizeTemporalError(err error) error {
	if err == nil {
		return nil
	}
	if sdktemporal.IsCanceledError(err) {
		return context.Canceled
	}
	return err
}

type runContext struct {
	engine *Engine
	wctx   workflow.Context
	runID  string
}

func newRunContext(e *Engine, wctx workflow.Context) *runContext {
	info := workflow.GetInfo(wctx)
	return &runContext{engine: e, wctx: wctx, runID: info.WorkflowExecution.RunID}
}

func (r *runContext) Context() context.Context {
	// Workflow code must not use a plain context.Context for blocking calls
	// (it bypasses replay); this exists only so RunContext satisfies callers
	// that thread a context through non-blocking helpers (e.g. logging keys).
	return context.Background()
}

func (r *runContext) RunID() string { return r.runID }
func (r *runContext) AttemptID() string {
	return fmt.Sprintf("%d", workflow.GetInfo(r.wctx).Attempt)
}

func (r *runContext) Logger() telemetry.Logger   { return r.engine.log }
func (r *runContext) Metrics() telemetry.Metrics { return r.engine.metrics }
func (r *runContext) Tracer() telemetry.Tracer   { return r.engine.tracer }
func (r *runContext) Now() time.Time             { return workflow.Now(r.wctx) }

func (r *runContext) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := r.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (r *runContext) ExecuteActivityAsync(ctx context.Context, req engine.ActivityRequest) (engine.Future, error) {
	opts := workflow.ActivityOptions{
		TaskQueue:           req.Queue,
		StartToCloseTimeout: req.Timeout,
	}
	if opts.StartToCloseTimeout <= 0 {
		opts.StartToCloseTimeout = time.Minute
	}
	if req.RetryPolicy.MaxAttempts > 0 || req.RetryPolicy.InitialInterval > 0 {
		opts.RetryPolicy = retryPolicy(req.RetryPolicy)
	}
	actCtx := workflow.WithActivityOptions(r.wctx, opts)
	future := workflow.ExecuteActivity(actCtx, req.Name, req.Input)
	return &runFuture{wctx: r.wctx, future: future}, nil
}

func (r *runContext) SignalChannel(name string) engine.SignalChannel {
	return &runSignalChannel{wctx: r.wctx, ch: workflow.GetSignalChannel(r.wctx, name)}
}

type runFuture struct {
	wctx   workflow.Context
	future workflow.Future
}

func (f *runFuture) Get(ctx context.Context, result any) error {
	return normalizeTemporalError(f.future.Get(f.wctx, result))
}

func (f *runFuture) IsReady() bool { return f.future.IsReady() }

type runSignalChannel struct {
	wctx workflow.Context
	ch   workflow.ReceiveChannel
}

func (s *runSignalChannel) Receive(ctx context.Context, dest any) error {
	s.ch.Receive(s.wctx, dest)
	return nil
}

func (s *runSignalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}
