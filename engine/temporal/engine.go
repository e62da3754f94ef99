package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/aether-frame/aether-frame/engine"
	"github.com/aether-frame/aether-frame/telemetry"
)

// Options configures the Temporal engine adapter. Either Client or
// ClientOptions must be set.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, New constructs one
	// from ClientOptions and owns its lifecycle (closed by Engine.Close).
	Client client.Client

	// ClientOptions configures client construction when Client is nil.
	ClientOptions client.Options

	// TaskQueue is the default queue used when a RunDefinition/ActivityDefinition
	// omits one. Required.
	TaskQueue string

	// WorkerOptions is forwarded to worker.New for the default queue's worker.
	WorkerOptions worker.Options

	// DisableTracing/DisableMetrics opt out of the OTEL interceptors Temporal's
	// SDK ships for workflow/activity instrumentation. Both are enabled by
	// default.
	DisableTracing bool
	DisableMetrics bool

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Engine implements engine.Engine backed by Temporal. It owns one worker per
// distinct task queue seen across RegisterRun/RegisterActivity calls,
// lazily started on first Start call.
type Engine struct {
	mu          sync.Mutex
	client      client.Client
	closeClient bool
	defaultTQ   string
	workerOpts  worker.Options
	workers     map[string]worker.Worker
	started     bool

	log     telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	runsMu sync.RWMutex
	runs   map[string]engine.RunDefinition
}

// New constructs a Temporal-backed Engine. Call Start to begin polling task
// queues, and Close to shut everything down.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, errors.New("temporal engine: TaskQueue is required")
	}
	c := opts.Client
	closeClient := false
	if c == nil {
		clientOpts := opts.ClientOptions
		if !opts.DisableTracing {
			interceptor, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
			if err != nil {
				return nil, fmt.Errorf("temporal engine: build tracing interceptor: %w", err)
			}
			clientOpts.Interceptors = append(clientOpts.Interceptors, interceptor)
		}
		if !opts.DisableMetrics {
			handler, err := temporalotel.NewMetricsHandler(temporalotel.MetricsHandlerOptions{})
			if err != nil {
				return nil, fmt.Errorf("temporal engine: build metrics handler: %w", err)
			}
			clientOpts.MetricsHandler = handler
		}
		var err error
		c, err = client.Dial(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: dial client: %w", err)
		}
		closeClient = true
	}

	log := opts.Logger
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	return &Engine{
		client:      c,
		closeClient: closeClient,
		defaultTQ:   opts.TaskQueue,
		workerOpts:  opts.WorkerOptions,
		workers:     map[string]worker.Worker{},
		log:         log,
		metrics:     metrics,
		tracer:      tracer,
		runs:        map[string]engine.RunDefinition{},
	}, nil
}

func (e *Engine) queue(name string) string {
	if name == "" {
		return e.defaultTQ
	}
	return name
}

func (e *Engine) workerFor(queue string) worker.Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workers[queue]
	if !ok {
		w = worker.New(e.client, queue, e.workerOpts)
		e.workers[queue] = w
	}
	return w
}

// RegisterRun registers def as a Temporal workflow on its task queue.
func (e *Engine) RegisterRun(ctx context.Context, def engine.RunDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("temporal engine: invalid run definition")
	}
	e.runsMu.Lock()
	if _, dup := e.runs[def.Name]; dup {
		e.runsMu.Unlock()
		return fmt.Errorf("temporal engine: run %q already registered", def.Name)
	}
	e.runs[def.Name] = def
	e.runsMu.Unlock()

	w := e.workerFor(e.queue(def.TaskQueue))
	w.RegisterWorkflowWithOptions(e.workflowFunc(def), workflow.RegisterOptions{Name: def.Name})
	return nil
}

// RegisterActivity registers def as a Temporal activity on its task queue.
func (e *Engine) RegisterActivity(ctx context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("temporal engine: invalid activity definition")
	}
	handler := def.Handler
	w := e.workerFor(e.queue(def.Options.Queue))
	w.RegisterActivityWithOptions(func(ctx context.Context, input any) (any, error) {
		return handler(ctx, input)
	}, activity.RegisterOptions{Name: def.Name})
	return nil
}

// StartRun starts req as a Temporal workflow execution.
func (e *Engine) StartRun(ctx context.Context, req engine.RunStartRequest) (engine.RunHandle, error) {
	if req.ID == "" {
		return nil, errors.New("temporal engine: run id is required")
	}
	startOpts := client.StartWorkflowOptions{
		ID:        req.ID,
		TaskQueue: e.queue(req.TaskQueue),
	}
	if req.RetryPolicy.MaxAttempts > 0 || req.RetryPolicy.InitialInterval > 0 {
		startOpts.RetryPolicy = retryPolicy(req.RetryPolicy)
	}
	run, err := e.client.ExecuteWorkflow(ctx, startOpts, req.Run, req.Input)
	if err != nil {
		return nil, fmt.Errorf("temporal engine: start run %q: %w", req.Run, err)
	}
	return &runHandle{client: e.client, run: run}, nil
}

// Start begins polling every registered task queue. Call once after all
// RegisterRun/RegisterActivity calls.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	for queue, w := range e.workers {
		if err := w.Start(); err != nil {
			return fmt.Errorf("temporal engine: start worker for queue %q: %w", queue, err)
		}
	}
	e.started = true
	return nil
}

// Close stops all workers and, if this Engine owns the client, closes it.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.workers {
		w.Stop()
	}
	if e.closeClient {
		e.client.Close()
	}
}

type runHandle struct {
	client client.Client
	run    client.WorkflowRun
}

func (h *runHandle) Wait(ctx context.Context, result any) error {
	err := h.run.Get(ctx, result)
	return normalizeTemporalError(err)
}

func (h *runHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

func (h *runHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}

func retryPolicy(rp engine.RetryPolicy) *sdktemporal.RetryPolicy {
	coeff := rp.BackoffCoefficient
	if coeff < 1 {
		coeff = 1
	}
	interval := rp.InitialInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &sdktemporal.RetryPolicy{
		InitialInterval:    interval,
		BackoffCoefficient: coeff,
		MaximumAttempts:    int32(rp.MaxAttempts),
	}
}
