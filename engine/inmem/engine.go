// Package inmem is the default Engine backend: a goroutine/channel-based
// scheduler with no external dependency, satisfying the "cooperative task
// runtime, no blocking I/O on the hot path" requirement directly. It is not
// durable — a process restart loses all in-flight runs.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/aether-frame/aether-frame/engine"
	"github.com/aether-frame/aether-frame/telemetry"
)

type (
	eng struct {
		mu         sync.RWMutex
		runs       map[string]engine.RunDefinition
		activities map[string]activity
		log        telemetry.Logger
	}

	activity struct {
		handler func(context.Context, any) (any, error)
		opts    engine.ActivityOptions
	}

	handle struct {
		mu     sync.Mutex
		done   chan struct{}
		result any
		err    error
		rc     *runContext
	}

	runContext struct {
		ctx   context.Context
		runID string
		eng   *eng

		sigMu sync.Mutex
		sigs  map[string]*signalChan
	}

	future struct {
		ready  chan struct{}
		mu     sync.Mutex
		result any
		err    error
	}

	signalChan struct{ ch chan any }
)

// New returns an Engine suitable for local development, tests, and simple
// single-process deployments.
func New(log telemetry.Logger) engine.Engine {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &eng{
		runs:       map[string]engine.RunDefinition{},
		activities: map[string]activity{},
		log:        log,
	}
}

func (e *eng) RegisterRun(ctx context.Context, def engine.RunDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid run definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.runs[def.Name]; dup {
		return fmt.Errorf("inmem: run %q already registered", def.Name)
	}
	e.runs[def.Name] = def
	return nil
}

func (e *eng) RegisterActivity(ctx context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid activity definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("inmem: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = activity{handler: def.Handler, opts: def.Options}
	return nil
}

func (e *eng) StartRun(ctx context.Context, req engine.RunStartRequest) (engine.RunHandle, error) {
	if req.ID == "" {
		return nil, errors.New("inmem: run id is required")
	}
	e.mu.RLock()
	def, ok := e.runs[req.Run]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: run %q not registered", req.Run)
	}

	rc := &runContext{ctx: ctx, runID: req.ID, eng: e, sigs: map[string]*signalChan{}}
	h := &handle{done: make(chan struct{}), rc: rc}

	go func() {
		defer close(h.done)
		result, err := def.Handler(rc, req.Input)
		h.mu.Lock()
		h.result, h.err = result, err
		h.mu.Unlock()
		if err != nil {
			e.log.Warn(ctx, "inmem_engine.run_failed", "run_id", req.ID, "error", err.Error())
		}
	}()

	return h, nil
}

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		assignResult(result, h.result)
		return h.err
	}
}

func (h *handle) Signal(ctx context.Context, name string, payload any) error {
	ch := h.rc.SignalChannel(name).(*signalChan)
	select {
	case ch.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errors.New("inmem: run already completed")
	}
}

func (h *handle) Cancel(ctx context.Context) error {
	return nil // cancellation flows through the caller's ctx, not a side channel
}

func (r *runContext) Context() context.Context { return r.ctx }
func (r *runContext) RunID() string            { return r.runID }
func (r *runContext) AttemptID() string        { return r.runID }
func (r *runContext) Logger() telemetry.Logger { return r.eng.log }
func (r *runContext) Metrics() telemetry.Metrics {
	return telemetry.NewNoopMetrics()
}
func (r *runContext) Tracer() telemetry.Tracer { return telemetry.NewNoopTracer() }
func (r *runContext) Now() time.Time           { return time.Now() }

func (r *runContext) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := r.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (r *runContext) ExecuteActivityAsync(ctx context.Context, req engine.ActivityRequest) (engine.Future, error) {
	r.eng.mu.RLock()
	act, ok := r.eng.activities[req.Name]
	r.eng.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: activity %q not registered", req.Name)
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if req.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}

	f := &future{ready: make(chan struct{})}
	go func() {
		defer cancel()
		defer close(f.ready)
		result, err := act.handler(callCtx, req.Input)
		f.mu.Lock()
		f.result, f.err = result, err
		f.mu.Unlock()
	}()
	return f, nil
}

func (r *runContext) SignalChannel(name string) engine.SignalChannel {
	r.sigMu.Lock()
	defer r.sigMu.Unlock()
	ch, ok := r.sigs[name]
	if !ok {
		ch = &signalChan{ch: make(chan any, 1)}
		r.sigs[name] = ch
	}
	return ch
}

func (f *future) Get(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ready:
		f.mu.Lock()
		defer f.mu.Unlock()
		assignResult(result, f.result)
		return f.err
	}
}

func (f *future) IsReady() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

func (s *signalChan) Receive(ctx context.Context, dest any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case v := <-s.ch:
		assignResult(dest, v)
		return nil
	}
}

func (s *signalChan) ReceiveAsync(dest any) bool {
	select {
	case v := <-s.ch:
		assignResult(dest, v)
		return true
	default:
		return false
	}
}

func assignResult(dst, src any) {
	if dst == nil || src == nil {
		return
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return
	}
	sv := reflect.ValueOf(src)
	if !sv.IsValid() {
		return
	}
	if sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return
	}
	if dv.Elem().Kind() == reflect.Interface && sv.Type().Implements(dv.Elem().Type()) {
		dv.Elem().Set(sv)
	}
}
