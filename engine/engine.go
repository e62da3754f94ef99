// Package engine defines a pluggable run/activity/signal abstraction with
// two backends: an in-process scheduler (engine/inmem) and a durable,
// crash-recoverable one (engine/temporal). No other package in this module
// submits runs through it: RunnerManager, AdapterCore and DomainAgent run
// the turn loop directly on the caller's goroutine.
package engine

import (
	"context"
	"time"

	"github.com/aether-frame/aether-frame/telemetry"
)

type (
	// Engine abstracts run registration and execution so a backend can be
	// swapped without touching DomainAgent or AdapterCore.
	Engine interface {
		// RegisterRun registers a run definition with the engine. Call this
		// during startup, before any StartRun.
		RegisterRun(ctx context.Context, def RunDefinition) error

		// RegisterActivity registers a short-lived, side-effecting task
		// invocable from within a run (e.g. a model call or tool execution).
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartRun launches a run and returns a handle to it. req.ID must be
		// unique for the engine instance.
		StartRun(ctx context.Context, req RunStartRequest) (RunHandle, error)
	}

	// RunDefinition binds a run handler to a logical name and default queue.
	RunDefinition struct {
		Name      string
		TaskQueue string
		Handler   RunFunc
	}

	// RunFunc is the entry point invoked by the engine when a run executes.
	// Deterministic engines (Temporal) replay it, so it must not perform
	// direct I/O, use wall-clock time, or depend on goroutine scheduling
	// order — all of that goes through RunContext instead.
	RunFunc func(ctx RunContext, input any) (any, error)

	// RunContext exposes engine operations to a running RunFunc: activity
	// dispatch, signal delivery, and observability, uniform across backends.
	//
	// A RunContext is bound to a single run and must not be shared across
	// goroutines; the engine serializes activity and signal operations.
	RunContext interface {
		// Context returns the underlying Go context. Use it for activity
		// calls and to observe cancellation.
		Context() context.Context

		RunID() string
		AttemptID() string

		// ExecuteActivity schedules an activity and blocks for its result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules an activity without blocking.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the named channel external callers deliver
		// signals to (approve/deny a tool, inject a user message, cancel).
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns a replay-safe current time.
		Now() time.Time
	}

	// Future is a pending activity result. Get may be called more than once
	// and returns the same result/error each time.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc performs a side-effecting step of a run (model call, tool
	// execution). Unlike RunFunc, it is free to perform I/O.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior for one activity.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// RunStartRequest describes how to launch a run.
	RunStartRequest struct {
		ID          string
		Run         string
		TaskQueue   string
		Input       any
		RetryPolicy RetryPolicy
	}

	// ActivityRequest schedules one activity invocation from within a run.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// RunHandle lets callers interact with a launched run.
	RunHandle interface {
		// Wait blocks until the run completes, decoding its return value
		// into result.
		Wait(ctx context.Context, result any) error

		// Signal delivers an out-of-band message the run can observe via
		// RunContext.SignalChannel.
		Signal(ctx context.Context, name string, payload any) error

		// Cancel requests cancellation of the run.
		Cancel(ctx context.Context) error
	}

	// RetryPolicy is shared by runs and activities. Zero fields mean the
	// engine's default applies.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes signal delivery uniformly across backends.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)
