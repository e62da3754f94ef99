// Package temporal adapts go.temporal.io/sdk as an optional, durable
// engine.Engine backend: runs are Temporal workflows, activities are
// Temporal activities, and signals flow through Temporal's native signal
// channels. Workflow/runner/session state machines elsewhere in this module
// are engine-agnostic — only the run execution boundary differs from
// engine/inmem.
//
// Workflow code reached through RunFunc must stay deterministic: no direct
// I/O, no wall-clock reads, no goroutine-order dependence. RunContext.Now and
// RunContext.ExecuteActivity are the replay-safe escape hatches; everything
// else (model calls, tool execution) belongs in a registered Activity.
package temporal
