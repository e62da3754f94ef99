// Package framework owns adapter instances keyed by framework type. Unlike
// the system this was distilled from, adapters are registered explicitly
// at construction time — there is no hidden global singleton that
// auto-loads an adapter on first access (spec design note: "convert to
// explicit initialize(settings) injected into AIAssistant at construction;
// remove hidden global state").
package framework

import (
	"context"
	"fmt"
	"sync"

	"github.com/aether-frame/aether-frame/contracts"
)

// Adapter is the contract every framework-specific adapter (e.g. an
// AdapterCore instance) satisfies so FrameworkRegistry can manage its
// lifecycle uniformly.
type Adapter interface {
	Initialize(ctx context.Context, settings map[string]any) error
	Shutdown(ctx context.Context) error
	IsAvailable() bool
	SupportsLiveExecution() bool
}

// Status reports an adapter's health and capabilities, merging the
// supplemented FrameworkCapabilities descriptor.
type Status struct {
	FrameworkType string
	Initialized   bool
	Available     bool
	Capabilities  contracts.FrameworkCapabilities
}

// Registry owns adapter instances keyed by framework type. Registration is
// explicit: callers must call RegisterAdapter before GetAdapter will ever return an
// adapter; there is no lazy auto-load path.
type Registry struct {
	mu           sync.RWMutex
	adapters     map[string]Adapter
	settings     map[string]map[string]any
	initialized  map[string]bool
	capabilities map[string]contracts.FrameworkCapabilities
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		adapters:     map[string]Adapter{},
		settings:     map[string]map[string]any{},
		initialized:  map[string]bool{},
		capabilities: map[string]contracts.FrameworkCapabilities{},
	}
}

// RegisterAdapter adds adapter under frameworkType with its initialization
// settings and static capability descriptor. It does not initialize the
// adapter; InitializeAll or GetAdapter (lazily, once) does.
func (r *Registry) RegisterAdapter(frameworkType string, adapter Adapter, settings map[string]any, caps contracts.FrameworkCapabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[frameworkType] = adapter
	r.settings[frameworkType] = settings
	r.capabilities[frameworkType] = caps
}

// GetAdapter returns the registered adapter for frameworkType, lazily
// initializing it on first access. Returns (nil, nil) if nothing was
// registered under that type — it never attempts to discover or construct
// one.
func (r *Registry) GetAdapter(ctx context.Context, frameworkType string) (Adapter, error) {
	r.mu.Lock()
	adapter, ok := r.adapters[frameworkType]
	if !ok {
		r.mu.Unlock()
		return nil, nil
	}
	alreadyInit := r.initialized[frameworkType]
	settings := r.settings[frameworkType]
	r.mu.Unlock()

	if alreadyInit {
		return adapter, nil
	}
	if err := adapter.Initialize(ctx, settings); err != nil {
		return nil, fmt.Errorf("initialize adapter %s: %w", frameworkType, err)
	}
	r.mu.Lock()
	r.initialized[frameworkType] = true
	r.mu.Unlock()
	return adapter, nil
}

// GetAvailableFrameworks lists every registered framework type.
func (r *Registry) GetAvailableFrameworks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	return out
}

// InitializeAll eagerly initializes every registered adapter, propagating
// the first initialization error encountered (errors are never swallowed).
func (r *Registry) InitializeAll(ctx context.Context) error {
	r.mu.RLock()
	types := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		types = append(types, k)
	}
	r.mu.RUnlock()
	for _, t := range types {
		if _, err := r.GetAdapter(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// ShutdownAll shuts down every registered adapter, initialized or not, collecting (but not
// stopping on) individual errors.
func (r *Registry) ShutdownAll(ctx context.Context) []error {
	r.mu.RLock()
	adapters := make(map[string]Adapter, len(r.adapters))
	for k, v := range r.adapters {
		adapters[k] = v
	}
	r.mu.RUnlock()
	var errs []error
	for t, a := range adapters {
		if err := a.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown adapter %s: %w", t, err))
		}
	}
	return errs
}

// GetAdapterStatus reports health and capabilities for frameworkType.
func (r *Registry) GetAdapterStatus(frameworkType string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[frameworkType]
	if !ok {
		return Status{}, false
	}
	return Status{
		FrameworkType: frameworkType,
		Initialized:   r.initialized[frameworkType],
		Available:     adapter.IsAvailable(),
		Capabilities:  r.capabilities[frameworkType],
	}, true
}
