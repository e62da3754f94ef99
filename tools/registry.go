package tools

import (
	"sort"
	"strings"
	"sync"

	"github.com/aether-frame/aether-frame/contracts"
)

// Registry holds registered tools keyed by fully-qualified name
// (<namespace>.<local>), indexed additionally by namespace for resolution
// and listing.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	namespaces map[string][]string // namespace -> fully-qualified names
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}, namespaces: map[string][]string{}}
}

// Register adds tool under its Describe().Name, indexing it by Namespace.
// Re-registering the same name replaces the prior entry.
func (r *Registry) Register(tool Tool) {
	spec := tool.Describe()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; !exists {
		r.namespaces[spec.Namespace] = append(r.namespaces[spec.Namespace], spec.Name)
	}
	r.tools[spec.Name] = tool
}

// Get looks up a tool by fully-qualified name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Resolve applies ToolService's exact/namespaced/bare-name fallback order:
// (1) exact fully-qualified match, (2) "<namespace>.<name>" when a separate
// namespace is given, (3) first tool whose local part matches name.
func (r *Registry) Resolve(name, namespace string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		return t, true
	}
	if namespace != "" {
		if t, ok := r.tools[namespace+"."+name]; ok {
			return t, true
		}
	}
	for fqName, t := range r.tools {
		if localPart(fqName) == name {
			return t, true
		}
	}
	return nil, false
}

// List returns all registered tools sorted by namespace then name.
func (r *Registry) List() []contracts.UniversalTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.UniversalTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Describe())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Names returns every registered fully-qualified tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func localPart(fullyQualified string) string {
	idx := strings.LastIndex(fullyQualified, ".")
	if idx < 0 {
		return fullyQualified
	}
	return fullyQualified[idx+1:]
}
