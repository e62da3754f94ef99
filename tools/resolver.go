package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/telemetry"
)

// ErrToolNotFound is returned when a name cannot be resolved to a
// registered tool, or resolves but the caller lacks permission for it.
type ErrToolNotFound struct {
	Name   string
	Reason string // "not_registered" | "access_denied"
}

func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool not found: %s (%s)", e.Name, e.Reason)
}

// Resolver maps user-friendly tool names to fully-qualified UniversalTool
// entries, applying permission filtering and fuzzy suggestions on miss.
// Resolution order mirrors the reference name-matching policy: (1) exact
// match, (2) suffix match ".<name>" with first-candidate-wins on ties, (3)
// substring match on the local part, same first-wins rule.
type Resolver struct {
	registry *Registry
	log      telemetry.Logger
}

// NewResolver constructs a Resolver over registry. log may be nil to use a
// no-op logger.
func NewResolver(registry *Registry, log telemetry.Logger) *Resolver {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Resolver{registry: registry, log: log}
}

// ResolveTools resolves each requested name to a UniversalTool, applying
// the permission check from uc. Names that fail to resolve or that the
// caller lacks permission for produce an *ErrToolNotFound error; resolution
// of the remaining names continues independently.
func (r *Resolver) ResolveTools(ctx context.Context, names []string, uc *contracts.UserContext) ([]contracts.UniversalTool, []error) {
	var resolved []contracts.UniversalTool
	var errs []error
	for _, name := range names {
		tool, err := r.resolveSingle(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		spec := tool.Describe()
		if !uc.HasPermission(spec.Namespace, spec.Name) {
			r.log.Warn(ctx, "tool.access_denied", "name", spec.Name)
			errs = append(errs, &ErrToolNotFound{Name: name, Reason: "access_denied"})
			continue
		}
		resolved = append(resolved, spec)
	}
	return resolved, errs
}

func (r *Resolver) resolveSingle(ctx context.Context, name string) (Tool, error) {
	all := r.registry.Names()

	// Strategy 1: exact match.
	if t, ok := r.registry.Get(name); ok {
		return t, nil
	}

	// Strategy 2: suffix match "<...>.<name>".
	suffix := "." + name
	var candidates []string
	for _, fq := range all {
		if strings.HasSuffix(fq, suffix) {
			candidates = append(candidates, fq)
		}
	}
	if len(candidates) > 0 {
		sort.Strings(candidates)
		if len(candidates) > 1 {
			r.log.Warn(ctx, "tool.ambiguous_suffix_match", "name", name, "candidates", candidates)
		}
		t, _ := r.registry.Get(candidates[0])
		return t, nil
	}

	// Strategy 3: substring match on the local part.
	candidates = candidates[:0]
	for _, fq := range all {
		if strings.Contains(localPart(fq), name) {
			candidates = append(candidates, fq)
		}
	}
	if len(candidates) > 0 {
		sort.Strings(candidates)
		if len(candidates) > 1 {
			r.log.Warn(ctx, "tool.ambiguous_substring_match", "name", name, "candidates", candidates)
		}
		t, _ := r.registry.Get(candidates[0])
		return t, nil
	}

	r.log.Warn(ctx, "tool.not_found", "name", name, "suggestions", r.findSimilar(name, all))
	return nil, &ErrToolNotFound{Name: name, Reason: "not_registered"}
}

// findSimilar returns up to 3 fully-qualified names whose local part
// contains name or vice versa, for inclusion in not-found diagnostics.
func (r *Resolver) findSimilar(name string, all []string) []string {
	var out []string
	for _, fq := range all {
		local := localPart(fq)
		if strings.Contains(local, name) || strings.Contains(name, local) {
			out = append(out, fq)
			if len(out) == 3 {
				break
			}
		}
	}
	return out
}
