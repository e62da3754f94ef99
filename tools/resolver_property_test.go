package tools

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/aether-frame/aether-frame/contracts"
)

func noopTool(name, namespace string) Tool {
	return Func{
		Spec: contracts.UniversalTool{Name: namespace + "." + name, Namespace: namespace},
		Fn: func(ctx context.Context, req contracts.ToolRequest) (contracts.ToolResult, error) {
			return contracts.ToolResult{Status: contracts.ToolStatusSuccess}, nil
		},
	}
}

// TestResolverPermissionFilteringProperty verifies that ResolveTools never
// returns a tool the caller's UserContext does not grant, and always
// resolves every tool it does grant, for a registry of exact-name-only
// tools (so resolution itself is unambiguous and only permission filtering
// is under test).
func TestResolverPermissionFilteringProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("resolved tools are exactly those the caller is permitted", prop.ForAll(
		func(names []string, granted []string) bool {
			registry := NewRegistry()
			uniqueNames := dedupe(names)
			for _, n := range uniqueNames {
				registry.Register(noopTool(n, "ns"))
			}
			grantedSet := map[string]bool{}
			perms := map[string]bool{}
			for _, g := range granted {
				fq := "ns." + g
				perms[fq] = true
				grantedSet[fq] = true
			}
			uc := &contracts.UserContext{Permissions: perms}
			resolver := NewResolver(registry, nil)

			var requested []string
			for _, n := range uniqueNames {
				requested = append(requested, n)
			}
			resolved, errs := resolver.ResolveTools(context.Background(), requested, uc)

			for _, spec := range resolved {
				if !grantedSet[spec.Name] {
					return false
				}
			}
			deniedCount := 0
			for _, n := range uniqueNames {
				if !grantedSet["ns."+n] {
					deniedCount++
				}
			}
			return len(resolved)+deniedCount == len(uniqueNames) && len(errs) == deniedCount
		},
		gen.SliceOfN(5, genToolName()),
		gen.SliceOfN(5, genToolName()),
	))

	properties.TestingRun(t)
}

// TestResolverSuffixTieBreakProperty verifies that when multiple registered
// tools share a suffix match for a bare name, the resolver always picks the
// lexicographically-smallest fully-qualified candidate.
func TestResolverSuffixTieBreakProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("suffix-match ties resolve to the lexicographically smallest candidate", prop.ForAll(
		func(namespaces []string, local string) bool {
			uniqueNamespaces := dedupe(namespaces)
			if len(uniqueNamespaces) < 2 {
				return true
			}
			registry := NewRegistry()
			var candidates []string
			for _, ns := range uniqueNamespaces {
				registry.Register(noopTool(local, ns))
				candidates = append(candidates, ns+"."+local)
			}
			sort.Strings(candidates)
			want := candidates[0]

			uc := &contracts.UserContext{Permissions: map[string]bool{}}
			for _, c := range candidates {
				uc.Permissions[c] = true
			}
			resolver := NewResolver(registry, nil)
			resolved, errs := resolver.ResolveTools(context.Background(), []string{local}, uc)
			if len(errs) != 0 || len(resolved) != 1 {
				return false
			}
			return resolved[0].Name == want
		},
		gen.SliceOfN(4, genNamespace()),
		genToolName(),
	))

	properties.TestingRun(t)
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func genToolName() gopter.Gen {
	return genNonEmptyAlphaString(8)
}

func genNamespace() gopter.Gen {
	return genNonEmptyAlphaString(8)
}

// genNonEmptyAlphaString generates a lowercase-ASCII string of length 1..maxLen.
func genNonEmptyAlphaString(maxLen int) gopter.Gen {
	return gen.IntRange(1, maxLen).FlatMap(func(length any) gopter.Gen {
		return gen.SliceOfN(length.(int), gen.AlphaChar()).Map(func(chars []rune) string {
			return strings.ToLower(string(chars))
		})
	}, reflect.TypeOf(""))
}
