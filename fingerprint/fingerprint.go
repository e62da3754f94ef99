// Package fingerprint computes stable config fingerprints used by
// RunnerManager to decide whether two AgentConfig values should share a
// runner. The fingerprint is part of the external contract for "same agent"
// reuse (spec.md §9: config fingerprinting design note).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/aether-frame/aether-frame/contracts"
)

// ConfigFingerprint is a stable, hex-encoded SHA-256 digest of a
// canonicalized AgentConfig. Two configs with identical normalized fields
// produce the same fingerprint regardless of map key order.
type ConfigFingerprint string

// Of computes the fingerprint of cfg. Canonicalization: sorted map keys,
// canonical number formatting (via encoding/json, which renders floats and
// ints consistently for a given Go value), and stripped null/empty fields.
func Of(cfg contracts.AgentConfig) ConfigFingerprint {
	canon := canonicalize(cfg)
	// json.Marshal on a map built with sorted string keys already produces
	// deterministic output because encoding/json sorts map keys.
	b, err := json.Marshal(canon)
	if err != nil {
		// AgentConfig fields are all JSON-safe (strings, maps of JSON
		// scalars, slices of strings); Marshal cannot fail in practice.
		b = []byte(cfg.AgentType + cfg.FrameworkType)
	}
	sum := sha256.Sum256(b)
	return ConfigFingerprint(hex.EncodeToString(sum[:]))
}

func canonicalize(cfg contracts.AgentConfig) map[string]any {
	m := map[string]any{
		"agent_type":     cfg.AgentType,
		"framework_type": cfg.FrameworkType,
	}
	if cfg.Name != "" {
		m["name"] = cfg.Name
	}
	if cfg.Description != "" {
		m["description"] = cfg.Description
	}
	if cfg.SystemPrompt != "" {
		m["system_prompt"] = cfg.SystemPrompt
	}
	if len(cfg.ModelConfig) > 0 {
		m["model_config"] = stripEmpty(cfg.ModelConfig)
	}
	if len(cfg.AvailableTools) > 0 {
		tools := append([]string(nil), cfg.AvailableTools...)
		sort.Strings(tools)
		m["available_tools"] = tools
	}
	if len(cfg.BehaviorSettings) > 0 {
		m["behavior_settings"] = stripEmpty(cfg.BehaviorSettings)
	}
	if len(cfg.ToolPermissions) > 0 {
		perms := append([]string(nil), cfg.ToolPermissions...)
		sort.Strings(perms)
		m["tool_permissions"] = perms
	}
	return m
}

// stripEmpty removes nil/empty-string/empty-collection values recursively
// so two configs differing only in "empty vs absent" fields fingerprint
// identically.
func stripEmpty(in map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if val == "" {
				continue
			}
			out[k] = val
		case map[string]any:
			if len(val) == 0 {
				continue
			}
			out[k] = stripEmpty(val)
		case []any:
			if len(val) == 0 {
				continue
			}
			out[k] = val
		default:
			out[k] = val
		}
	}
	return out
}
