package contracts

// AgentConfig describes the agent a runner should host. Two configs whose
// normalized fields are equal produce the same config fingerprint (see
// package fingerprint) and therefore share a runner.
type AgentConfig struct {
	AgentType       string
	FrameworkType   string
	Name            string
	Description     string
	SystemPrompt    string
	ModelConfig     map[string]any
	AvailableTools  []string
	BehaviorSettings map[string]any
	ToolPermissions []string
}

// ProviderConfig is decoded from AgentConfig.ModelConfig at runner-creation
// time and consumed by the providers package to construct a concrete
// model.Client.
type ProviderConfig struct {
	Provider    string // "anthropic" | "openai" | "bedrock"
	Model       string
	APIKeyEnv   string
	Region      string
	MaxTokens   int
	Temperature float64
}

// DecodeProviderConfig pulls a ProviderConfig out of an AgentConfig's
// ModelConfig map. Missing fields take zero values; callers apply their own
// defaults (e.g. MaxTokens).
func DecodeProviderConfig(cfg AgentConfig) ProviderConfig {
	pc := ProviderConfig{}
	m := cfg.ModelConfig
	if m == nil {
		return pc
	}
	if v, ok := m["provider"].(string); ok {
		pc.Provider = v
	}
	if v, ok := m["model"].(string); ok {
		pc.Model = v
	}
	if v, ok := m["api_key_env"].(string); ok {
		pc.APIKeyEnv = v
	}
	if v, ok := m["region"].(string); ok {
		pc.Region = v
	}
	if v, ok := m["max_tokens"].(float64); ok {
		pc.MaxTokens = int(v)
	} else if v, ok := m["max_tokens"].(int); ok {
		pc.MaxTokens = v
	}
	if v, ok := m["temperature"].(float64); ok {
		pc.Temperature = v
	}
	return pc
}

// FrameworkCapabilities is a static per-framework capability descriptor
// consulted by TaskRouter when scoring fallback frameworks and returned
// from FrameworkRegistry.GetAdapterStatus.
type FrameworkCapabilities struct {
	AsyncExecution bool
	Streaming      bool
	ExecutionModes []string
	MaxIterations  int
	DefaultTimeout int // seconds
}
