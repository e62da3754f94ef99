// Command aetherframe-demo wires every module of the framework together and
// runs one task through it: agent creation, then a conversation turn,
// against whichever model provider is configured by flags/environment. It
// exists to exercise the full process_request path end to end, not as a
// production entrypoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"goa.design/clue/log"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/aether-frame/aether-frame/adapter"
	"github.com/aether-frame/aether-frame/agent"
	"github.com/aether-frame/aether-frame/assistant"
	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/framework"
	"github.com/aether-frame/aether-frame/hooks"
	"github.com/aether-frame/aether-frame/model"
	"github.com/aether-frame/aether-frame/providers/anthropic"
	"github.com/aether-frame/aether-frame/providers/bedrock"
	"github.com/aether-frame/aether-frame/providers/openai"
	"github.com/aether-frame/aether-frame/recovery"
	"github.com/aether-frame/aether-frame/router"
	"github.com/aether-frame/aether-frame/runner"
	"github.com/aether-frame/aether-frame/session"
	"github.com/aether-frame/aether-frame/telemetry"
)

const frameworkType = "aetherframe"

func main() {
	var (
		promptF = flag.String("prompt", "Say hello in one sentence.", "message sent to the agent")
		modelF  = flag.String("model", "claude-sonnet-4-5", "model identifier passed to the provider")
		dbgF    = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	if err := run(ctx, *promptF, *modelF); err != nil {
		log.Error(ctx, err, log.KV{K: "component", V: "aetherframe-demo"})
		os.Exit(1)
	}
}

func run(ctx context.Context, prompt, modelName string) error {
	logger := telemetry.NewClueLogger()

	runners := runner.New(runner.Settings{
		DefaultAppName:      "aetherframe-demo",
		MaxSessionsPerAgent: 16,
		SessionIDPrefix:     "sess",
		RunnerIDPrefix:      "run",
		NewHandle:           adapter.NewHandleFactory(resolveProvider),
	}, nil)

	sessions := session.New(runners, recovery.NewInMemStore(), session.Settings{}, logger, nil)

	bus := hooks.NewBus(func(err error) {
		logger.Warn(ctx, "hooks.subscriber_failed", "error", err.Error())
	})
	bus.Register(telemetry.NewInteractionLog(logger))
	domainAgent := agent.New(agent.Options{Log: logger, Hooks: bus})

	core := adapter.New(adapter.Options{
		Runners:          runners,
		Sessions:         sessions,
		DomainAgent:      domainAgent,
		ProviderResolver: resolveProvider,
		Log:              logger,
	})

	registry := framework.New()
	caps := contracts.FrameworkCapabilities{
		AsyncExecution: true,
		Streaming:      true,
		ExecutionModes: []string{"sync", "live"},
		MaxIterations:  8,
		DefaultTimeout: 60,
	}
	registry.RegisterAdapter(frameworkType, core, nil, caps)

	taskRouter := router.New(frameworkType, map[string]contracts.FrameworkCapabilities{
		frameworkType: caps,
	})

	engine := assistant.NewExecutionEngine(taskRouter, registry, logger)
	ai := assistant.New(engine, logger)

	agentConfig := contracts.AgentConfig{
		Name:          "demo-agent",
		Description:   "Ad-hoc demo agent",
		FrameworkType: frameworkType,
		ModelConfig: map[string]any{
			"provider": providerFromModel(modelName),
			"model":    modelName,
		},
	}

	created := ai.ProcessRequest(ctx, contracts.TaskRequest{
		TaskID:      "demo-create",
		TaskType:    "agent_creation",
		Description: "create the demo agent",
		AgentConfig: &agentConfig,
	})
	if created.Status != contracts.TaskStatusSuccess {
		return fmt.Errorf("create agent: %s", created.ErrorMessage)
	}
	log.Print(ctx, log.KV{K: "agent_id", V: created.AgentID}, log.KV{K: "session_id", V: created.SessionID})

	result := ai.ProcessRequest(ctx, contracts.TaskRequest{
		TaskID:      "demo-turn",
		TaskType:    "chat",
		Description: "answer the user's prompt",
		AgentID:     created.AgentID,
		Messages: []contracts.UniversalMessage{
			{Role: contracts.RoleUser, ContentText: prompt},
		},
	})
	if result.Status != contracts.TaskStatusSuccess {
		return fmt.Errorf("execute task: %s", result.ErrorMessage)
	}

	for _, msg := range result.Messages {
		fmt.Println(msg.Content())
	}
	return nil
}

// resolveProvider picks a model.Client implementation based on
// cfg.Provider, reading the API key from cfg.APIKeyEnv (or a
// provider-specific default env var). Bedrock uses ambient AWS credentials
// instead, since the Converse API has no API-key auth mode.
func resolveProvider(ctx context.Context, cfg contracts.ProviderConfig) (model.Client, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewFromAPIKey(apiKey(cfg, "OPENAI_API_KEY"), cfg.Model)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(regionOrDefault(cfg.Region)))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return bedrock.New(bedrockruntime.NewFromConfig(awsCfg), bedrock.Options{
			DefaultModel: cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			Temperature:  float32(cfg.Temperature),
		})
	default:
		return anthropic.NewFromAPIKey(apiKey(cfg, "ANTHROPIC_API_KEY"), cfg.Model)
	}
}

func apiKey(cfg contracts.ProviderConfig, fallbackEnv string) string {
	if cfg.APIKeyEnv != "" {
		return os.Getenv(cfg.APIKeyEnv)
	}
	return os.Getenv(fallbackEnv)
}

func regionOrDefault(region string) string {
	if region != "" {
		return region
	}
	return "us-east-1"
}

func providerFromModel(name string) string {
	switch {
	case len(name) >= 6 && name[:6] == "claude":
		return "anthropic"
	case len(name) >= 3 && name[:3] == "gpt", len(name) >= 2 && name[:2] == "o1":
		return "openai"
	default:
		return "bedrock"
	}
}
