// Package bedrock implements model.Client on top of the AWS Bedrock Converse
// API. It splits system vs. conversational messages, encodes tool schemas
// into Bedrock's ToolConfiguration, and translates Converse responses back
// into the provider-neutral model.Response/model.Chunk shape.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/model"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client this
// adapter needs. It is satisfied by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures the Bedrock-backed Client.
type Options struct {
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
	Temperature  float32
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTokens    int
	temperature  float32
}

// New builds a Client from a Bedrock runtime client and options.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Client{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// Complete issues a Converse request and translates the response.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	input, err := c.prepareInput(req)
	if err != nil {
		return nil, err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock: converse: %w", err)
	}
	return translateOutput(out)
}

// Stream issues a ConverseStream request and adapts its event stream into
// model.Chunks.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	input, err := c.prepareInput(req)
	if err != nil {
		return nil, err
	}
	streamInput := &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		ToolConfig:      input.ToolConfig,
		InferenceConfig: input.InferenceConfig,
	}
	out, err := c.runtime.ConverseStream(ctx, streamInput)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock: converse_stream: %w", err)
	}
	return newStreamer(ctx, out), nil
}

func (c *Client) prepareInput(req *model.Request) (*bedrockruntime.ConverseInput, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := c.resolveModelID(req)
	messages, system, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
		System:   system,
	}
	infCfg := &brtypes.InferenceConfiguration{}
	hasInf := false
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		v := int32(maxTokens)
		infCfg.MaxTokens = &v
		hasInf = true
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = c.temperature
	}
	if temp > 0 {
		infCfg.Temperature = aws.Float32(temp)
		hasInf = true
	}
	if hasInf {
		input.InferenceConfig = infCfg
	}
	if len(req.Tools) > 0 {
		toolConfig, err := encodeToolConfig(req.Tools, req.ToolChoice)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = toolConfig
	}
	return input, nil
}

// isRateLimited reports whether err represents a provider rate-limiting
// condition: either an HTTP 429 response or a ThrottlingException/
// TooManyRequestsException API error code.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}

func (c *Client) resolveModelID(req *model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case model.ModelClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case model.ModelClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func encodeMessages(msgs []contracts.UniversalMessage) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	converse := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == contracts.RoleSystem {
			if text := m.Content(); text != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: text})
			}
			continue
		}
		blocks := encodeContentBlocks(m)
		if len(blocks) == 0 {
			continue
		}
		var role brtypes.ConversationRole
		switch m.Role {
		case contracts.RoleUser, contracts.RoleTool:
			role = brtypes.ConversationRoleUser
		case contracts.RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
		converse = append(converse, brtypes.Message{Role: role, Content: blocks})
	}
	if len(converse) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return converse, system, nil
}

func encodeContentBlocks(m contracts.UniversalMessage) []brtypes.ContentBlock {
	var blocks []brtypes.ContentBlock

	if m.Role == contracts.RoleTool {
		toolCallID, _ := m.Metadata["tool_call_id"].(string)
		status := brtypes.ToolResultStatusSuccess
		if isErr, _ := m.Metadata["is_error"].(bool); isErr {
			status = brtypes.ToolResultStatusError
		}
		blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
			Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(toolCallID),
				Status:    status,
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Content()}},
			},
		})
		return blocks
	}

	if text := m.ContentText; text != "" {
		blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: text})
	}
	for _, part := range m.Parts {
		if v, ok := part.(contracts.TextContentPart); ok && v.Text != "" {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
		}
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
			Value: brtypes.ToolUseBlock{
				ToolUseId: aws.String(tc.ToolCallID),
				Name:      aws.String(tc.Name),
				Input:     document.NewLazyDocument(tc.Arguments),
			},
		})
	}
	return blocks
}

func encodeToolConfig(defs []*model.ToolDefinition, choice *model.ToolChoice) (*brtypes.ToolConfiguration, error) {
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(def.Name),
				Description: aws.String(def.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(def.InputSchema)},
			},
		})
	}
	if len(tools) == 0 {
		return nil, nil
	}
	cfg := &brtypes.ToolConfiguration{Tools: tools}
	if choice != nil {
		switch choice.Mode {
		case model.ToolChoiceModeAny:
			cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{}
		case model.ToolChoiceModeTool:
			if choice.Name == "" {
				return nil, errors.New("bedrock: tool choice mode \"tool\" requires a name")
			}
			cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(choice.Name)}}
		}
	}
	return cfg, nil
}

func translateOutput(out *bedrockruntime.ConverseOutput) (*model.Response, error) {
	resp := &model.Response{}
	msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok || msgOutput == nil {
		return resp, nil
	}
	for _, block := range msgOutput.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			if v.Value != "" {
				resp.Content = append(resp.Content, contracts.UniversalMessage{
					Role:        contracts.RoleAssistant,
					ContentText: v.Value,
				})
			}
		case *brtypes.ContentBlockMemberToolUse:
			var payload map[string]any
			_ = v.Value.Input.UnmarshalSmithyDocument(&payload)
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID:      aws.ToString(v.Value.ToolUseId),
				Name:    aws.ToString(v.Value.Name),
				Payload: payload,
			})
		}
	}
	if u := out.Usage; u != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(aws.ToInt32(u.InputTokens)),
			OutputTokens: int(aws.ToInt32(u.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(u.TotalTokens)),
		}
	}
	resp.StopReason = string(out.StopReason)
	return resp, nil
}
