package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/model"
)

type fakeRuntime struct {
	converseOut *bedrockruntime.ConverseOutput
	converseErr error
	gotInput    *bedrockruntime.ConverseInput
}

func (f *fakeRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.gotInput = params
	return f.converseOut, f.converseErr
}

func (f *fakeRuntime) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, nil
}

func TestCompleteTranslatesTextAndUsage(t *testing.T) {
	rt := &fakeRuntime{
		converseOut: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: "hello there"},
				},
			}},
			Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5), TotalTokens: aws.Int32(15)},
			StopReason: brtypes.StopReasonEndTurn,
		},
	}
	c, err := New(rt, Options{DefaultModel: "anthropic.claude-3"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &model.Request{
		Messages: []contracts.UniversalMessage{{Role: contracts.RoleUser, ContentText: "hi"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	require.Equal(t, "hello there", resp.Content[0].ContentText)
	require.Equal(t, 15, resp.Usage.TotalTokens)
	require.NotNil(t, rt.gotInput)
	require.Equal(t, "anthropic.claude-3", aws.ToString(rt.gotInput.ModelId))
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c, err := New(&fakeRuntime{}, Options{DefaultModel: "m"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), &model.Request{})
	require.Error(t, err)
}

func TestEncodeToolConfigRequiresNameForToolChoice(t *testing.T) {
	_, err := encodeToolConfig(
		[]*model.ToolDefinition{{Name: "search", Description: "search the web"}},
		&model.ToolChoice{Mode: model.ToolChoiceModeTool},
	)
	require.Error(t, err)
}

func TestResolveModelIDPrefersExplicitModel(t *testing.T) {
	c, err := New(&fakeRuntime{}, Options{DefaultModel: "default", HighModel: "high", SmallModel: "small"})
	require.NoError(t, err)

	require.Equal(t, "explicit", c.resolveModelID(&model.Request{Model: "explicit"}))
	require.Equal(t, "high", c.resolveModelID(&model.Request{ModelClass: model.ModelClassHighReasoning}))
	require.Equal(t, "small", c.resolveModelID(&model.Request{ModelClass: model.ModelClassSmall}))
	require.Equal(t, "default", c.resolveModelID(&model.Request{}))
}
