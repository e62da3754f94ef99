package anthropic

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/model"
)

type fakeMessages struct{}

func (fakeMessages) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return nil, nil
}

func (fakeMessages) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	return nil
}

func TestNewRequiresMessagesClientAndDefaultModel(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "m"})
	require.Error(t, err)

	_, err = New(fakeMessages{}, Options{})
	require.Error(t, err)

	c, err := New(fakeMessages{}, Options{DefaultModel: "m"})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestNewFromAPIKeyRequiresAPIKey(t *testing.T) {
	_, err := NewFromAPIKey("", "m")
	require.Error(t, err)
}

func TestResolveModelIDPrefersExplicitThenClassThenDefault(t *testing.T) {
	c, err := New(fakeMessages{}, Options{DefaultModel: "default", HighModel: "high", SmallModel: "small"})
	require.NoError(t, err)

	require.Equal(t, "explicit", c.resolveModelID(&model.Request{Model: "explicit"}))
	require.Equal(t, "high", c.resolveModelID(&model.Request{ModelClass: model.ModelClassHighReasoning}))
	require.Equal(t, "small", c.resolveModelID(&model.Request{ModelClass: model.ModelClassSmall}))
	require.Equal(t, "default", c.resolveModelID(&model.Request{}))
}

func TestResolveModelIDFallsBackWhenClassModelUnset(t *testing.T) {
	c, err := New(fakeMessages{}, Options{DefaultModel: "default"})
	require.NoError(t, err)
	require.Equal(t, "default", c.resolveModelID(&model.Request{ModelClass: model.ModelClassHighReasoning}))
}

func TestPrepareRequestRejectsEmptyMessages(t *testing.T) {
	c, err := New(fakeMessages{}, Options{DefaultModel: "m", MaxTokens: 512})
	require.NoError(t, err)
	_, err = c.prepareRequest(&model.Request{})
	require.Error(t, err)
}

func TestPrepareRequestRejectsMissingMaxTokens(t *testing.T) {
	c, err := New(fakeMessages{}, Options{DefaultModel: "m"})
	require.NoError(t, err)
	_, err = c.prepareRequest(&model.Request{
		Messages: []contracts.UniversalMessage{{Role: contracts.RoleUser, ContentText: "hi"}},
	})
	require.Error(t, err)
}

func TestPrepareRequestSucceedsWithMessagesAndMaxTokens(t *testing.T) {
	c, err := New(fakeMessages{}, Options{DefaultModel: "m"})
	require.NoError(t, err)
	params, err := c.prepareRequest(&model.Request{
		Messages:  []contracts.UniversalMessage{{Role: contracts.RoleUser, ContentText: "hi"}},
		MaxTokens: 256,
	})
	require.NoError(t, err)
	require.Equal(t, int64(256), params.MaxTokens)
}

func TestEncodeMessagesRejectsUnsupportedRole(t *testing.T) {
	_, _, err := encodeMessages([]contracts.UniversalMessage{{Role: contracts.Role("bogus"), ContentText: "x"}})
	require.Error(t, err)
}

func TestEncodeMessagesSplitsSystemFromConversation(t *testing.T) {
	conversation, system, err := encodeMessages([]contracts.UniversalMessage{
		{Role: contracts.RoleSystem, ContentText: "be nice"},
		{Role: contracts.RoleUser, ContentText: "hi"},
	})
	require.NoError(t, err)
	require.Len(t, system, 1)
	require.Len(t, conversation, 1)
}

func TestEncodeToolChoiceModes(t *testing.T) {
	_, err := encodeToolChoice(&model.ToolChoice{Mode: model.ToolChoiceModeTool})
	require.Error(t, err, "tool mode without a name must error")

	tc, err := encodeToolChoice(&model.ToolChoice{Mode: model.ToolChoiceModeTool, Name: "search"})
	require.NoError(t, err)
	require.NotNil(t, tc.OfTool)

	tc, err = encodeToolChoice(&model.ToolChoice{Mode: model.ToolChoiceModeNone})
	require.NoError(t, err)
	require.NotNil(t, tc.OfNone)

	tc, err = encodeToolChoice(&model.ToolChoice{Mode: model.ToolChoiceModeAny})
	require.NoError(t, err)
	require.NotNil(t, tc.OfAny)

	_, err = encodeToolChoice(&model.ToolChoice{Mode: model.ToolChoiceMode("bogus")})
	require.Error(t, err)
}

func TestIsRateLimitedDetectsWrappedSentinel(t *testing.T) {
	require.True(t, isRateLimited(model.ErrRateLimited))
	require.False(t, isRateLimited(errors.New("other")))
	require.False(t, isRateLimited(nil))
}

func TestDecodeToolPayloadHandlesEmptyAndInvalidJSON(t *testing.T) {
	require.Equal(t, map[string]any{}, decodeToolPayload(nil))
	require.Equal(t, map[string]any{}, decodeToolPayload([]byte("not json")))
	require.Equal(t, map[string]any{"a": float64(1)}, decodeToolPayload([]byte(`{"a":1}`)))
}
