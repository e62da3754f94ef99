package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-frame/aether-frame/agent"
	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/model"
	"github.com/aether-frame/aether-frame/router"
	"github.com/aether-frame/aether-frame/runner"
	"github.com/aether-frame/aether-frame/session"
)

type fakeHandle struct{}

func (fakeHandle) Shutdown(context.Context) error { return nil }

type fakeClient struct{}

func (fakeClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return &model.Response{Content: []contracts.UniversalMessage{{Role: contracts.RoleAssistant, ContentText: "ok"}}}, nil
}

func (fakeClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, assert.AnError
}

func alwaysResolve(ctx context.Context, cfg contracts.ProviderConfig) (model.Client, error) {
	return fakeClient{}, nil
}

func failResolve(ctx context.Context, cfg contracts.ProviderConfig) (model.Client, error) {
	return nil, assert.AnError
}

func newTestCore(t *testing.T, resolve ProviderResolver) *Core {
	t.Helper()
	runners := runner.New(runner.Settings{
		DefaultAppName:      "test",
		MaxSessionsPerAgent: 10,
		SessionIDPrefix:     "sess",
		RunnerIDPrefix:      "run",
		NewHandle: func(ctx context.Context, cfg contracts.AgentConfig, provider model.Client) (runner.Handle, error) {
			return fakeHandle{}, nil
		},
	}, nil)
	sessions := session.New(runners, nil, session.Settings{}, nil, nil)
	domainAgent := agent.New(agent.Options{})

	return New(Options{
		Runners:          runners,
		Sessions:         sessions,
		DomainAgent:      domainAgent,
		ProviderResolver: resolve,
	})
}

func TestClassify(t *testing.T) {
	cfg := &contracts.AgentConfig{Name: "a"}
	assert.Equal(t, ModeAgentCreation, Classify(contracts.TaskRequest{AgentConfig: cfg}))
	assert.Equal(t, ModeInvalidMixed, Classify(contracts.TaskRequest{
		AgentConfig: cfg,
		Messages:    []contracts.UniversalMessage{{Role: contracts.RoleUser, ContentText: "hi"}},
	}))
	assert.Equal(t, ModeConversationContinuation, Classify(contracts.TaskRequest{AgentID: "agent-1"}))
	assert.Equal(t, ModeConversationContinuation, Classify(contracts.TaskRequest{}))
}

func TestExecuteTaskRejectsMixedRequest(t *testing.T) {
	c := newTestCore(t, alwaysResolve)
	result := c.ExecuteTask(context.Background(), contracts.TaskRequest{
		TaskID:      "t1",
		AgentConfig: &contracts.AgentConfig{Name: "a"},
		Messages:    []contracts.UniversalMessage{{Role: contracts.RoleUser, ContentText: "hi"}},
	}, router.ExecutionStrategy{})
	require.Equal(t, contracts.TaskStatusError, result.Status)
	assert.Equal(t, contracts.ErrRequestValidation, result.Error.Code)
	assert.Equal(t, "Create the agent first", result.Error.Details["guidance"])
}

func TestExecuteTaskCreatesAgent(t *testing.T) {
	c := newTestCore(t, alwaysResolve)
	result := c.ExecuteTask(context.Background(), contracts.TaskRequest{
		TaskID:      "t2",
		AgentConfig: &contracts.AgentConfig{Name: "a"},
	}, router.ExecutionStrategy{})
	require.Equal(t, contracts.TaskStatusSuccess, result.Status)
	assert.NotEmpty(t, result.AgentID)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "agent_creation", result.Metadata["request_mode"])
}

func TestExecuteTaskCreationFailsWhenProviderResolutionFails(t *testing.T) {
	c := newTestCore(t, failResolve)
	result := c.ExecuteTask(context.Background(), contracts.TaskRequest{
		TaskID:      "t3",
		AgentConfig: &contracts.AgentConfig{Name: "a"},
	}, router.ExecutionStrategy{})
	require.Equal(t, contracts.TaskStatusError, result.Status)
	assert.Equal(t, contracts.ErrRunnerExecution, result.Error.Code)
}

func TestExecuteTaskContinuationFailsForUnknownAgent(t *testing.T) {
	c := newTestCore(t, alwaysResolve)
	result := c.ExecuteTask(context.Background(), contracts.TaskRequest{
		TaskID:  "t4",
		AgentID: "missing-agent",
	}, router.ExecutionStrategy{})
	require.Equal(t, contracts.TaskStatusError, result.Status)
	assert.Equal(t, contracts.ErrContextMissing, result.Error.Code)
	assert.Equal(t, "missing-agent", result.Error.Details["agent_id"])
}

func TestExecuteTaskContinuationDispatchesToDomainAgent(t *testing.T) {
	c := newTestCore(t, alwaysResolve)
	ctx := context.Background()

	created := c.ExecuteTask(ctx, contracts.TaskRequest{
		TaskID:      "create",
		AgentConfig: &contracts.AgentConfig{Name: "a"},
	}, router.ExecutionStrategy{})
	require.Equal(t, contracts.TaskStatusSuccess, created.Status)

	result := c.ExecuteTask(ctx, contracts.TaskRequest{
		TaskID:   "t5",
		AgentID:  created.AgentID,
		Messages: []contracts.UniversalMessage{{Role: contracts.RoleUser, ContentText: "hi"}},
	}, router.ExecutionStrategy{})
	require.Equal(t, contracts.TaskStatusSuccess, result.Status)
	assert.Equal(t, "conversation_continuation", result.Metadata["request_mode"])
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "ok", result.Messages[0].Content())
}

func TestExecuteTaskLiveReturnsRunningSession(t *testing.T) {
	c := newTestCore(t, alwaysResolve)
	ctx := context.Background()

	created := c.ExecuteTask(ctx, contracts.TaskRequest{
		TaskID:      "create2",
		AgentConfig: &contracts.AgentConfig{Name: "a"},
	}, router.ExecutionStrategy{})
	require.Equal(t, contracts.TaskStatusSuccess, created.Status)

	liveSession, err := c.ExecuteTaskLive(ctx, contracts.TaskRequest{
		TaskID:   "t6",
		AgentID:  created.AgentID,
		Messages: []contracts.UniversalMessage{{Role: contracts.RoleUser, ContentText: "hi"}},
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, liveSession)

	var sawComplete bool
	for {
		chunk, ok, recvErr := liveSession.Recv(ctx)
		require.NoError(t, recvErr)
		if !ok {
			break
		}
		if chunk.ChunkType == contracts.ChunkComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawComplete)
}

func TestExecuteTaskLiveFailsForUnknownAgent(t *testing.T) {
	c := newTestCore(t, alwaysResolve)
	_, err := c.ExecuteTaskLive(context.Background(), contracts.TaskRequest{
		TaskID:  "t7",
		AgentID: "missing-agent",
	}, nil)
	require.Error(t, err)
}
