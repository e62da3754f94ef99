package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-frame/aether-frame/agent"
	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/framework"
	"github.com/aether-frame/aether-frame/interrupt"
	"github.com/aether-frame/aether-frame/router"
	"github.com/aether-frame/aether-frame/stream"
)

type fakeAdapter struct {
	available  bool
	liveOK     bool
	taskResult contracts.TaskResult
	liveReq    contracts.TaskRequest
}

func (f *fakeAdapter) Initialize(ctx context.Context, settings map[string]any) error { return nil }
func (f *fakeAdapter) Shutdown(ctx context.Context) error                            { return nil }
func (f *fakeAdapter) IsAvailable() bool                                             { return f.available }
func (f *fakeAdapter) SupportsLiveExecution() bool                                   { return f.liveOK }

func (f *fakeAdapter) ExecuteTask(ctx context.Context, req contracts.TaskRequest, strategy router.ExecutionStrategy) contracts.TaskResult {
	return f.taskResult
}

func (f *fakeAdapter) ExecuteTaskLive(ctx context.Context, req contracts.TaskRequest, approvalRequired agent.ApprovalRequired) (*stream.Session, error) {
	if !f.liveOK {
		return nil, assert.AnError
	}
	f.liveReq = req
	s := stream.NewSession(req.TaskID, interrupt.NewController(), stream.Options{})
	_ = s.Close(ctx)
	return s, nil
}

func newTestAssistant(t *testing.T, a framework.Adapter) *AIAssistant {
	t.Helper()
	registry := framework.New()
	registry.RegisterAdapter("test-framework", a, nil, contracts.FrameworkCapabilities{})
	r := router.New("test-framework", map[string]contracts.FrameworkCapabilities{
		"test-framework": {},
	})
	engine := NewExecutionEngine(r, registry, nil)
	return New(engine, nil)
}

func validRequest() contracts.TaskRequest {
	return contracts.TaskRequest{
		TaskID:      "t1",
		TaskType:    "chat",
		Description: "say hi",
		AgentID:     "agent-1",
	}
}

func TestProcessRequestRejectsInvalidRequest(t *testing.T) {
	a := newTestAssistant(t, &fakeAdapter{available: true})
	result := a.ProcessRequest(context.Background(), contracts.TaskRequest{})
	require.Equal(t, contracts.TaskStatusError, result.Status)
	assert.Equal(t, contracts.ErrRequestValidation, result.Error.Code)
}

func TestProcessRequestDispatchesThroughEngine(t *testing.T) {
	a := newTestAssistant(t, &fakeAdapter{
		available: true,
		taskResult: contracts.TaskResult{
			TaskID: "t1",
			Status: contracts.TaskStatusSuccess,
		},
	})
	result := a.ProcessRequest(context.Background(), validRequest())
	require.Equal(t, contracts.TaskStatusSuccess, result.Status)
	assert.Equal(t, "test-framework", result.Metadata["framework_type"])
}

func TestProcessRequestReportsUnavailableAdapter(t *testing.T) {
	registry := framework.New() // nothing registered
	r := router.New("test-framework", map[string]contracts.FrameworkCapabilities{})
	engine := NewExecutionEngine(r, registry, nil)
	a := New(engine, nil)

	result := a.ProcessRequest(context.Background(), validRequest())
	require.Equal(t, contracts.TaskStatusError, result.Status)
	assert.Equal(t, contracts.ErrFrameworkUnavailable, result.Error.Code)
}

func TestStartLiveSessionFillsDefaultExecutionContext(t *testing.T) {
	fa := &fakeAdapter{available: true, liveOK: true}
	a := newTestAssistant(t, fa)
	session, err := a.StartLiveSession(context.Background(), validRequest(), nil)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.NotNil(t, fa.liveReq.ExecutionContext)
	assert.Equal(t, "live_t1", fa.liveReq.ExecutionContext.ExecutionID)
	assert.Equal(t, "live", fa.liveReq.ExecutionContext.Mode)
}

func TestStartLiveSessionFailsWhenAdapterLacksLiveSupport(t *testing.T) {
	a := newTestAssistant(t, &fakeAdapter{available: true, liveOK: false})
	_, err := a.StartLiveSession(context.Background(), validRequest(), nil)
	require.Error(t, err)
}

func TestHealthCheckReportsOK(t *testing.T) {
	a := newTestAssistant(t, &fakeAdapter{available: true})
	h := a.HealthCheck()
	assert.Equal(t, "ok", h["status"])
}
