package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/aether-frame/aether-frame/engine"
)

func TestRetryPolicyAppliesDefaults(t *testing.T) {
	rp := retryPolicy(engine.RetryPolicy{MaxAttempts: 3})
	assert.Equal(t, int32(3), rp.MaximumAttempts)
	assert.Equal(t, time.Second, rp.InitialInterval)
	assert.Equal(t, 1.0, rp.BackoffCoefficient)
}

func TestRetryPolicyPassesThroughExplicitValues(t *testing.T) {
	rp := retryPolicy(engine.RetryPolicy{
		MaxAttempts:        5,
		InitialInterval:    2 * time.Second,
		BackoffCoefficient: 2.5,
	})
	assert.Equal(t, int32(5), rp.MaximumAttempts)
	assert.Equal(t, 2*time.Second, rp.InitialInterval)
	assert.Equal(t, 2.5, rp.BackoffCoefficient)
}

func TestNormalizeTemporalErrorMapsCancellation(t *testing.T) {
	assert.Nil(t, normalizeTemporalError(nil))
	assert.ErrorIs(t, normalizeTemporalError(sdktemporal.NewCanceledError()), context.Canceled)

	other := errors.New("boom")
	assert.ErrorIs(t, normalizeTemporalError(other), other)
}

// echoWorkflow exercises workflowFunc's adaptation of a RunFunc into a
// Temporal workflow: RunContext.Now and RunID must resolve to real,
// replay-safe workflow state, not zero values.
func echoWorkflow(rc engine.RunContext, input any) (any, error) {
	if rc.RunID() == "" {
		return nil, errors.New("missing run id")
	}
	if rc.Now().IsZero() {
		return nil, errors.New("zero workflow time")
	}
	return input, nil
}

func TestWorkflowFuncAdaptsRunContext(t *testing.T) {
	e := &Engine{runs: map[string]engine.RunDefinition{}}
	wf := e.workflowFunc(engine.RunDefinition{Name: "echo", Handler: echoWorkflow})

	ts := testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(wf, workflow.RegisterOptions{Name: "echo"})

	env.ExecuteWorkflow("echo", "hello")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, "hello", out)
}
