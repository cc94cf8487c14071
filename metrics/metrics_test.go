package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BDNK1/agentflow/runtime"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainListener(t *testing.T) {
	listener := ChainListener()

	chain := runtime.NewChain("metrics-ok", nil, runtime.WithListener(listener))
	chain.AddNode(runtime.NewFuncNode("a", func(*runtime.Execution) (map[string]any, error) {
		return map[string]any{"x": 1}, nil
	}))
	chain.AddNode(runtime.NewFuncNode("b", nil, runtime.WithCondition(
		constEvaluator(false), "false")))
	chain.Connect("a", "b")

	_, err := chain.Execute(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(chainStatusCounter.WithLabelValues("metrics-ok", "RUNNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(chainStatusCounter.WithLabelValues("metrics-ok", "FINISHED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(nodesTotalCounter.WithLabelValues("metrics-ok", "SUCCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(nodesTotalCounter.WithLabelValues("metrics-ok", "SKIPPED")))
}

func TestChainListener_Failure(t *testing.T) {
	chain := runtime.NewChain("metrics-fail", nil, runtime.WithListener(ChainListener()))
	chain.AddNode(runtime.NewFuncNode("a", func(*runtime.Execution) (map[string]any, error) {
		return nil, errors.New("boom")
	}))

	_, err := chain.Execute(context.Background(), nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(chainStatusCounter.WithLabelValues("metrics-fail", "STOPPED_ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(nodesTotalCounter.WithLabelValues("metrics-fail", "FAILED")))
}

func TestToolAndReActHelpers(t *testing.T) {
	IncToolCall("metrics_tool", OutcomeSuccess)
	IncToolCall("metrics_tool", OutcomeSuccess)
	IncToolCall("metrics_tool", OutcomeError)
	ObserveToolDuration("metrics_tool", 20*time.Millisecond)
	ObserveReActRun("max_iterations", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(toolCallsCounter.WithLabelValues("metrics_tool", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(toolCallsCounter.WithLabelValues("metrics_tool", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reactRunsCounter.WithLabelValues("max_iterations")))
	assert.Equal(t, 1, testutil.CollectAndCount(toolDurationMetric))
}

type constEvaluator bool

func (c constEvaluator) Name() string {
	return "const"
}

func (c constEvaluator) Eval(*runtime.Execution, string, map[string]any) (any, error) {
	return bool(c), nil
}
