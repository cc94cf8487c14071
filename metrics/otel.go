package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OpenTelemetry mirrors of the tool and ReAct metrics. They are created on
// the global meter provider, so they export once one is installed and are
// no-ops otherwise.
var (
	otelToolCalls       metric.Int64Counter
	otelToolDuration    metric.Float64Histogram
	otelReActRuns       metric.Int64Counter
	otelReActIterations metric.Int64Histogram
)

func initOtel() {
	meter := otel.Meter("github.com/BDNK1/agentflow/metrics")

	// instrument errors only happen for invalid names; the no-op instrument
	// returned alongside is still safe to use
	otelToolCalls, _ = meter.Int64Counter("agentflow.tool.calls",
		metric.WithDescription("Tool invocations by tool and outcome."))
	otelToolDuration, _ = meter.Float64Histogram("agentflow.tool.duration",
		metric.WithDescription("Duration of tool invocations."), metric.WithUnit("s"))
	otelReActRuns, _ = meter.Int64Counter("agentflow.react.runs",
		metric.WithDescription("ReAct runs by terminal status."))
	otelReActIterations, _ = meter.Int64Histogram("agentflow.react.iterations",
		metric.WithDescription("Model round-trips per ReAct run."))
}

func recordToolCall(tool, outcome string) {
	otelToolCalls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	))
}

func recordToolDuration(tool string, d time.Duration) {
	otelToolDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
}

func recordReActRun(status string, iterations int) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("status", status))
	otelReActRuns.Add(ctx, 1, attrs)
	otelReActIterations.Record(ctx, int64(iterations), attrs)
}
