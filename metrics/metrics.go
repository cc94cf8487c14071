package metrics

import (
	"sync"
	"time"

	"github.com/BDNK1/agentflow/runtime"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	chainStatusCounter  *prometheus.CounterVec
	nodesTotalCounter   *prometheus.CounterVec
	nodeDurationMetric  *prometheus.HistogramVec
	toolCallsCounter    *prometheus.CounterVec
	toolDurationMetric  *prometheus.HistogramVec
	reactRunsCounter    *prometheus.CounterVec
	reactIterationsHist prometheus.Histogram
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		chainStatusCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_chain_status_total",
				Help: "Total number of chain status transitions by chain and status.",
			},
			[]string{"chain", "status"},
		)

		nodesTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_nodes_total",
				Help: "Total number of node terminal updates by chain and status.",
			},
			[]string{"chain", "status"},
		)

		nodeDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentflow_node_duration_seconds",
				Help:    "Duration of successful node runs in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"chain", "node"},
		)

		toolCallsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_tool_calls_total",
				Help: "Total number of tool invocations by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		)

		toolDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentflow_tool_duration_seconds",
				Help:    "Duration of tool invocations in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		)

		reactRunsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_react_runs_total",
				Help: "Total number of ReAct runs by terminal status.",
			},
			[]string{"status"},
		)

		reactIterationsHist = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentflow_react_iterations",
				Help:    "Model round-trips per ReAct run.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 50},
			},
		)

		prometheus.MustRegister(
			chainStatusCounter,
			nodesTotalCounter,
			nodeDurationMetric,
			toolCallsCounter,
			toolDurationMetric,
			reactRunsCounter,
			reactIterationsHist,
		)

		initOtel()
	})
}

func IncChainStatus(chain string, status runtime.ChainStatus) {
	Init()
	chainStatusCounter.WithLabelValues(chain, string(status)).Inc()
}

func IncNodeStatus(chain string, status runtime.NodeStatus) {
	Init()
	nodesTotalCounter.WithLabelValues(chain, string(status)).Inc()
}

func ObserveNodeDuration(chain, node string, d time.Duration) {
	Init()
	nodeDurationMetric.WithLabelValues(chain, node).Observe(d.Seconds())
}

// Tool call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

func IncToolCall(tool, outcome string) {
	Init()
	toolCallsCounter.WithLabelValues(tool, outcome).Inc()
	recordToolCall(tool, outcome)
}

func ObserveToolDuration(tool string, d time.Duration) {
	Init()
	toolDurationMetric.WithLabelValues(tool).Observe(d.Seconds())
	recordToolDuration(tool, d)
}

func ObserveReActRun(status string, iterations int) {
	Init()
	reactRunsCounter.WithLabelValues(status).Inc()
	reactIterationsHist.Observe(float64(iterations))
	recordReActRun(status, iterations)
}
