package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// Collector instruments executions, steps, and message dispatch. It satisfies
// the engine and dispatch observer contracts.
type Collector struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	stepsTotal        *prometheus.CounterVec
	stepDuration      prometheus.Histogram
	messagesTotal     *prometheus.CounterVec
}

// NewCollector creates and registers the chaincore metrics. reg may be nil to
// use the default Prometheus registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaincore_executions_total",
				Help: "Total number of chain execution status transitions by status.",
			},
			[]string{"status"},
		),
		executionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chaincore_execution_duration_seconds",
				Help:    "Duration of finished chain executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaincore_steps_total",
				Help: "Total number of recorded step outcomes by status.",
			},
			[]string{"status"},
		),
		stepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chaincore_step_duration_seconds",
				Help:    "Duration of executed steps in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaincore_messages_total",
				Help: "Total number of dispatched agent messages by terminal status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		c.executionsTotal,
		c.executionDuration,
		c.stepsTotal,
		c.stepDuration,
		c.messagesTotal,
	)

	// Ensure counter vectors are visible at /metrics before first increment.
	for _, status := range []schema.ExecutionStatus{
		schema.ExecutionRunning,
		schema.ExecutionCompleted,
		schema.ExecutionFailed,
		schema.ExecutionCancelled,
	} {
		c.executionsTotal.WithLabelValues(string(status))
	}

	for _, status := range []schema.StepResultStatus{
		schema.StepResultSuccess,
		schema.StepResultError,
		schema.StepResultSkipped,
	} {
		c.stepsTotal.WithLabelValues(string(status))
	}

	for _, status := range []schema.MessageStatus{
		schema.MessageProcessed,
		schema.MessageFailed,
	} {
		c.messagesTotal.WithLabelValues(string(status))
	}

	return c
}

// ExecutionStarted counts a newly started execution.
func (c *Collector) ExecutionStarted(chainID string) {
	c.executionsTotal.WithLabelValues(string(schema.ExecutionRunning)).Inc()
}

// ExecutionFinished counts a terminal execution and observes its duration.
func (c *Collector) ExecutionFinished(chainID string, status schema.ExecutionStatus, duration time.Duration) {
	c.executionsTotal.WithLabelValues(string(status)).Inc()
	c.executionDuration.Observe(duration.Seconds())
}

// StepFinished counts a recorded step outcome. Skipped steps never ran, so
// only executed steps contribute to the duration histogram.
func (c *Collector) StepFinished(agentID string, status schema.StepResultStatus, duration time.Duration) {
	c.stepsTotal.WithLabelValues(string(status)).Inc()
	if status != schema.StepResultSkipped {
		c.stepDuration.Observe(duration.Seconds())
	}
}

// MessageFinished counts a message dispatch outcome.
func (c *Collector) MessageFinished(messageType string, status schema.MessageStatus) {
	c.messagesTotal.WithLabelValues(string(status)).Inc()
}
