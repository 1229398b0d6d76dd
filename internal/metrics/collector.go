// Package metrics provides internal Prometheus collectors.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 轮次指标
	roundsTotal   *prometheus.CounterVec
	roundDuration *prometheus.HistogramVec
	phaseAbsent   *prometheus.CounterVec
	approvalRate  prometheus.Histogram

	// LLM 指标
	llmCallsTotal   *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers all collectors under the namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.roundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Completed deliberation rounds by consensus outcome",
		},
		[]string{"consensus"},
	)
	c.roundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "End-to-end round duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"consensus"},
	)
	c.phaseAbsent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_absent_agents_total",
			Help:      "Agents recorded absent from a phase (error or timeout)",
		},
		[]string{"phase"},
	)
	c.approvalRate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_approval_rate",
			Help:      "Approval rate distribution across rounds",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	c.llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Reasoning calls by client and outcome",
		},
		[]string{"client", "outcome"},
	)
	c.llmCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Reasoning call duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"client"},
	)

	return c
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRound records one terminal round.
func (c *Collector) RecordRound(consensus bool, approvalRate float64, duration time.Duration) {
	label := strconv.FormatBool(consensus)
	c.roundsTotal.WithLabelValues(label).Inc()
	c.roundDuration.WithLabelValues(label).Observe(duration.Seconds())
	c.approvalRate.Observe(approvalRate)
}

// RecordAbsent records one agent absent from a phase.
func (c *Collector) RecordAbsent(phase string) {
	c.phaseAbsent.WithLabelValues(phase).Inc()
}

// RecordLLMCall records one reasoning call.
func (c *Collector) RecordLLMCall(client string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.llmCallsTotal.WithLabelValues(client, outcome).Inc()
	c.llmCallDuration.WithLabelValues(client).Observe(duration.Seconds())
}
