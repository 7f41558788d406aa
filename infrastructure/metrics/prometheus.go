// Package metrics exports the MetricsCollector events of the prediction
// pipeline as Prometheus series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-magi/internal/ports"
)

// Event names emitted by the aggregator and the LLM middleware.
const (
	EventLLMRequest            = ports.MetricLLMRequest
	EventLLMRequestsTotal      = ports.MetricLLMRequestsTotal
	EventLLMTokensTotal        = ports.MetricLLMTokensTotal
	EventProviderCall          = ports.MetricProviderCall
	EventProviderVerdictsTotal = ports.MetricProviderVerdictsTotal
	EventProviderTokensTotal   = ports.MetricProviderTokensTotal
	EventConsensusOutcomes     = ports.MetricConsensusOutcomes
	EventConsensusAgreement    = ports.MetricConsensusAgreement
	EventConsensusActive       = ports.MetricConsensusActive
)

const unknownLabel = "unknown"

// PrometheusMetrics implements ports.MetricsCollector. Known events map to
// dedicated series with fixed label sets; anything else is folded into the
// generic operation series so an unexpected event never panics.
type PrometheusMetrics struct {
	llmLatency       *prometheus.HistogramVec
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerVerdicts *prometheus.CounterVec
	providerTokens   *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	agreement        *prometheus.HistogramVec
	activeProviders  prometheus.Gauge

	operationLatency *prometheus.HistogramVec
	operations       *prometheus.CounterVec
	state            *prometheus.GaugeVec
	values           *prometheus.HistogramVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers every series with reg. Pass
// prometheus.DefaultRegisterer to use the global registry; registering twice
// with the same registerer panics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)
	return &PrometheusMetrics{
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "magi_llm_request_duration_seconds",
			Help:    "Latency of LLM backend requests.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"provider", "model", "status"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: EventLLMRequestsTotal,
			Help: "LLM backend requests by outcome.",
		}, []string{"provider", "model", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: EventLLMTokensTotal,
			Help: "Tokens exchanged with LLM backends.",
		}, []string{"provider", "direction"}),

		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "magi_provider_call_duration_seconds",
			Help:    "Wall time of a provider judgement, including prompt rendering and parsing.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		providerVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: EventProviderVerdictsTotal,
			Help: "Provider verdicts by status.",
		}, []string{"provider", "status"}),
		providerTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: EventProviderTokensTotal,
			Help: "Tokens consumed per provider.",
		}, []string{"provider"}),

		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: EventConsensusOutcomes,
			Help: "Consensus runs by outcome.",
		}, []string{"outcome"}),
		agreement: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    EventConsensusAgreement,
			Help:    "Share of successful verdicts backing the winner.",
			Buckets: prometheus.LinearBuckets(0.25, 0.25, 4),
		}, []string{"policy"}),
		activeProviders: f.NewGauge(prometheus.GaugeOpts{
			Name: EventConsensusActive,
			Help: "Providers that were called in the last consensus run.",
		}),

		operationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "magi_operation_duration_seconds",
			Help:    "Latency of other operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "magi_operations_total",
			Help: "Other counted events.",
		}, []string{"metric"}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "magi_state",
			Help: "Other point-in-time values.",
		}, []string{"metric"}),
		values: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "magi_values",
			Help:    "Other observed values.",
			Buckets: prometheus.DefBuckets,
		}, []string{"metric"}),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	seconds := duration.Seconds()
	switch operation {
	case EventLLMRequest:
		pm.llmLatency.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Observe(seconds)
	case EventProviderCall:
		pm.providerLatency.WithLabelValues(label(labels, "provider")).Observe(seconds)
	default:
		pm.operationLatency.WithLabelValues(operation).Observe(seconds)
	}
}

// RecordCounter implements ports.MetricsCollector. Negative values are
// dropped since Prometheus counters only go up.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	switch metric {
	case EventLLMRequestsTotal:
		pm.llmRequests.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Add(value)
	case EventLLMTokensTotal:
		pm.llmTokens.WithLabelValues(label(labels, "provider"), label(labels, "direction")).Add(value)
	case EventProviderVerdictsTotal:
		pm.providerVerdicts.WithLabelValues(label(labels, "provider"), label(labels, "status")).Add(value)
	case EventProviderTokensTotal:
		pm.providerTokens.WithLabelValues(label(labels, "provider")).Add(value)
	case EventConsensusOutcomes:
		pm.outcomes.WithLabelValues(label(labels, "outcome")).Add(value)
	default:
		pm.operations.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	if metric == EventConsensusActive {
		pm.activeProviders.Set(value)
		return
	}
	pm.state.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if metric == EventConsensusAgreement {
		pm.agreement.WithLabelValues(label(labels, "policy")).Observe(value)
		return
	}
	pm.values.WithLabelValues(metric).Observe(value)
}

func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}
