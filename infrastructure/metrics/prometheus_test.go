package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

func TestNewPrometheusMetrics_IsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusMetrics(prometheus.NewRegistry())
		NewPrometheusMetrics(prometheus.NewRegistry())
	})

	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)
	assert.Panics(t, func() { NewPrometheusMetrics(reg) })
}

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter(EventProviderVerdictsTotal, 1, map[string]string{"provider": "claude", "status": "success"})
	pm.RecordCounter(EventProviderVerdictsTotal, 1, map[string]string{"provider": "claude", "status": "success"})
	pm.RecordCounter(EventProviderVerdictsTotal, 1, map[string]string{"provider": "grok", "status": "error"})
	pm.RecordCounter(EventLLMTokensTotal, 420, map[string]string{"provider": "openai", "direction": "input"})
	pm.RecordCounter(EventProviderTokensTotal, 484, map[string]string{"provider": "openai"})
	pm.RecordCounter(EventConsensusOutcomes, 1, map[string]string{"outcome": "agreed"})
	pm.RecordCounter(EventLLMRequestsTotal, 1, map[string]string{"provider": "gemini", "model": "gemini-2.0-flash", "status": "timeout"})

	assert.InDelta(t, 2, testutil.ToFloat64(pm.providerVerdicts.WithLabelValues("claude", "success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.providerVerdicts.WithLabelValues("grok", "error")), 1e-9)
	assert.InDelta(t, 420, testutil.ToFloat64(pm.llmTokens.WithLabelValues("openai", "input")), 1e-9)
	assert.InDelta(t, 484, testutil.ToFloat64(pm.providerTokens.WithLabelValues("openai")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.outcomes.WithLabelValues("agreed")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.llmRequests.WithLabelValues("gemini", "gemini-2.0-flash", "timeout")), 1e-9)
}

func TestPrometheusMetrics_MissingLabels(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter(EventProviderVerdictsTotal, 1, nil)
	pm.RecordCounter(EventConsensusOutcomes, 1, map[string]string{"outcome": ""})

	assert.InDelta(t, 1, testutil.ToFloat64(pm.providerVerdicts.WithLabelValues(unknownLabel, unknownLabel)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.outcomes.WithLabelValues(unknownLabel)), 1e-9)
}

func TestPrometheusMetrics_NegativeCounterIgnored(t *testing.T) {
	pm, _ := newTestMetrics(t)

	assert.NotPanics(t, func() {
		pm.RecordCounter(EventProviderTokensTotal, -5, map[string]string{"provider": "claude"})
	})
	assert.Zero(t, testutil.CollectAndCount(pm.providerTokens))
}

func TestPrometheusMetrics_UnknownEvents(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter("cache_hits", 3, nil)
	pm.RecordGauge("queue_depth", 7, nil)
	pm.RecordLatency("render", 20*time.Millisecond, nil)
	pm.RecordHistogram("payload_bytes", 512, nil)

	assert.InDelta(t, 3, testutil.ToFloat64(pm.operations.WithLabelValues("cache_hits")), 1e-9)
	assert.InDelta(t, 7, testutil.ToFloat64(pm.state.WithLabelValues("queue_depth")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(pm.operationLatency))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.values))
}

func TestPrometheusMetrics_ConsensusSeries(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordGauge(EventConsensusActive, 3, nil)
	pm.RecordHistogram(EventConsensusAgreement, 0.75, map[string]string{"policy": "plurality"})
	pm.RecordLatency(EventProviderCall, 1500*time.Millisecond, map[string]string{"provider": "claude"})
	pm.RecordLatency(EventLLMRequest, time.Second, map[string]string{"provider": "claude", "model": "m", "status": "success"})

	assert.InDelta(t, 3, testutil.ToFloat64(pm.activeProviders), 1e-9)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		EventConsensusActive,
		EventConsensusAgreement,
		"magi_provider_call_duration_seconds",
		"magi_llm_request_duration_seconds",
	} {
		assert.True(t, names[want], want)
	}
}
