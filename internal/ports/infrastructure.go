// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations should handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// CompleteWithUsage sends prompt to the provider and returns the reply
	// text with input and output token counts.
	//
	// The options map carries per-request settings without widening the
	// interface. Common options include:
	//   - "temperature": float64
	//   - "max_tokens": int
	//   - "system": string
	CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// Metric names shared by the producers in the application and transport
// layers and the Prometheus adapter that maps them onto series.
const (
	MetricLLMRequest            = "magi_llm_request"
	MetricLLMRequestsTotal      = "magi_llm_requests_total"
	MetricLLMTokensTotal        = "magi_llm_tokens_total"
	MetricProviderCall          = "magi_provider_call"
	MetricProviderVerdictsTotal = "magi_provider_verdicts_total"
	MetricProviderTokensTotal   = "magi_provider_tokens_total"
	MetricConsensusOutcomes     = "magi_consensus_outcomes_total"
	MetricConsensusAgreement    = "magi_consensus_agreement_ratio"
	MetricConsensusActive       = "magi_consensus_active_providers"
)

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
