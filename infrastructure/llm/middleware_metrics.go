package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// Transport metric names.
const (
	MetricRequestLatency = ports.MetricLLMRequest
	MetricRequestsTotal  = ports.MetricLLMRequestsTotal
	MetricTokensTotal    = ports.MetricLLMTokensTotal
)

type metricsLLM struct {
	next      CoreLLM
	provider  domain.ProviderID
	collector ports.MetricsCollector
}

// MetricsMiddleware records latency, outcome and token usage of every
// request under the provider label.
func MetricsMiddleware(provider domain.ProviderID, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{next: next, provider: provider, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": string(m.provider),
		"model":    m.next.GetModel(),
		"status":   requestStatus(err),
	}
	m.collector.RecordLatency(MetricRequestLatency, time.Since(start), labels)
	m.collector.RecordCounter(MetricRequestsTotal, 1, labels)

	if err == nil {
		m.collector.RecordCounter(MetricTokensTotal, float64(tokensIn), tokenLabels(m.provider, "input"))
		m.collector.RecordCounter(MetricTokensTotal, float64(tokensOut), tokenLabels(m.provider, "output"))
	}
	return response, tokensIn, tokensOut, err
}

func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

func tokenLabels(p domain.ProviderID, direction string) map[string]string {
	return map[string]string{"provider": string(p), "direction": direction}
}

func requestStatus(err error) string {
	var perr *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &perr):
		return perr.Type.String()
	default:
		return "error"
	}
}
