package llm

import (
	"context"
	"sync"
	"time"
)

// mockCoreLLM is a scripted CoreLLM for middleware tests.
type mockCoreLLM struct {
	mu sync.Mutex

	response  string
	tokensIn  int
	tokensOut int
	err       error
	model     string
	delay     time.Duration

	calls    int
	lastCtx  context.Context
	lastOpts map[string]any
}

func newMockCoreLLM() *mockCoreLLM {
	return &mockCoreLLM{response: "1-2-3", tokensIn: 10, tokensOut: 20, model: "test-model"}
}

func (m *mockCoreLLM) DoRequest(ctx context.Context, _ string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.calls++
	m.lastCtx = ctx
	m.lastOpts = opts
	delay, err := m.delay, m.err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}
	if err != nil {
		return "", 0, 0, err
	}
	return m.response, m.tokensIn, m.tokensOut, nil
}

func (m *mockCoreLLM) GetModel() string { return m.model }

func (m *mockCoreLLM) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockCoreLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// recordedMetric is one call captured by fakeCollector.
type recordedMetric struct {
	kind   string
	name   string
	value  float64
	labels map[string]string
}

type fakeCollector struct {
	mu      sync.Mutex
	records []recordedMetric
}

func (f *fakeCollector) add(kind, name string, v float64, labels map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[string]string, len(labels))
	for k, val := range labels {
		cp[k] = val
	}
	f.records = append(f.records, recordedMetric{kind: kind, name: name, value: v, labels: cp})
}

func (f *fakeCollector) RecordLatency(op string, d time.Duration, labels map[string]string) {
	f.add("latency", op, d.Seconds(), labels)
}

func (f *fakeCollector) RecordCounter(name string, v float64, labels map[string]string) {
	f.add("counter", name, v, labels)
}

func (f *fakeCollector) RecordGauge(name string, v float64, labels map[string]string) {
	f.add("gauge", name, v, labels)
}

func (f *fakeCollector) RecordHistogram(name string, v float64, labels map[string]string) {
	f.add("histogram", name, v, labels)
}

func (f *fakeCollector) find(kind, name string) []recordedMetric {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedMetric
	for _, r := range f.records {
		if r.kind == kind && r.name == name {
			out = append(out, r)
		}
	}
	return out
}
