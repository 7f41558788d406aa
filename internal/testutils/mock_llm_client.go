// Package testutils provides deterministic test doubles for the LLM
// transport and the judge contract.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-magi/internal/ports"
)

// MockLLMClient implements the LLMClient interface with scripted replies
// for consistent testing.
// Replies are chosen by substring match on the prompt, falling back to the
// default reply. It is safe for concurrent use.
type MockLLMClient struct {
	model string

	mu        sync.RWMutex
	responses []MockResponse
	fallback  MockResponse
	err       error
	delay     time.Duration

	calls      atomic.Int64
	lastPrompt atomic.Value
	lastOpts   atomic.Value
}

// MockResponse defines a scripted reply for the mock client.
type MockResponse struct {
	// Pattern is matched against prompts (substring, case-insensitive).
	// An empty pattern sets the default reply.
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
	// InputTokens and OutputTokens are reported by CompleteWithUsage.
	InputTokens  int
	OutputTokens int
}

// DefaultMockReply is a well-formed race prediction in the expected layout.
const DefaultMockReply = `【分析】
1号艇の勝率とインの有利さから1号艇中心。3号艇のモーターが好調。

■予想買い目
1-3-4

■信頼度
高`

// NewMockLLMClient creates a MockLLMClient whose default reply is DefaultMockReply.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{
		model: model,
		fallback: MockResponse{
			Response:     DefaultMockReply,
			InputTokens:  420,
			OutputTokens: 64,
		},
	}
}

// AddResponse adds a new response pattern to the mock client.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if response.Pattern == "" {
		m.fallback = response
		return
	}
	m.responses = append(m.responses, response)
}

// SetError makes every subsequent call fail with err. A nil err clears it.
func (m *MockLLMClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every call block for d or until its context ends.
func (m *MockLLMClient) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// CompleteWithUsage implements ports.LLMClient.
func (m *MockLLMClient) CompleteWithUsage(
	ctx context.Context,
	prompt string,
	options map[string]any,
) (string, int, int, error) {
	m.calls.Add(1)
	m.lastPrompt.Store(prompt)
	if options != nil {
		m.lastOpts.Store(options)
	}

	m.mu.RLock()
	delay, err := m.delay, m.err
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return "", 0, 0, ctx.Err()
	}
	if err != nil {
		return "", 0, 0, err
	}
	if prompt == "" {
		return "", 0, 0, fmt.Errorf("prompt cannot be empty")
	}

	r := m.findMatchingResponse(prompt)
	return r.Response, r.InputTokens, r.OutputTokens, nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string { return m.model }

// CallCount returns how many completions were requested.
func (m *MockLLMClient) CallCount() int { return int(m.calls.Load()) }

// LastPrompt returns the most recent prompt, or "" before the first call.
func (m *MockLLMClient) LastPrompt() string {
	p, _ := m.lastPrompt.Load().(string)
	return p
}

// LastOptions returns the options of the most recent call that passed any.
func (m *MockLLMClient) LastOptions() map[string]any {
	o, _ := m.lastOpts.Load().(map[string]any)
	return o
}

func (m *MockLLMClient) findMatchingResponse(prompt string) MockResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r
		}
	}
	return m.fallback
}

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)
