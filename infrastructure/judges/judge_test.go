package judges

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-magi/infrastructure/llm"
	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
	"github.com/ahrav/go-magi/internal/testutils"
)

const secret = domain.Credential("sk-live-do-not-log")

// stubFactory hands out a fixed client or error and counts lookups.
type stubFactory struct {
	client ports.LLMClient
	err    error
	panic  any
	calls  atomic.Int64
}

func (f *stubFactory) Client(domain.ProviderID, domain.ProviderSlot) (ports.LLMClient, error) {
	f.calls.Add(1)
	if f.panic != nil {
		panic(f.panic)
	}
	return f.client, f.err
}

func newTestJudge(t *testing.T, id domain.ProviderID, f ClientFactory) (*LLMJudge, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	j, err := NewLLMJudge(id, f, nil, logger)
	require.NoError(t, err)
	return j, hook
}

func TestLLMJudge_Success(t *testing.T) {
	client := testutils.NewMockLLMClient("claude-sonnet-4-20250514")
	j, _ := newTestJudge(t, domain.ProviderClaude, &stubFactory{client: client})

	v := j.Judge(context.Background(), sampleRace(), domain.ProviderSlot{Enabled: true, Credential: secret})

	assert.Equal(t, domain.StatusSuccess, v.Status)
	assert.Equal(t, domain.ProviderClaude, v.Provider)
	assert.Equal(t, "MELCHIOR", v.Name)
	assert.Equal(t, "claude-sonnet-4-20250514", v.Model)
	assert.Equal(t, "1-3-4", v.Prediction)
	assert.Equal(t, domain.ConfidenceHigh, v.Confidence)
	assert.Equal(t, 484, v.TokensUsed)
	assert.Empty(t, v.Error)
	assert.Positive(t, v.Latency)

	assert.Contains(t, client.LastPrompt(), "会場: 住之江")
	assert.Equal(t, map[string]any{
		llm.OptMaxTokens:   DefaultMaxTokens,
		llm.OptTemperature: DefaultTemperature,
		llm.OptSystem:      DefaultSystemPrompt,
	}, client.LastOptions())
}

func TestLLMJudge_DisabledWithoutCredential(t *testing.T) {
	f := &stubFactory{client: testutils.NewMockLLMClient("gpt-4o")}
	j, _ := newTestJudge(t, domain.ProviderOpenAI, f)

	v := j.Judge(context.Background(), sampleRace(), domain.ProviderSlot{Enabled: true})

	assert.Equal(t, domain.DisabledVerdict(domain.ProviderOpenAI), v)
	assert.Zero(t, f.calls.Load(), "no client is built for a disabled slot")
}

func TestLLMJudge_Failures(t *testing.T) {
	unparsable := testutils.NewMockLLMClient("gemini-2.0-flash")
	unparsable.AddResponse(testutils.MockResponse{Response: "判断材料が不足しています。"})

	failing := testutils.NewMockLLMClient("gemini-2.0-flash")
	failing.SetError(llm.NewProviderError(domain.ProviderGemini, llm.ErrorTypeRateLimit, 429, "rate limit exceeded", nil))

	slow := testutils.NewMockLLMClient("gemini-2.0-flash")
	slow.SetDelay(time.Second)

	tests := []struct {
		name       string
		factory    *stubFactory
		timeout    time.Duration
		wantDetail string
	}{
		{name: "client construction", factory: &stubFactory{err: llm.ErrEmptyAPIKey}, wantDetail: "operation=connect"},
		{name: "transport error", factory: &stubFactory{client: failing}, wantDetail: "rate limit exceeded"},
		{name: "no finishing order", factory: &stubFactory{client: unparsable}, wantDetail: "no finishing order"},
		{name: "deadline", factory: &stubFactory{client: slow}, timeout: 20 * time.Millisecond, wantDetail: "deadline exceeded"},
		{name: "panic", factory: &stubFactory{panic: "nil map"}, wantDetail: "judge panicked: nil map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, hook := newTestJudge(t, domain.ProviderGemini, tt.factory)
			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			v := j.Judge(ctx, sampleRace(), domain.ProviderSlot{Enabled: true, Credential: secret})

			assert.Equal(t, domain.StatusError, v.Status)
			assert.Equal(t, "CASPER", v.Name)
			assert.Equal(t, "gemini-2.0-flash", v.Model)
			assert.Empty(t, v.Prediction)
			assert.Contains(t, v.Error, tt.wantDetail)
			assert.NotContains(t, v.Error, secret.Reveal())
			for _, e := range hook.AllEntries() {
				s, _ := e.String()
				assert.NotContains(t, s, secret.Reveal())
			}
		})
	}
}

func TestLLMJudge_FailureCarriesUsageAndRetryHint(t *testing.T) {
	t.Run("unparsable reply keeps billed tokens", func(t *testing.T) {
		client := testutils.NewMockLLMClient("gpt-4o")
		client.AddResponse(testutils.MockResponse{Response: "no idea", InputTokens: 700, OutputTokens: 12})
		j, _ := newTestJudge(t, domain.ProviderOpenAI, &stubFactory{client: client})

		v := j.Judge(context.Background(), sampleRace(), domain.ProviderSlot{Enabled: true, Credential: secret})

		assert.Equal(t, domain.StatusError, v.Status)
		assert.Equal(t, 712, v.TokensUsed)
		assert.Contains(t, v.Error, "operation=parse")
		assert.Contains(t, v.Error, "tokens_used=712")
	})

	t.Run("throttled backend passes its retry hint", func(t *testing.T) {
		throttled := llm.NewProviderError(domain.ProviderGrok, llm.ErrorTypeRateLimit, 429, "rate limit exceeded", nil)
		throttled.RetryAfter = 20 * time.Second
		client := testutils.NewMockLLMClient("grok-beta")
		client.SetError(throttled)
		j, hook := newTestJudge(t, domain.ProviderGrok, &stubFactory{client: client})

		v := j.Judge(context.Background(), sampleRace(), domain.ProviderSlot{Enabled: true, Credential: secret})

		assert.Equal(t, domain.StatusError, v.Status)
		assert.Zero(t, v.TokensUsed)
		assert.Contains(t, v.Error, "retry_after=20s")
		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, "judge failed", entry.Message)
		assert.Equal(t, 20*time.Second, entry.Data["retry_after"])
		assert.Equal(t, true, entry.Data["retryable"])
	})
}

func TestLLMJudge_SlotModelOverride(t *testing.T) {
	client := testutils.NewMockLLMClient("")
	j, _ := newTestJudge(t, domain.ProviderGrok, &stubFactory{client: client})

	v := j.Judge(context.Background(), sampleRace(), domain.ProviderSlot{Enabled: true, Credential: secret, Model: "grok-2"})

	assert.Equal(t, domain.StatusSuccess, v.Status)
	assert.Equal(t, "RAMIEL", v.Name)
	assert.Equal(t, "grok-2", v.Model)
}

func TestNewLLMJudge_Validation(t *testing.T) {
	_, err := NewLLMJudge("mistral", &stubFactory{}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)

	_, err = NewLLMJudge(domain.ProviderClaude, nil, nil, nil)
	assert.Error(t, err)
}

func TestNewJudges(t *testing.T) {
	js, err := NewJudges(&stubFactory{}, nil, nil)
	require.NoError(t, err)
	require.Len(t, js, 4)
	for i, id := range domain.Providers() {
		assert.Equal(t, id, js[i].Provider())
	}
}
