package judges

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ahrav/go-magi/infrastructure/llm"
	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// Request defaults for every judge call.
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

// LLMJudge implements ports.Judge for one provider over an LLM client.
// It is stateless apart from the shared client factory and safe for
// concurrent use.
type LLMJudge struct {
	id      domain.ProviderID
	clients ClientFactory
	prompt  *PromptRenderer
	logger  *logrus.Logger
	options map[string]any
}

var _ ports.Judge = (*LLMJudge)(nil)

// NewLLMJudge creates the judge for id. A nil prompt uses the default
// template and a nil logger discards output.
func NewLLMJudge(id domain.ProviderID, clients ClientFactory, prompt *PromptRenderer, logger *logrus.Logger) (*LLMJudge, error) {
	if _, err := domain.ParseProviderID(string(id)); err != nil {
		return nil, err
	}
	if clients == nil {
		return nil, errors.New("client factory cannot be nil")
	}
	if prompt == nil {
		var err error
		if prompt, err = NewPromptRenderer(""); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &LLMJudge{
		id:      id,
		clients: clients,
		prompt:  prompt,
		logger:  logger,
		options: map[string]any{
			llm.OptMaxTokens:   DefaultMaxTokens,
			llm.OptTemperature: DefaultTemperature,
			llm.OptSystem:      DefaultSystemPrompt,
		},
	}, nil
}

// NewJudges creates one judge per recognized provider, sharing clients and
// prompt.
func NewJudges(clients ClientFactory, prompt *PromptRenderer, logger *logrus.Logger) ([]ports.Judge, error) {
	out := make([]ports.Judge, 0, len(domain.Providers()))
	for _, id := range domain.Providers() {
		j, err := NewLLMJudge(id, clients, prompt, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Provider implements ports.Judge.
func (j *LLMJudge) Provider() domain.ProviderID { return j.id }

// Judge implements ports.Judge.
func (j *LLMJudge) Judge(ctx context.Context, race domain.RaceContext, slot domain.ProviderSlot) (v domain.ProviderVerdict) {
	if slot.Credential == "" {
		return domain.DisabledVerdict(j.id)
	}

	model := slot.Model
	if model == "" {
		model = llm.DefaultModel(j.id)
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			v = domain.ErrorVerdict(j.id, model, fmt.Errorf("judge panicked: %v", r))
		}
		v.Latency = time.Since(start)
	}()

	log := j.logger.WithFields(logrus.Fields{
		"provider": j.id,
		"magi":     j.id.MagiName(),
		"model":    model,
		"race_id":  race.RaceID,
	})

	prompt, err := j.prompt.Render(race)
	if err != nil {
		return j.fail(log, model, "render", 0, err)
	}

	client, err := j.clients.Client(j.id, slot)
	if err != nil {
		return j.fail(log, model, "connect", 0, err)
	}
	if m := client.GetModel(); m != "" {
		model = m
	}

	reply, tokensIn, tokensOut, err := client.CompleteWithUsage(ctx, prompt, j.options)
	if err != nil {
		return j.fail(log, model, "complete", 0, err)
	}

	parsed, ok := ParseReply(reply)
	if !ok {
		return j.fail(log, model, "parse", tokensIn+tokensOut, fmt.Errorf("%w: no finishing order in reply", ports.ErrInvalidResponse))
	}

	log.WithFields(logrus.Fields{
		"prediction": parsed.Prediction,
		"confidence": parsed.Confidence,
		"tokens":     tokensIn + tokensOut,
	}).Debug("judge returned a verdict")

	return domain.ProviderVerdict{
		Provider:   j.id,
		Name:       j.id.MagiName(),
		Model:      model,
		Status:     domain.StatusSuccess,
		Prediction: parsed.Prediction,
		Confidence: parsed.Confidence,
		Analysis:   parsed.Analysis,
		TokensUsed: tokensIn + tokensOut,
	}
}

// fail turns a failed step into an error verdict. Tokens billed before the
// failure still count toward the verdict's usage.
func (j *LLMJudge) fail(log *logrus.Entry, model, op string, tokens int, err error) domain.ProviderVerdict {
	lerr := ports.NewLLMError(model, op, err)
	lerr.TokensUsed = tokens
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		lerr.RetryAfter = perr.RetryAfter
	}

	fields := logrus.Fields{
		"operation": op,
		"retryable": lerr.IsRetryable(),
		"error":     err.Error(),
	}
	if lerr.RetryAfter > 0 {
		fields["retry_after"] = lerr.RetryAfter
	}
	log.WithFields(fields).Warn("judge failed")

	v := domain.ErrorVerdict(j.id, model, lerr)
	v.TokensUsed = tokens
	return v
}
