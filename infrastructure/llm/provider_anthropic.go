package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-magi/internal/domain"
)

// AnthropicDefaultModel serves the MELCHIOR slot.
const AnthropicDefaultModel = "claude-sonnet-4-20250514"

func init() {
	registerProvider(domain.ProviderClaude, AnthropicDefaultModel, newAnthropicProvider)
}

// anthropicProvider is the CoreLLM shim for the Anthropic Messages API.
type anthropicProvider struct {
	client   anthropic.Client
	model    string
	classify errorClassifier
}

func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	// The aggregator never retries; a failed call becomes an error verdict.
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey.Reveal()),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		u, err := validateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithBaseURL(u))
	}
	if t := clampTimeout(config.Timeout); t > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: t}))
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	return &anthropicProvider{
		client:   anthropic.NewClient(opts...),
		model:    model,
		classify: errorClassifier{provider: domain.ProviderClaude},
	}, nil
}

func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ro := parseRequestOptions(opts, p.model)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(ro.model),
		MaxTokens: int64(ro.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if ro.temperature != nil {
		params.Temperature = anthropic.Float(min(*ro.temperature, 1.0))
	}
	if ro.topP != nil {
		params.TopP = anthropic.Float(*ro.topP)
	}
	if ro.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: ro.system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", 0, 0, p.wrapError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return "", 0, 0, NewProviderError(domain.ProviderClaude, ErrorTypeUnknown, 0, "no text in reply", ErrEmptyResponse)
	}

	return sb.String(), int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens), nil
}

func (p *anthropicProvider) wrapError(err error) error {
	if perr := p.classify.fromContext(err); perr != nil {
		return perr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		perr := p.classify.fromStatus(apiErr.StatusCode, "", err)
		if apiErr.Response != nil {
			perr = perr.withRetryAfter(apiErr.Response.Header)
		}
		return perr
	}
	return p.classify.unknown(err)
}

func (p *anthropicProvider) GetModel() string { return p.model }
