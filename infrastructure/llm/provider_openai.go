package llm

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-magi/internal/domain"
)

const (
	// OpenAIDefaultModel serves the BALTHASAR slot.
	OpenAIDefaultModel = "gpt-4o"

	// XAIDefaultModel serves the RAMIEL slot.
	XAIDefaultModel = "grok-beta"

	// XAIBaseURL is the OpenAI-compatible xAI endpoint.
	XAIBaseURL = "https://api.x.ai/v1"
)

func init() {
	registerProvider(domain.ProviderOpenAI, OpenAIDefaultModel, func(c ClientConfig) (CoreLLM, error) {
		return newOpenAICompatible(domain.ProviderOpenAI, "", OpenAIDefaultModel, c)
	})
	registerProvider(domain.ProviderGrok, XAIDefaultModel, func(c ClientConfig) (CoreLLM, error) {
		return newOpenAICompatible(domain.ProviderGrok, XAIBaseURL, XAIDefaultModel, c)
	})
}

// openAIProvider is the CoreLLM shim for OpenAI chat completions and any
// backend speaking the same protocol, such as xAI.
type openAIProvider struct {
	client   *openai.Client
	model    string
	classify errorClassifier
}

func newOpenAICompatible(id domain.ProviderID, defaultURL, defaultModel string, config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	cc := openai.DefaultConfig(config.APIKey.Reveal())
	if defaultURL != "" {
		cc.BaseURL = defaultURL
	}
	if config.BaseURL != "" {
		u, err := validateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		cc.BaseURL = u
	}
	if t := clampTimeout(config.Timeout); t > 0 {
		cc.HTTPClient = &http.Client{Timeout: t}
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}

	return &openAIProvider{
		client:   openai.NewClientWithConfig(cc),
		model:    model,
		classify: errorClassifier{provider: id},
	}, nil
}

func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ro := parseRequestOptions(opts, p.model)

	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(prompt, ro))
	if err != nil {
		return "", 0, 0, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, p.classify.unknown(ErrNoResponseChoice)
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", 0, 0, p.classify.unknown(ErrEmptyResponse)
	}
	return content, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
}

func (p *openAIProvider) buildRequest(prompt string, ro requestOptions) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if ro.system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: ro.system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:     ro.model,
		Messages:  msgs,
		MaxTokens: ro.maxTokens,
	}
	if ro.temperature != nil {
		req.Temperature = float32(*ro.temperature)
	}
	if ro.topP != nil {
		req.TopP = float32(*ro.topP)
	}
	return req
}

func (p *openAIProvider) wrapError(err error) error {
	if perr := p.classify.fromContext(err); perr != nil {
		return perr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return p.classify.fromStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.classify.fromStatus(reqErr.HTTPStatusCode, "", err)
	}
	return p.classify.unknown(err)
}

func (p *openAIProvider) GetModel() string { return p.model }
