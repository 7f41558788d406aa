package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-magi/internal/domain"
)

// GoogleDefaultModel serves the CASPER slot.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	registerProvider(domain.ProviderGemini, GoogleDefaultModel, newGoogleProvider)
}

// googleProvider is the CoreLLM shim for the Gemini API.
type googleProvider struct {
	client   *genai.Client
	model    string
	classify errorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey.Reveal(),
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		u, err := validateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		cc.HTTPOptions.BaseURL = u
	}
	if t := clampTimeout(config.Timeout); t > 0 {
		cc.HTTPClient = &http.Client{Timeout: t}
	}

	// NewClient only validates configuration; it performs no I/O.
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	return &googleProvider{
		client:   client,
		model:    model,
		classify: errorClassifier{provider: domain.ProviderGemini},
	}, nil
}

func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ro := parseRequestOptions(opts, p.model)

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, ro.model, contents, generationConfig(ro))
	if err != nil {
		return "", 0, 0, p.wrapError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", 0, 0, p.classify.unknown(ErrEmptyResponse)
	}

	var in, out int
	if u := resp.UsageMetadata; u != nil {
		in, out = int(u.PromptTokenCount), int(u.CandidatesTokenCount)
	}
	return text, in, out, nil
}

func generationConfig(ro requestOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(ro.maxTokens, math.MaxInt32)),
	}
	if ro.system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(ro.system, genai.RoleUser)
	}
	if ro.temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*ro.temperature))
	}
	if ro.topP != nil {
		cfg.TopP = genai.Ptr(float32(*ro.topP))
	}
	return cfg
}

func (p *googleProvider) wrapError(err error) error {
	if perr := p.classify.fromContext(err); perr != nil {
		return perr
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if blockedBySafety(apiErr.Message, apiErr.Status) {
			return NewProviderError(domain.ProviderGemini, ErrorTypeContentPolicy, apiErr.Code, "blocked by safety filters", err)
		}
		return p.classify.fromStatus(apiErr.Code, apiErr.Message, err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		reason := ""
		if len(gErr.Errors) > 0 {
			reason = gErr.Errors[0].Reason
		}
		if blockedBySafety(gErr.Message, reason) {
			return NewProviderError(domain.ProviderGemini, ErrorTypeContentPolicy, gErr.Code, "blocked by safety filters", err)
		}
		return p.classify.fromStatus(gErr.Code, gErr.Message, err).withRetryAfter(gErr.Header)
	}

	return p.classify.unknown(err)
}

func blockedBySafety(message, reason string) bool {
	if reason == "SAFETY" || reason == "BLOCKED" {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}

func (p *googleProvider) GetModel() string { return p.model }
