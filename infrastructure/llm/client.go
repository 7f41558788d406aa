// Package llm is the outbound transport to the four AI backends that take
// part in a MAGI consensus. Each backend is a CoreLLM shim registered under
// its provider id; cross-cutting behavior such as timeouts, rate limiting,
// circuit breaking, metrics and tracing is layered on as Middleware.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// CoreLLM is the minimal contract a provider shim implements. Middleware
// wraps a CoreLLM and returns another, so the chain stays transparent to
// callers.
type CoreLLM interface {
	// DoRequest sends prompt to the backend and returns the reply text with
	// input and output token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the model requests are sent to.
	GetModel() string
}

// Middleware decorates a CoreLLM.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig configures one provider client.
type ClientConfig struct {
	// APIKey authenticates against the backend. It redacts itself when the
	// config is printed.
	APIKey domain.Credential

	// Model overrides the provider default model.
	Model string

	// BaseURL overrides the provider endpoint. Tests point it at httptest.
	BaseURL string

	// Timeout bounds the underlying HTTP client. Zero leaves the per-call
	// context as the only bound.
	Timeout time.Duration

	// Middleware is applied outermost first.
	Middleware []Middleware
}

// Client adapts a middleware-wrapped CoreLLM to ports.LLMClient.
type Client struct {
	provider domain.ProviderID
	core     CoreLLM
}

var _ ports.LLMClient = (*Client)(nil)

type providerFactory func(ClientConfig) (CoreLLM, error)

// factories is populated by init functions in the provider files and is
// read-only afterwards.
var factories = map[domain.ProviderID]providerFactory{}

var defaultModels = map[domain.ProviderID]string{}

func registerProvider(id domain.ProviderID, defaultModel string, f providerFactory) {
	factories[id] = f
	defaultModels[id] = defaultModel
}

// DefaultModel returns the model used for id when none is configured.
func DefaultModel(id domain.ProviderID) string { return defaultModels[id] }

// NewClient builds a client for the provider slot id.
// NewClient returns ErrEmptyAPIKey when config carries no key and an error
// for providers without a registered shim.
func NewClient(id domain.ProviderID, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, id)
	}
	if config.Model == "" {
		config.Model = defaultModels[id]
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", id, err)
	}

	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{provider: id, core: core}, nil
}

// CompleteWithUsage returns the reply text with input and output token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// GetModel implements ports.LLMClient.
func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the slot this client serves.
func (c *Client) Provider() domain.ProviderID { return c.provider }
