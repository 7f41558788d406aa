package judges

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-magi/infrastructure/llm"
	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// ClientFactory resolves the LLM client for a provider slot.
type ClientFactory interface {
	Client(id domain.ProviderID, slot domain.ProviderSlot) (ports.LLMClient, error)
}

// TransportOptions configures the middleware chain of every client.
type TransportOptions struct {
	// RequestsPerMinute caps calls per provider. Missing or zero entries
	// disable limiting for that provider.
	RequestsPerMinute map[domain.ProviderID]int

	// BreakerFailures consecutive failures open a provider's breaker for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration

	// RequestTimeout bounds each backend request once it has passed the
	// breaker and limiter, so time spent waiting for a token does not eat
	// into it. Zero disables the guard.
	RequestTimeout time.Duration

	// HTTPTimeout bounds the underlying HTTP client. The per-call context
	// from the aggregator normally expires first.
	HTTPTimeout time.Duration

	// BaseURLs overrides provider endpoints, mainly for tests and proxies.
	BaseURLs map[domain.ProviderID]string

	Metrics ports.MetricsCollector
}

type newClientFunc func(domain.ProviderID, llm.ClientConfig) (ports.LLMClient, error)

// CachedClients builds one client per provider, credential and model and
// reuses it across calls. Concurrent first requests for the same key share
// a single construction. Rate limiters and breakers are per provider, so
// rotating credentials does not reset them.
type CachedClients struct {
	opts       TransportOptions
	newClient  newClientFunc
	middleware map[domain.ProviderID][]llm.Middleware

	group   singleflight.Group
	mu      sync.RWMutex
	clients map[string]ports.LLMClient
}

var _ ClientFactory = (*CachedClients)(nil)

// NewCachedClients creates a factory backed by llm.NewClient.
func NewCachedClients(opts TransportOptions) *CachedClients {
	return newCachedClients(opts, func(id domain.ProviderID, cfg llm.ClientConfig) (ports.LLMClient, error) {
		return llm.NewClient(id, cfg)
	})
}

func newCachedClients(opts TransportOptions, newClient newClientFunc) *CachedClients {
	mw := make(map[domain.ProviderID][]llm.Middleware, len(domain.Providers()))
	for _, id := range domain.Providers() {
		// Outermost first: tracing and metrics see breaker and limiter
		// rejections as well as backend failures.
		chain := []llm.Middleware{
			llm.TracingMiddleware(id),
			llm.MetricsMiddleware(id, opts.Metrics),
		}
		if opts.BreakerFailures > 0 {
			chain = append(chain, llm.CircuitBreakerMiddleware(opts.BreakerFailures, opts.BreakerCooldown))
		}
		if rpm := opts.RequestsPerMinute[id]; rpm > 0 {
			chain = append(chain, llm.RateLimitMiddleware(rpm))
		}
		if opts.RequestTimeout > 0 {
			chain = append(chain, llm.TimeoutMiddleware(opts.RequestTimeout))
		}
		mw[id] = chain
	}
	return &CachedClients{
		opts:       opts,
		newClient:  newClient,
		middleware: mw,
		clients:    make(map[string]ports.LLMClient),
	}
}

// Client implements ClientFactory.
func (c *CachedClients) Client(id domain.ProviderID, slot domain.ProviderSlot) (ports.LLMClient, error) {
	key := cacheKey(id, slot)

	c.mu.RLock()
	client, ok := c.clients[key]
	c.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		existing, ok := c.clients[key]
		c.mu.RUnlock()
		if ok {
			return existing, nil
		}

		built, err := c.newClient(id, llm.ClientConfig{
			APIKey:     slot.Credential,
			Model:      slot.Model,
			BaseURL:    c.opts.BaseURLs[id],
			Timeout:    c.opts.HTTPTimeout,
			Middleware: c.middleware[id],
		})
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.clients[key] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, fmt.Errorf("building %s client: %w", id, err)
	}
	return v.(ports.LLMClient), nil
}

// Len returns the number of cached clients.
func (c *CachedClients) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// cacheKey identifies a client without holding the raw credential.
func cacheKey(id domain.ProviderID, slot domain.ProviderSlot) string {
	sum := sha256.Sum256([]byte(slot.Credential.Reveal()))
	return string(id) + "|" + hex.EncodeToString(sum[:8]) + "|" + slot.Model
}
