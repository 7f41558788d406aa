package llm

import (
	"slices"

	"github.com/ahrav/go-magi/internal/domain"
)

// ModelInfo describes a model offered for a provider slot.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Recommended bool   `json:"recommended,omitempty"`
}

// catalog lists the models known to work with the race prompt, recommended
// model first. The recommended model is the provider's default.
var catalog = map[domain.ProviderID][]ModelInfo{
	domain.ProviderClaude: {
		{ID: AnthropicDefaultModel, Name: "Claude Sonnet 4", Recommended: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet"},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku"},
	},
	domain.ProviderOpenAI: {
		{ID: OpenAIDefaultModel, Name: "GPT-4o", Recommended: true},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini"},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo"},
	},
	domain.ProviderGemini: {
		{ID: GoogleDefaultModel, Name: "Gemini 2.0 Flash", Recommended: true},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash"},
	},
	domain.ProviderGrok: {
		{ID: XAIDefaultModel, Name: "Grok Beta", Recommended: true},
		{ID: "grok-2", Name: "Grok 2"},
	},
}

// Models returns the catalog for id, or nil for an unknown provider. The
// slice is a copy.
func Models(id domain.ProviderID) []ModelInfo {
	return slices.Clone(catalog[id])
}

// Catalog returns every provider's models keyed by provider.
func Catalog() map[domain.ProviderID][]ModelInfo {
	out := make(map[domain.ProviderID][]ModelInfo, len(catalog))
	for _, id := range domain.Providers() {
		out[id] = Models(id)
	}
	return out
}

// KnownModel reports whether model is in id's catalog. An empty model is
// known since it selects the default.
func KnownModel(id domain.ProviderID, model string) bool {
	if model == "" {
		return true
	}
	return slices.ContainsFunc(catalog[id], func(m ModelInfo) bool { return m.ID == model })
}
