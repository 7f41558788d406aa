package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProviderID identifies one of the four recognized AI backends.
type ProviderID string

// Recognized providers.
const (
	ProviderClaude ProviderID = "claude"
	ProviderOpenAI ProviderID = "openai"
	ProviderGemini ProviderID = "gemini"
	ProviderGrok   ProviderID = "grok"
)

// Providers returns the recognized providers in slot order.
func Providers() []ProviderID {
	return []ProviderID{ProviderClaude, ProviderOpenAI, ProviderGemini, ProviderGrok}
}

// MagiName returns the unit name shown for the provider.
func (p ProviderID) MagiName() string {
	switch p {
	case ProviderClaude:
		return "MELCHIOR"
	case ProviderOpenAI:
		return "BALTHASAR"
	case ProviderGemini:
		return "CASPER"
	case ProviderGrok:
		return "RAMIEL"
	default:
		return strings.ToUpper(string(p))
	}
}

// ParseProviderID converts a string to a recognized ProviderID.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range Providers() {
		if p == id {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// Credential is an opaque provider secret. It redacts itself when printed
// or logged.
type Credential string

const redacted = "[REDACTED]"

// String implements fmt.Stringer without exposing the secret.
func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer without exposing the secret.
func (c Credential) GoString() string { return c.String() }

// MarshalText keeps secrets out of serialized configuration dumps.
func (c Credential) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Reveal returns the raw secret for use by transport code.
func (c Credential) Reveal() string { return string(c) }

// ProviderSlot is one provider's per-call configuration.
type ProviderSlot struct {
	Enabled    bool       `json:"enabled" yaml:"enabled"`
	Credential Credential `json:"-" yaml:"api_key"`
	Model      string     `json:"model,omitempty" yaml:"model"`
}

// Usable reports whether the slot is enabled and carries a credential.
func (s ProviderSlot) Usable() bool { return s.Enabled && s.Credential != "" }

// ConsensusPolicy selects how a winner is chosen from the tally.
type ConsensusPolicy string

// Consensus policies.
const (
	// PolicyPlurality picks the token with the strictly highest vote count.
	PolicyPlurality ConsensusPolicy = "plurality"
	// PolicyMajority also requires the winner to hold more than half of
	// the active participants.
	PolicyMajority ConsensusPolicy = "majority"
)

// MinQuorum is the minimum number of usable providers for a consensus.
const MinQuorum = 2

// MAGIConfig is the per-call consensus configuration. Each recognized
// provider has a fixed slot.
type MAGIConfig struct {
	Claude ProviderSlot `json:"claude" yaml:"claude"`
	OpenAI ProviderSlot `json:"openai" yaml:"openai"`
	Gemini ProviderSlot `json:"gemini" yaml:"gemini"`
	Grok   ProviderSlot `json:"grok" yaml:"grok"`

	// Timeout bounds each provider call independently. Zero selects the
	// aggregator default.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Policy selects winner selection. Empty means PolicyPlurality.
	Policy ConsensusPolicy `json:"policy" yaml:"policy" validate:"omitempty,oneof=plurality majority"`
}

// Slot returns the slot for id.
func (c MAGIConfig) Slot(id ProviderID) ProviderSlot {
	switch id {
	case ProviderClaude:
		return c.Claude
	case ProviderOpenAI:
		return c.OpenAI
	case ProviderGemini:
		return c.Gemini
	case ProviderGrok:
		return c.Grok
	default:
		return ProviderSlot{}
	}
}

// SetSlot replaces the slot for id.
func (c *MAGIConfig) SetSlot(id ProviderID, slot ProviderSlot) error {
	switch id {
	case ProviderClaude:
		c.Claude = slot
	case ProviderOpenAI:
		c.OpenAI = slot
	case ProviderGemini:
		c.Gemini = slot
	case ProviderGrok:
		c.Grok = slot
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return nil
}

// UsableProviders returns the providers with usable slots in slot order.
func (c MAGIConfig) UsableProviders() []ProviderID {
	var out []ProviderID
	for _, id := range Providers() {
		if c.Slot(id).Usable() {
			out = append(out, id)
		}
	}
	return out
}

// EffectivePolicy returns the configured policy or the plurality default.
func (c MAGIConfig) EffectivePolicy() ConsensusPolicy {
	if c.Policy == "" {
		return PolicyPlurality
	}
	return c.Policy
}
