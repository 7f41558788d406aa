package llm

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// Request option keys understood by every shim.
const (
	OptMaxTokens   = "max_tokens"
	OptTemperature = "temperature"
	OptTopP        = "top_p"
	OptSystem      = "system"
	OptModel       = "model"
)

// DefaultMaxTokens caps the reply length when the caller sets no limit.
const DefaultMaxTokens = 1000

// Parameter bounds shared by the shims. Temperature goes up to 2.0 for
// Gemini and OpenAI-compatible backends; Anthropic clamps to 1.0 itself.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinTimeout     = time.Second
	MaxTimeout     = 10 * time.Minute
)

// requestOptions is the parsed, validated form of a shim's opts map.
type requestOptions struct {
	maxTokens   int
	model       string
	system      string
	temperature *float64
	topP        *float64
}

// parseRequestOptions reads opts, silently dropping values of the wrong
// type or outside their valid range.
func parseRequestOptions(opts map[string]any, defaultModel string) requestOptions {
	ro := requestOptions{
		maxTokens: optionInt(opts, OptMaxTokens, DefaultMaxTokens),
		model:     optionString(opts, OptModel, defaultModel),
		system:    optionString(opts, OptSystem, ""),
	}
	if ro.maxTokens <= 0 {
		ro.maxTokens = DefaultMaxTokens
	}
	if t, ok := optionFloat(opts, OptTemperature); ok && t >= MinTemperature && t <= MaxTemperature {
		ro.temperature = &t
	}
	if p, ok := optionFloat(opts, OptTopP); ok && p >= 0 && p <= 1 {
		ro.topP = &p
	}
	return ro
}

func optionString(opts map[string]any, key, def string) string {
	if s, ok := opts[key].(string); ok && s != "" {
		return s
	}
	return def
}

func optionInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return int(v)
		}
	case float64:
		if !math.IsNaN(v) && v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
			return int(v)
		}
	}
	return def
}

func optionFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), !math.IsNaN(float64(v))
	case int:
		return float64(v), true
	}
	return 0, false
}

// validateBaseURL normalizes an endpoint override. Empty selects the
// provider default.
func validateBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}

// clampTimeout bounds a configured HTTP timeout. Non-positive means none.
func clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return min(max(d, MinTimeout), MaxTimeout)
}
