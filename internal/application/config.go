package application

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// EnvPrefix is the prefix of every environment variable the loader reads.
const EnvPrefix = "MAGI_"

// Config is the complete runtime configuration of the prediction service.
// It is assembled from defaults, an optional YAML file and MAGI_* environment
// variables, in that order of precedence.
type Config struct {
	// Weights are the scoring coefficients keyed by factor name. Empty
	// selects domain.DefaultWeights.
	Weights map[string]float64 `yaml:"weights" validate:"omitempty,dive,keys,factor,endkeys,gte=0"`

	// MAGI configures the consensus providers.
	MAGI MAGISettings `yaml:"magi"`

	// ML configures the outcome predictor.
	ML MLSettings `yaml:"ml"`

	Logging LoggingSettings `yaml:"logging"`
}

// ProviderSettings configures one consensus slot.
type ProviderSettings struct {
	Enabled bool `yaml:"enabled"`

	// APIKey is the provider credential. It redacts itself when printed.
	APIKey domain.Credential `yaml:"api_key"`

	// Model overrides the provider's default model.
	Model string `yaml:"model" validate:"omitempty,modelname"`

	// RequestsPerMinute caps outbound calls for this provider. Zero
	// disables client-side rate limiting.
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"omitempty,min=1,max=10000"`
}

// MAGISettings holds the four fixed provider slots plus consensus options.
type MAGISettings struct {
	Claude ProviderSettings `yaml:"claude"`
	OpenAI ProviderSettings `yaml:"openai"`
	Gemini ProviderSettings `yaml:"gemini"`
	Grok   ProviderSettings `yaml:"grok"`

	// Timeout bounds each provider call.
	Timeout time.Duration `yaml:"timeout" validate:"omitempty,min=1s,max=10m"`

	// RequestTimeout bounds the backend request alone, excluding time spent
	// waiting on the rate limiter. Zero uses Timeout.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"omitempty,min=1s,max=10m"`

	Policy string `yaml:"policy" validate:"omitempty,oneof=plurality majority"`
}

// MLSettings configures the machine-learning predictor. An empty Endpoint
// uses the built-in heuristic model only.
type MLSettings struct {
	Endpoint string        `yaml:"endpoint" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" validate:"omitempty,min=100ms,max=5m"`
}

// LoggingSettings configures the process logger.
type LoggingSettings struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		MAGI: MAGISettings{
			Timeout: DefaultProviderTimeout,
			Policy:  string(domain.PolicyPlurality),
		},
		ML:      MLSettings{Timeout: 10 * time.Second},
		Logging: LoggingSettings{Level: "info", Format: "text"},
	}
}

// Provider returns the settings of the slot for id.
func (m MAGISettings) Provider(id domain.ProviderID) ProviderSettings {
	switch id {
	case domain.ProviderClaude:
		return m.Claude
	case domain.ProviderOpenAI:
		return m.OpenAI
	case domain.ProviderGemini:
		return m.Gemini
	case domain.ProviderGrok:
		return m.Grok
	default:
		return ProviderSettings{}
	}
}

// WeightConfig converts the configured weights. It returns nil when none
// are configured.
func (c *Config) WeightConfig() domain.WeightConfig {
	if len(c.Weights) == 0 {
		return nil
	}
	out := make(domain.WeightConfig, len(c.Weights))
	for k, v := range c.Weights {
		out[domain.Factor(k)] = v
	}
	return out
}

// MAGIConfig builds the per-call consensus configuration.
func (c *Config) MAGIConfig() domain.MAGIConfig {
	var out domain.MAGIConfig
	for _, id := range domain.Providers() {
		p := c.MAGI.Provider(id)
		// SetSlot only fails for unrecognized ids.
		_ = out.SetSlot(id, domain.ProviderSlot{
			Enabled:    p.Enabled,
			Credential: p.APIKey,
			Model:      p.Model,
		})
	}
	out.Timeout = c.MAGI.Timeout
	out.Policy = domain.ConsensusPolicy(c.MAGI.Policy)
	return out
}

// ConfigLoader layers defaults, a YAML file and the environment into a
// validated Config.
type ConfigLoader struct {
	validator *validator.Validate
}

// NewConfigLoader creates a loader with the configuration validators
// registered.
// NewConfigLoader returns an error if validator registration fails.
func NewConfigLoader() (*ConfigLoader, error) {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ConfigLoader{validator: v}, nil
}

// Load reads the YAML file at path, when path is non-empty, overlays MAGI_*
// environment variables and validates the result.
// Load returns a *ports.ConfigError wrapping ports.ErrConfigNotFound if the
// file does not exist, and a *domain.ValidationError for invalid values.
func (cl *ConfigLoader) Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		cleanPath := filepath.Clean(path)
		if _, err := os.Stat(cleanPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ports.NewConfigError(cleanPath, ports.ErrConfigNotFound)
			}
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := k.Load(file.Provider(cleanPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envEntry), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cl.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the weight semantics that tags
// cannot express.
func (cl *ConfigLoader) Validate(cfg *Config) error {
	verr := domain.NewValidationError("Config")

	if err := cl.validator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("struct validation failed: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.AddErrorf("%s failed %s", fe.Namespace(), describeTag(fe))
		}
	}

	if w := cfg.WeightConfig(); w != nil && !verr.HasErrors() {
		var werr *domain.ValidationError
		if err := w.Validate(); errors.As(err, &werr) {
			verr.Errors = append(verr.Errors, werr.Errors...)
		}
	}

	return verr.ErrOrNil()
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// envEntry skips variables that are set but empty so an exported blank
// MAGI_CLAUDE_API_KEY does not erase the file's value.
func envEntry(name, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	return envKey(name), value
}

// envKey maps MAGI_* variable names onto configuration paths, e.g.
// MAGI_CLAUDE_API_KEY to magi.claude.api_key. Unrecognized names map to ""
// and are skipped.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	for _, id := range domain.Providers() {
		if rest, ok := strings.CutPrefix(key, string(id)+"_"); ok {
			return "magi." + string(id) + "." + rest
		}
	}

	switch key {
	case "timeout", "request_timeout", "policy":
		return "magi." + key
	case "ml_endpoint":
		return "ml.endpoint"
	case "ml_timeout":
		return "ml.timeout"
	case "log_level":
		return "logging.level"
	case "log_format":
		return "logging.format"
	default:
		return ""
	}
}
