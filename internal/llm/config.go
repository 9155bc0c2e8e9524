// Package llm provides the generation backend abstraction used by every model-calling step.
// Callers speak in role-tagged messages and model tiers; the backend picks the concrete model.
package llm

import "time"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for cheap extraction: keyword separation, search queries, meta info
	TierLite ModelTier = "lite"
	// TierStandard is for analysis and critiques
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form writing: structure drafts, sections, rewrites
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderAnthropic is the Anthropic/Claude provider
	ProviderAnthropic Provider = "anthropic"
	// ProviderLocal is any OpenAI-compatible local inference server (Ollama, LocalAI, ...)
	ProviderLocal Provider = "local"
)

// Default request settings shared by all providers.
const (
	DefaultTimeout     = 5 * time.Minute
	DefaultMaxTokens   = 8192
	DefaultTemperature = 0.7
	DefaultLocalURL    = "http://localhost:11434"
)

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	BaseURL     string        // local provider only
	Timeout     time.Duration // per call; 0 disables
	MaxTokens   int
	Temperature float64
	ContextSize int // local provider only (num_ctx); 0 = model default
}

// DefaultConfig returns the default configuration (Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultConfigFor returns the default configuration for a provider.
// Unknown providers get the Gemini defaults.
func DefaultConfigFor(p Provider) *Config {
	switch p {
	case ProviderAnthropic:
		return DefaultAnthropicConfig()
	case ProviderLocal:
		return DefaultLocalConfig()
	default:
		return DefaultGeminiConfig()
	}
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Timeout:     DefaultTimeout,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// DefaultAnthropicConfig returns the default Anthropic configuration
func DefaultAnthropicConfig() *Config {
	return &Config{
		Provider: ProviderAnthropic,
		Models: map[ModelTier]string{
			TierLite:     "claude-3-5-haiku-latest",
			TierStandard: "claude-sonnet-4-0",
			TierAdvanced: "claude-sonnet-4-0",
		},
		Timeout:     DefaultTimeout,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// DefaultLocalConfig returns the default local inference configuration.
// A single model serves every tier.
func DefaultLocalConfig() *Config {
	return &Config{
		Provider: ProviderLocal,
		Models: map[ModelTier]string{
			TierStandard: "llama3.1",
		},
		BaseURL:     DefaultLocalURL,
		Timeout:     10 * time.Minute,
		MaxTokens:   4096,
		Temperature: DefaultTemperature,
		ContextSize: 16384,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := *c
	newConfig.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return &newConfig
}
