// Package config loads the service configuration from an optional file plus
// LONGFORM_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. LONGFORM_DATABASE_URL.
const EnvPrefix = "LONGFORM"

// Config is the full service configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

// DatabaseConfig selects the job store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres or sqlite
	URL    string `mapstructure:"url"`    // DSN, or file path for sqlite
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Provider    string            `mapstructure:"provider"` // gemini, anthropic or local
	APIKey      string            `mapstructure:"api_key"`
	BaseURL     string            `mapstructure:"base_url"`
	Models      map[string]string `mapstructure:"models"` // tier -> model; empty keeps provider defaults
	Timeout     time.Duration     `mapstructure:"timeout"`
	MaxTokens   int               `mapstructure:"max_tokens"`
	ContextSize int               `mapstructure:"context_size"`
}

// SchedulerConfig controls the job poller.
type SchedulerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Executable      string        `mapstructure:"executable"` // empty = the running binary
	StderrTailBytes int           `mapstructure:"stderr_tail_bytes"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// OperatorSecret signs operator tokens; empty leaves rescue/reset open.
	OperatorSecret string          `mapstructure:"operator_secret"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is a per-client token bucket. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// FetchConfig controls search and page fetching during competitor analysis.
type FetchConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	UseBrowser bool          `mapstructure:"use_browser"`
	UserAgent  string        `mapstructure:"user_agent"`
	// SearchURL is an HTML results page with one %s for the query.
	SearchURL string `mapstructure:"search_url"`
	// SearchAPIKey and SearchCX select the Programmable Search API instead of SearchURL.
	SearchAPIKey      string  `mapstructure:"search_api_key"`
	SearchCX          string  `mapstructure:"search_cx"`
	ResultsPerQuery   int     `mapstructure:"results_per_query"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// PipelineConfig holds job defaults.
type PipelineConfig struct {
	DefaultTargetLength int      `mapstructure:"default_target_length"`
	AuthorVoiceTags     []string `mapstructure:"author_voice_tags"`
	EditorTags          []string `mapstructure:"editor_tags"`
	ForbiddenPronoun    string   `mapstructure:"forbidden_pronoun"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "longform.db")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("llm.max_tokens", 8192)

	v.SetDefault("scheduler.poll_interval", 5*time.Second)
	v.SetDefault("scheduler.stderr_tail_bytes", 4096)
	v.SetDefault("scheduler.stop_timeout", 30*time.Second)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit.rps", 10.0)
	v.SetDefault("server.rate_limit.burst", 20)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.use_browser", false)
	v.SetDefault("fetch.search_url", "https://html.duckduckgo.com/html/?q=%s")
	v.SetDefault("fetch.results_per_query", 3)
	v.SetDefault("fetch.requests_per_second", 2.0)

	v.SetDefault("pipeline.default_target_length", 5000)
	v.SetDefault("pipeline.author_voice_tags", []string{"author-voice"})
	v.SetDefault("pipeline.editor_tags", []string{"editor-voice"})
	v.SetDefault("pipeline.forbidden_pronoun", "you")
}

// newViper builds a viper instance with defaults and environment binding.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	bindEnv(v)
	return v
}

// bindEnv makes keys without a default visible to AutomaticEnv during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"llm.api_key", "llm.base_url", "llm.context_size",
		"scheduler.executable",
		"server.operator_secret",
		"fetch.user_agent", "fetch.search_api_key", "fetch.search_cx",
	} {
		_ = v.BindEnv(key)
	}
}

// Load reads the configuration. path may be empty, in which case only defaults and
// environment variables apply. The file type follows the extension (yaml, json, toml).
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with no file and no environment applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks that the configuration has valid values.
// API keys are checked by RequireLLMKey, since commands like migrate never call a model.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "postgresql", "pgx", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("config error: unknown database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("config error: 'database.url' is required")
	}

	switch c.LLM.Provider {
	case "gemini", "anthropic", "local":
	default:
		return fmt.Errorf("config error: unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("config error: 'llm.timeout' must be non-negative")
	}

	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("config error: 'scheduler.poll_interval' must be positive")
	}
	if c.Scheduler.StopTimeout <= 0 {
		return fmt.Errorf("config error: 'scheduler.stop_timeout' must be positive")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' out of range: %d", c.Server.Port)
	}
	if c.Server.RateLimit.RPS > 0 && c.Server.RateLimit.Burst < 1 {
		return fmt.Errorf("config error: 'server.rate_limit.burst' must be at least 1")
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("config error: 'fetch.timeout' must be positive")
	}
	if c.Fetch.ResultsPerQuery < 1 || c.Fetch.ResultsPerQuery > 10 {
		return fmt.Errorf("config error: 'fetch.results_per_query' must be between 1 and 10")
	}
	if c.Fetch.SearchURL != "" && !strings.Contains(c.Fetch.SearchURL, "%s") {
		return fmt.Errorf("config error: 'fetch.search_url' needs a %%s placeholder")
	}
	if (c.Fetch.SearchAPIKey == "") != (c.Fetch.SearchCX == "") {
		return fmt.Errorf("config error: 'fetch.search_api_key' and 'fetch.search_cx' must be set together")
	}

	if c.Pipeline.DefaultTargetLength < 500 {
		return fmt.Errorf("config error: 'pipeline.default_target_length' must be at least 500")
	}
	return nil
}

// RequireLLMKey fails when a hosted provider has no API key.
func (c *Config) RequireLLMKey() error {
	if c.LLM.Provider != "local" && c.LLM.APIKey == "" {
		return fmt.Errorf("config error: 'llm.api_key' is required for provider %s (set %s_LLM_API_KEY)", c.LLM.Provider, EnvPrefix)
	}
	return nil
}
