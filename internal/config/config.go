// Package config loads mindforge configuration from ~/.mindforge/config.yaml
// with environment variable overrides (MINDFORGE_ prefix).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the cognitive core and its surroundings.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	MAB      MABConfig      `mapstructure:"mab" yaml:"mab"`
	Golden   GoldenConfig   `mapstructure:"golden" yaml:"golden"`
	Trial    TrialConfig    `mapstructure:"trial" yaml:"trial"`
	Verifier VerifierConfig `mapstructure:"verifier" yaml:"verifier"`
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	Tools    ToolsConfig    `mapstructure:"tools" yaml:"tools"`
	State    StateConfig    `mapstructure:"state" yaml:"state"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// LLMConfig configures the provider multiplexer.
type LLMConfig struct {
	// PrimaryProvider is the preferred provider name, or "auto" to let the
	// multiplexer pick the first healthy provider.
	PrimaryProvider string `mapstructure:"primary_provider" yaml:"primary_provider"`
	// FallbackProviders is the ordered fallback chain tried after the
	// primary fails.
	FallbackProviders []string `mapstructure:"fallback_providers" yaml:"fallback_providers"`
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	// ReadTimeout bounds the full response read.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	// MaxRetries is the retry budget per provider for retryable errors.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// RequestInterval is the per-provider minimum time between requests.
	RequestInterval time.Duration `mapstructure:"request_interval" yaml:"request_interval"`
	// CacheTTL is the response cache entry lifetime. Zero disables the cache.
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	// CacheSize bounds the number of cached responses.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
	// HealthProbeInterval is how long an unhealthy provider stays benched
	// before the breaker lets a probe request through.
	HealthProbeInterval time.Duration `mapstructure:"health_probe_interval" yaml:"health_probe_interval"`
	// Providers maps provider names to their settings.
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// ProviderConfig holds per-provider settings.
type ProviderConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model       string  `mapstructure:"model" yaml:"model,omitempty"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
}

// MABConfig configures the strategy selector.
type MABConfig struct {
	// ConvergenceThreshold is the success-rate variance bound for convergence.
	ConvergenceThreshold float64 `mapstructure:"convergence_threshold" yaml:"convergence_threshold"`
	// MinSamples is the minimum total samples before convergence can be declared.
	MinSamples int `mapstructure:"min_samples" yaml:"min_samples"`
	// Seed fixes the selector PRNG; zero seeds from the clock.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// GoldenConfig configures golden template promotion.
type GoldenConfig struct {
	SuccessRateThreshold float64 `mapstructure:"success_rate_threshold" yaml:"success_rate_threshold"`
	MinSamplesRequired   int     `mapstructure:"min_samples_required" yaml:"min_samples_required"`
	StabilityWindow      int     `mapstructure:"stability_window" yaml:"stability_window"`
	MaxTemplates         int     `mapstructure:"max_templates" yaml:"max_templates"`
}

// TrialConfig configures the trial ground lifecycle.
type TrialConfig struct {
	ExplorationBoostRounds   int     `mapstructure:"exploration_boost_rounds" yaml:"exploration_boost_rounds"`
	LearnedPathBonus         float64 `mapstructure:"learned_path_bonus" yaml:"learned_path_bonus"`
	CullingThreshold         float64 `mapstructure:"culling_threshold" yaml:"culling_threshold"`
	CullingMinSamples        int     `mapstructure:"culling_min_samples" yaml:"culling_min_samples"`
	ConsecutiveFailuresLimit int     `mapstructure:"consecutive_failures_limit" yaml:"consecutive_failures_limit"`
	MaxCulledHistory         int     `mapstructure:"max_culled_history" yaml:"max_culled_history"`
	// LearnedProtectionWindow is how long a learned strategy is shielded from
	// culling after entering the trial ground.
	LearnedProtectionWindow time.Duration `mapstructure:"learned_protection_window" yaml:"learned_protection_window"`
	// WatchDuration is how long a strategy must sit on the watch list before
	// the low-success-rate culling rule applies.
	WatchDuration time.Duration `mapstructure:"watch_duration" yaml:"watch_duration"`
}

// VerifierConfig configures idea verification.
type VerifierConfig struct {
	// FeasibilityCutoff is the score above which a path counts as feasible.
	FeasibilityCutoff float64 `mapstructure:"feasibility_cutoff" yaml:"feasibility_cutoff"`
	// Timeout bounds a single verification call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PathsConfig configures candidate path generation.
type PathsConfig struct {
	// MaxPaths caps the candidate set per decision.
	MaxPaths int `mapstructure:"max_paths" yaml:"max_paths"`
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	// TavilyAPIKey enables the web_search tool when set. Falls back to the
	// TAVILY_API_KEY environment variable.
	TavilyAPIKey string `mapstructure:"tavily_api_key" yaml:"tavily_api_key,omitempty"`
	// KnowledgeDB enables the knowledge_query tool backed by a SQLite file.
	KnowledgeDB string `mapstructure:"knowledge_db" yaml:"knowledge_db,omitempty"`
}

// StateConfig configures optional core-state persistence.
type StateConfig struct {
	// Enabled turns on snapshot save/restore.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Path is the snapshot file location.
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			PrimaryProvider:     "auto",
			FallbackProviders:   []string{"ollama", "openai", "anthropic"},
			ConnectTimeout:      30 * time.Second,
			ReadTimeout:         180 * time.Second,
			MaxRetries:          3,
			RequestInterval:     time.Second,
			CacheTTL:            300 * time.Second,
			CacheSize:           256,
			HealthProbeInterval: 300 * time.Second,
			Providers: map[string]ProviderConfig{
				"ollama": {
					Endpoint:    "http://127.0.0.1:11434",
					Model:       "llama3",
					MaxTokens:   4096,
					Temperature: 0.7,
				},
				"openai": {
					Endpoint:    "https://api.openai.com/v1",
					Model:       "gpt-4o-mini",
					MaxTokens:   4096,
					Temperature: 0.7,
				},
				"anthropic": {
					Endpoint:    "https://api.anthropic.com",
					Model:       "claude-3-5-sonnet-20241022",
					MaxTokens:   4096,
					Temperature: 0.7,
				},
			},
		},
		MAB: MABConfig{
			ConvergenceThreshold: 0.05,
			MinSamples:           10,
		},
		Golden: GoldenConfig{
			SuccessRateThreshold: 0.90,
			MinSamplesRequired:   20,
			StabilityWindow:      10,
			MaxTemplates:         50,
		},
		Trial: TrialConfig{
			ExplorationBoostRounds:   10,
			LearnedPathBonus:         0.15,
			CullingThreshold:         0.25,
			CullingMinSamples:        20,
			ConsecutiveFailuresLimit: 10,
			MaxCulledHistory:         100,
			LearnedProtectionWindow:  time.Hour,
			WatchDuration:            30 * time.Minute,
		},
		Verifier: VerifierConfig{
			FeasibilityCutoff: 0.3,
			Timeout:           60 * time.Second,
		},
		Paths: PathsConfig{
			MaxPaths: 6,
		},
		Tools: ToolsConfig{
			TavilyAPIKey: os.Getenv("TAVILY_API_KEY"),
		},
		State: StateConfig{
			Enabled: false,
			Path:    "~/.mindforge/state.json",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from ~/.mindforge/config.yaml, creating it with
// defaults on first run.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".mindforge", "config.yaml"))
}

// LoadFromPath reads configuration from path, merging environment overrides.
// A missing file is created with default values first.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example override: MINDFORGE_LLM_PRIMARY_PROVIDER=openai
	v.SetEnvPrefix("MINDFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.State.Path = expandPath(cfg.State.Path)
	cfg.Tools.KnowledgeDB = expandPath(cfg.Tools.KnowledgeDB)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the core cannot operate with.
func (c *Config) Validate() error {
	if c.Paths.MaxPaths < 1 {
		return fmt.Errorf("paths.max_paths must be >= 1, got %d", c.Paths.MaxPaths)
	}
	if c.MAB.ConvergenceThreshold <= 0 {
		return fmt.Errorf("mab.convergence_threshold must be > 0")
	}
	if c.Golden.SuccessRateThreshold <= 0 || c.Golden.SuccessRateThreshold > 1 {
		return fmt.Errorf("golden.success_rate_threshold must be in (0, 1]")
	}
	if c.Golden.MaxTemplates < 1 {
		return fmt.Errorf("golden.max_templates must be >= 1")
	}
	if c.Trial.CullingThreshold <= 0 || c.Trial.CullingThreshold >= 1 {
		return fmt.Errorf("trial.culling_threshold must be in (0, 1)")
	}
	if c.Verifier.FeasibilityCutoff < 0 || c.Verifier.FeasibilityCutoff > 1 {
		return fmt.Errorf("verifier.feasibility_cutoff must be in [0, 1]")
	}
	return nil
}

// SaveToPath writes the configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
