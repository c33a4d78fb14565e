package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Reports    ReportsConfig    `yaml:"reports" mapstructure:"reports"`
	Uploads    UploadsConfig    `yaml:"uploads" mapstructure:"uploads"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the job history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds settings for an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ClassifierConfig controls how classifier calls are paced and bounded.
type ClassifierConfig struct {
	Provider         string        `yaml:"provider" mapstructure:"provider"`
	CallTimeout      time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	RatePerSec       float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int           `yaml:"burst" mapstructure:"burst"`
	MaxAttempts      int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BreakerThreshold int           `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// PipelineConfig configures stage execution.
type PipelineConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// JobsConfig configures the job lifecycle manager.
type JobsConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Retention     time.Duration `yaml:"retention" mapstructure:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ReportsConfig configures where result documents are written.
type ReportsConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	URLPrefix string `yaml:"url_prefix" mapstructure:"url_prefix"`
}

// UploadsConfig configures storage of uploaded spreadsheets.
type UploadsConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	MaxBytes int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// MonitoringConfig configures job health checks and webhook alerts.
type MonitoringConfig struct {
	Enabled              bool          `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckInterval        time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
	Lookback             time.Duration `yaml:"lookback" mapstructure:"lookback"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	TimeoutThreshold     int           `yaml:"timeout_threshold" mapstructure:"timeout_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TESTAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so env overrides reach Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "test-agent.db")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 2048)
	v.SetDefault("classifier.provider", "anthropic")
	v.SetDefault("classifier.call_timeout", "90s")
	v.SetDefault("classifier.rate_per_sec", 5.0)
	v.SetDefault("classifier.burst", 5)
	v.SetDefault("classifier.max_attempts", 3)
	v.SetDefault("classifier.breaker_threshold", 10)
	v.SetDefault("classifier.breaker_cooldown", "30s")
	v.SetDefault("pipeline.max_concurrency", 8)
	v.SetDefault("jobs.timeout", "1h")
	v.SetDefault("jobs.retention", "24h")
	v.SetDefault("jobs.sweep_interval", "10m")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("reports.dir", "reports")
	v.SetDefault("reports.url_prefix", "/reports/")
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.max_bytes", 32<<20)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval", "5m")
	v.SetDefault("monitoring.lookback", "24h")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.timeout_threshold", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. Mode is "analyze" for
// one-shot local runs or "serve" for the HTTP API. All problems are reported
// together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Classifier.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
		if c.OpenAI.BaseURL == "" {
			errs = append(errs, "openai.base_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("classifier.provider %q is not supported", c.Classifier.Provider))
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "none":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	if c.Jobs.Timeout <= 0 {
		errs = append(errs, "jobs.timeout must be > 0")
	}
	if c.Pipeline.MaxConcurrency < 1 || c.Pipeline.MaxConcurrency > 64 {
		errs = append(errs, "pipeline.max_concurrency must be between 1 and 64")
	}

	switch mode {
	case "analyze":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
