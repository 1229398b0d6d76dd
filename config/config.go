// Package config loads roundtable service configuration from YAML with
// environment overrides for secrets and deployment-specific values.
//
// Usage:
//
//	cfg, err := config.Load("config.yaml") // file optional
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	LLM          LLMConfig          `yaml:"llm"`
	Registry     RegistryConfig     `yaml:"registry"`
	Deliberation DeliberationConfig `yaml:"deliberation"`
	API          APIConfig          `yaml:"api"`
	Redis        RedisConfig        `yaml:"redis"`
	Database     DatabaseConfig     `yaml:"database"`
}

// ServerConfig 服务器监听配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	MetricsPort     int           `yaml:"metrics_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug/info/warn/error
	Format string `yaml:"format"` // json/console
}

// LLMConfig configures the reasoning backend. APIKeyEnv names the env var
// holding the credential; the key itself never appears in config files.
type LLMConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// APIKey resolves the credential from the configured env var.
func (c *LLMConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// RegistryConfig configures agent registration persistence.
type RegistryConfig struct {
	PersistPath string `yaml:"persist_path"`
}

// DeliberationConfig mirrors deliberation.Config in YAML form.
type DeliberationConfig struct {
	ApprovalThreshold float64       `yaml:"approval_threshold"`
	DissentTolerance  int           `yaml:"dissent_tolerance"`
	PhaseTimeout      time.Duration `yaml:"phase_timeout"`
	MaxConcurrency    int64         `yaml:"max_concurrency"`
	DisableCoreAgents bool          `yaml:"disable_core_agents"`
	MinSeverity       string        `yaml:"min_severity"`
}

// APIConfig configures the HTTP surface in front of the core.
type APIConfig struct {
	APIKeys       []string        `yaml:"api_keys"` // static bearer keys; empty disables key auth
	JWT           JWTConfig       `yaml:"jwt"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	MaxTurnLength int             `yaml:"max_turn_length"`
}

// JWTConfig configures optional JWT bearer auth.
type JWTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Secret    string `yaml:"-"` // resolved from SecretEnv
	SecretEnv string `yaml:"secret_env"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// RedisConfig 会话存储配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"` // from REDIS_PASSWORD
	DB       int    `yaml:"db"`
}

// DatabaseConfig configures the round-result archive.
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // sqlite file
}

// DefaultConfig returns a complete default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute, // rounds can legitimately run long
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		LLM: LLMConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   120 * time.Second,
		},
		Registry: RegistryConfig{PersistPath: ".roundtable/agents.json"},
		Deliberation: DeliberationConfig{
			ApprovalThreshold: 0.5,
			DissentTolerance:  0,
			PhaseTimeout:      120 * time.Second,
			MinSeverity:       "info",
		},
		API: APIConfig{
			RateLimit:     RateLimitConfig{Enabled: true, RPS: 10, Burst: 20},
			MaxTurnLength: 64 * 1024,
		},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Database: DatabaseConfig{Path: ".roundtable/rounds.db"},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv resolves secrets and deployment overrides from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("ROUNDTABLE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ROUNDTABLE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("ROUNDTABLE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if c.API.JWT.SecretEnv != "" {
		c.API.JWT.Secret = os.Getenv(c.API.JWT.SecretEnv)
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.API.APIKeys = append(c.API.APIKeys, v)
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid http_port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics_port")
	}
	if c.Deliberation.ApprovalThreshold < 0 || c.Deliberation.ApprovalThreshold >= 1 {
		errs = append(errs, "approval_threshold must be in [0, 1)")
	}
	if c.Deliberation.DissentTolerance < 0 {
		errs = append(errs, "dissent_tolerance must be non-negative")
	}
	if c.API.JWT.Enabled && c.API.JWT.Secret == "" {
		errs = append(errs, "jwt enabled but secret env is unset")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
