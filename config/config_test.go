package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, "OPENAI_API_KEY", cfg.LLM.APIKeyEnv)
	assert.InDelta(t, 0.5, cfg.Deliberation.ApprovalThreshold, 1e-9)
	assert.Zero(t, cfg.Deliberation.DissentTolerance)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("missing file keeps defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9999
llm:
  model: gpt-4o
  api_key_env: MY_LLM_KEY
deliberation:
  approval_threshold: 0.66
  dissent_tolerance: 2
  phase_timeout: 30s
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.Server.HTTPPort)
		assert.Equal(t, "gpt-4o", cfg.LLM.Model)
		assert.Equal(t, "MY_LLM_KEY", cfg.LLM.APIKeyEnv)
		assert.InDelta(t, 0.66, cfg.Deliberation.ApprovalThreshold, 1e-9)
		assert.Equal(t, 2, cfg.Deliberation.DissentTolerance)
		assert.Equal(t, 30*time.Second, cfg.Deliberation.PhaseTimeout)
		// Untouched sections keep defaults.
		assert.Equal(t, 9090, cfg.Server.MetricsPort)
	})

	t.Run("invalid yaml errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ROUNDTABLE_LOG_LEVEL", "debug")
	t.Setenv("ROUNDTABLE_LLM_MODEL", "env-model")
	t.Setenv("REDIS_PASSWORD", "redis-secret")
	t.Setenv("API_KEY", "static-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "redis-secret", cfg.Redis.Password)
	assert.Contains(t, cfg.API.APIKeys, "static-key")
}

func TestLLMConfig_APIKeyFromEnv(t *testing.T) {
	t.Setenv("MY_LLM_KEY", "sk-from-env")
	c := LLMConfig{APIKeyEnv: "MY_LLM_KEY"}
	assert.Equal(t, "sk-from-env", c.APIKey())

	c.APIKeyEnv = "UNSET_VAR_FOR_TEST"
	assert.Empty(t, c.APIKey())
}

func TestJWTSecretResolution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  jwt:
    enabled: true
    secret_env: TEST_JWT_SECRET
`), 0o600))

	t.Run("set secret resolves", func(t *testing.T) {
		t.Setenv("TEST_JWT_SECRET", "hmac-secret")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "hmac-secret", cfg.API.JWT.Secret)
	})

	t.Run("unset secret fails validation", func(t *testing.T) {
		os.Unsetenv("TEST_JWT_SECRET")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(*Config) {}, false},
		{"bad http port", func(c *Config) { c.Server.HTTPPort = 0 }, true},
		{"bad metrics port", func(c *Config) { c.Server.MetricsPort = 70000 }, true},
		{"threshold at one", func(c *Config) { c.Deliberation.ApprovalThreshold = 1.0 }, true},
		{"negative threshold", func(c *Config) { c.Deliberation.ApprovalThreshold = -0.1 }, true},
		{"threshold zero ok", func(c *Config) { c.Deliberation.ApprovalThreshold = 0 }, false},
		{"negative tolerance", func(c *Config) { c.Deliberation.DissentTolerance = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
