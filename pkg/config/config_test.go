package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, AuthModeInsecure, cfg.Auth.Mode)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.Retry.MaxRetries)
	assert.Equal(t, DefaultBaseDelay, cfg.Retry.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, cfg.Retry.MaxDelay)
	assert.Equal(t, DefaultMultiplier, cfg.Retry.Multiplier)
	assert.False(t, cfg.Sandbox.Enabled)
	assert.False(t, cfg.Breaker.Enabled)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
target: rpc.internal:7443
service_targets:
  gears.v1.Gears: gears.internal:9000
timeout: 5s
tls:
  server_name: rpc.internal
auth:
  mode: token
  token: sekrit
retry:
  max_retries: 5
  base_delay: 50ms
breaker:
  enabled: true
  max_failures: 4
rate_limit:
  enabled: true
  rps: 20
  burst: 5
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "rpc.internal:7443", cfg.Target)
	assert.Equal(t, "gears.internal:9000", cfg.ServiceTargets["gears.v1.Gears"])
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "rpc.internal", cfg.TLS.ServerName)
	assert.Equal(t, AuthModeToken, cfg.Auth.Mode)
	assert.Equal(t, "sekrit", cfg.Auth.Token)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.BaseDelay)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, 4, cfg.Breaker.MaxFailures)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 20.0, cfg.RateLimit.RPS)

	// Unset fields keep their defaults
	assert.Equal(t, DefaultMaxDelay, cfg.Retry.MaxDelay)
	assert.Equal(t, DefaultMultiplier, cfg.Retry.Multiplier)
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadFromPath_BadYAML(t *testing.T) {
	path := writeConfig(t, "target: [unclosed")
	_, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SWITCHBOARD_CONFIG", "")
	t.Setenv("SWITCHBOARD_TARGET", "env.internal:7443")
	t.Setenv("SWITCHBOARD_AUTH_MODE", AuthModeToken)
	t.Setenv("SWITCHBOARD_AUTH_TOKEN", "from-env")
	t.Setenv("SWITCHBOARD_SANDBOX", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env.internal:7443", cfg.Target)
	assert.Equal(t, AuthModeToken, cfg.Auth.Mode)
	assert.Equal(t, "from-env", cfg.Auth.Token)
	assert.True(t, cfg.Sandbox.Enabled)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Target = "rpc.internal:7443"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"sandbox without target", func(c *Config) {
			c.Target = ""
			c.Sandbox.Enabled = true
		}, ""},
		{"no target", func(c *Config) { c.Target = "" }, "target required"},
		{"bad auth mode", func(c *Config) { c.Auth.Mode = "mystery" }, "invalid auth mode"},
		{"token mode without token", func(c *Config) { c.Auth.Mode = AuthModeToken }, "auth.token required"},
		{"service mode without secret", func(c *Config) { c.Auth.Mode = AuthModeService }, "auth.secret required"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "max_retries"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"fractional multiplier", func(c *Config) { c.Retry.Multiplier = 0.5 }, "multiplier"},
		{"rate limit without rps", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RPS = 0
		}, "rate_limit.rps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
