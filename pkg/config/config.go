package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth modes.
const (
	AuthModeInsecure = "insecure"
	AuthModeToken    = "token"
	AuthModeService  = "service"
)

// Defaults applied by DefaultConfig.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second
	DefaultMultiplier = 2.0
)

// Config is the full transport configuration.
type Config struct {
	// Target is the address services resolve to unless overridden in
	// ServiceTargets.
	Target         string            `yaml:"target"`
	ServiceTargets map[string]string `yaml:"service_targets"`

	// Timeout is the per-call deadline used when the caller does not
	// set one.
	Timeout time.Duration `yaml:"timeout"`

	TLS       TLSConfig       `yaml:"tls"`
	Auth      AuthConfig      `yaml:"auth"`
	Retry     RetryConfig     `yaml:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
}

// TLSConfig controls server verification.
type TLSConfig struct {
	CAFile     string `yaml:"ca_file"`
	ServerName string `yaml:"server_name"`
}

// AuthConfig selects and configures the credential source.
type AuthConfig struct {
	// Mode is one of insecure, token, or service.
	Mode string `yaml:"mode"`
	// Token is the fixed bearer token for token mode.
	Token string `yaml:"token"`
	// Secret signs self-issued tokens in service mode.
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Subject  string        `yaml:"subject"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// RetryConfig shapes the per-call retry policy.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
}

// BreakerConfig toggles the circuit breaker around outgoing calls.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxFailures      int           `yaml:"max_failures"`
	CoolDown         time.Duration `yaml:"cool_down"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// RateLimitConfig throttles outgoing calls client-side.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// SandboxConfig short-circuits every call with a canned response.
type SandboxConfig struct {
	Enabled bool `yaml:"enabled"`
	// Response is returned by every unary call while sandboxed.
	Response map[string]any `yaml:"response"`
}

// DefaultConfig returns a config with every default applied and auth in
// service-token mode left unconfigured.
func DefaultConfig() *Config {
	return &Config{
		Timeout: DefaultTimeout,
		Auth: AuthConfig{
			Mode: AuthModeInsecure,
		},
		Retry: RetryConfig{
			MaxRetries: DefaultMaxRetries,
			BaseDelay:  DefaultBaseDelay,
			MaxDelay:   DefaultMaxDelay,
			Multiplier: DefaultMultiplier,
		},
	}
}

// Load builds the config from defaults, the file named by
// SWITCHBOARD_CONFIG if set, and per-field environment overrides.
func Load() (*Config, error) {
	if path := os.Getenv("SWITCHBOARD_CONFIG"); path != "" {
		return LoadFromPath(path)
	}

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadFromPath builds the config from defaults, the given YAML file, and
// per-field environment overrides.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWITCHBOARD_TARGET"); v != "" {
		cfg.Target = v
	}
	if v := os.Getenv("SWITCHBOARD_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := os.Getenv("SWITCHBOARD_AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv("SWITCHBOARD_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("SWITCHBOARD_CA_FILE"); v != "" {
		cfg.TLS.CAFile = v
	}
	if v, ok := envBool("SWITCHBOARD_SANDBOX"); ok {
		cfg.Sandbox.Enabled = v
	}
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case AuthModeInsecure:
	case AuthModeToken:
		if c.Auth.Token == "" {
			return fmt.Errorf("auth.token required in %s mode", AuthModeToken)
		}
	case AuthModeService:
		if c.Auth.Secret == "" {
			return fmt.Errorf("auth.secret required in %s mode", AuthModeService)
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (valid: insecure, token, service)", c.Auth.Mode)
	}

	if !c.Sandbox.Enabled && c.Target == "" && len(c.ServiceTargets) == 0 {
		return fmt.Errorf("target required (or per-service targets, or sandbox mode)")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must be >= 0")
	}
	if c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry.max_delay must be >= 0")
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1")
	}

	if c.Breaker.Enabled {
		if c.Breaker.MaxFailures < 0 {
			return fmt.Errorf("breaker.max_failures must be >= 0")
		}
		if c.Breaker.CoolDown < 0 {
			return fmt.Errorf("breaker.cool_down must be >= 0")
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit.rps must be > 0 when rate limiting is enabled")
	}

	return nil
}
