package transport

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/odvcencio/switchboard/pkg/auth"
	"github.com/odvcencio/switchboard/pkg/config"
	"github.com/odvcencio/switchboard/pkg/observability"
	"github.com/odvcencio/switchboard/pkg/registry"
	"github.com/odvcencio/switchboard/pkg/reliability"
	"github.com/odvcencio/switchboard/pkg/statusmap"
	"github.com/odvcencio/switchboard/pkg/structcodec"
)

// Control fields recognized in request options. Pagination fields steer
// unary calls and the object-mode flag steers streams; each path strips
// only its own controls before encoding the rest onto the wire.
const (
	OptionPageSize   = "pageSize"
	OptionPageToken  = "pageToken"
	OptionObjectMode = "objectMode"
)

// CallSpec names the remote operation.
type CallSpec struct {
	Service string
	Method  string
	// Timeout bounds the whole call, retries included. Zero means the
	// configured default.
	Timeout time.Duration
}

func (s CallSpec) fullMethod() string {
	return "/" + s.Service + "/" + s.Method
}

func (s CallSpec) validate() error {
	if s.Service == "" {
		return fmt.Errorf("call spec: empty service")
	}
	if s.Method == "" {
		return fmt.Errorf("call spec: empty method")
	}
	return nil
}

// Shim is the authenticated transport between native callers and remote
// services: it encodes request options into wire structs, acquires
// credentials lazily, resolves service connections, retries on
// transient transport failures, and normalizes terminal errors.
type Shim struct {
	cfg      *config.Config
	gate     *auth.Gate
	registry *registry.Registry
	policy   reliability.Policy
	breaker  *reliability.Breaker
	limiter  *rate.Limiter
	logger   *observability.Logger

	// sandbox holds the pre-encoded canned response when sandboxed.
	sandbox structcodec.Struct
}

// Option customizes a Shim.
type Option func(*settings)

type settings struct {
	logger   *observability.Logger
	gate     *auth.Gate
	registry *registry.Registry
	dial     registry.DialFunc
	provider auth.TokenProvider
}

// WithLogger replaces the default logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithGate replaces the credential gate built from config.
func WithGate(g *auth.Gate) Option {
	return func(s *settings) { s.gate = g }
}

// WithRegistry replaces the service registry built from config.
func WithRegistry(r *registry.Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithDialFunc injects the connection factory used by the built-in
// registry.
func WithDialFunc(d registry.DialFunc) Option {
	return func(s *settings) { s.dial = d }
}

// WithTokenProvider overrides the token provider derived from the auth
// config. The auth mode still controls transport security.
func WithTokenProvider(p auth.TokenProvider) Option {
	return func(s *settings) { s.provider = p }
}

// New builds a Shim from config. The credential gate, registry, retry
// policy, breaker and limiter are all derived from cfg unless replaced
// through options.
func New(cfg *config.Config, opts ...Option) (*Shim, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var st settings
	for _, opt := range opts {
		opt(&st)
	}

	logger := st.logger
	if logger == nil {
		logger = observability.NewLogger("transport", slog.LevelInfo)
	}

	gate := st.gate
	if gate == nil {
		provider := st.provider
		if provider == nil {
			var err error
			provider, err = providerFromConfig(cfg.Auth)
			if err != nil {
				return nil, err
			}
		}
		var err error
		gate, err = auth.NewGate(auth.GateConfig{
			Insecure:   cfg.Auth.Mode == config.AuthModeInsecure,
			CAFile:     cfg.TLS.CAFile,
			ServerName: cfg.TLS.ServerName,
			Provider:   provider,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
	}

	reg := st.registry
	if reg == nil {
		reg = registry.New(registry.Config{
			Target:    cfg.Target,
			Overrides: cfg.ServiceTargets,
			Dial:      st.dial,
		})
	}

	s := &Shim{
		cfg:      cfg,
		gate:     gate,
		registry: reg,
		logger:   logger,
		policy: reliability.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
			Multiplier: cfg.Retry.Multiplier,
			Retryable:  statusmap.Retryable,
		},
	}

	if cfg.Breaker.Enabled {
		s.breaker = reliability.NewBreaker(reliability.BreakerConfig{
			MaxFailures:      cfg.Breaker.MaxFailures,
			CoolDown:         cfg.Breaker.CoolDown,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			OnStateChange: func(from, to reliability.BreakerState) {
				logger.BreakerStateChange(from.String(), to.String())
				observability.BreakerStateChanges.WithLabelValues(from.String(), to.String()).Inc()
			},
		})
	}

	if cfg.RateLimit.Enabled {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}

	if cfg.Sandbox.Enabled {
		sandbox, err := structcodec.EncodeStruct(cfg.Sandbox.Response, structcodec.EncodeOptions{})
		if err != nil {
			return nil, fmt.Errorf("sandbox response: %w", err)
		}
		s.sandbox = sandbox
	}

	return s, nil
}

func providerFromConfig(a config.AuthConfig) (auth.TokenProvider, error) {
	switch a.Mode {
	case config.AuthModeInsecure:
		return nil, nil
	case config.AuthModeToken:
		return auth.StaticTokenProvider{Token: a.Token}, nil
	case config.AuthModeService:
		return &auth.ServiceTokenProvider{
			Secret:  []byte(a.Secret),
			Issuer:  a.Issuer,
			Subject: a.Subject,
			TTL:     a.TokenTTL,
		}, nil
	}
	return nil, fmt.Errorf("invalid auth mode: %s", a.Mode)
}

// Close tears down every connection the shim dialed.
func (s *Shim) Close() error {
	return s.registry.Close()
}

// stripControlFields copies opts without the given control keys.
func stripControlFields(opts map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(opts))
	for k, v := range opts {
		if slices.Contains(keys, k) {
			continue
		}
		out[k] = v
	}
	return out
}
