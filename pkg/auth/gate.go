package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/credentials/oauth"

	"github.com/odvcencio/switchboard/pkg/observability"
)

// GateConfig configures a Gate.
type GateConfig struct {
	// Insecure disables transport security and per-call authorization.
	// The bundle is then built eagerly and Ensure never fails.
	Insecure bool

	// CAFile points at a PEM bundle for verifying the server. Empty
	// means the system roots.
	CAFile string

	// ServerName overrides the name verified against the server
	// certificate.
	ServerName string

	// Provider supplies per-call tokens. Required unless Insecure.
	Provider TokenProvider

	// Logger receives acquisition events. Nil discards them.
	Logger *observability.Logger
}

// Gate acquires the credential bundle on first use and hands the same
// bundle to every caller after that. Concurrent first calls share one
// acquisition; a failed acquisition is not cached, so the next caller
// tries again.
type Gate struct {
	cfg   GateConfig
	log   *observability.Logger
	group singleflight.Group

	mu     sync.RWMutex
	bundle *Bundle
}

// NewGate validates the config and returns a gate. In insecure mode
// the bundle is ready before NewGate returns.
func NewGate(cfg GateConfig) (*Gate, error) {
	g := &Gate{cfg: cfg, log: cfg.Logger}
	if g.log == nil {
		g.log = observability.Nop()
	}
	if cfg.Insecure {
		g.bundle = &Bundle{transport: insecure.NewCredentials()}
		return g, nil
	}
	if cfg.Provider == nil {
		return nil, errors.New("auth: token provider required unless insecure")
	}
	return g, nil
}

// Ensure returns the credential bundle, acquiring it if no prior call
// has. Every caller that overlaps the acquisition gets the same result.
func (g *Gate) Ensure(ctx context.Context) (*Bundle, error) {
	g.mu.RLock()
	b := g.bundle
	g.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	v, err, _ := g.group.Do("bundle", func() (any, error) {
		g.mu.RLock()
		cached := g.bundle
		g.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		built, err := g.build(ctx)
		if err != nil {
			g.log.CredentialsFailed(err)
			observability.CredentialAcquisitions.WithLabelValues("failure").Inc()
			return nil, err
		}
		g.log.CredentialsAcquired()
		observability.CredentialAcquisitions.WithLabelValues("success").Inc()

		g.mu.Lock()
		g.bundle = built
		g.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bundle), nil
}

func (g *Gate) build(ctx context.Context) (*Bundle, error) {
	ts, err := g.cfg.Provider.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire token source: %w", err)
	}

	tc, err := g.transportCredentials()
	if err != nil {
		return nil, err
	}

	return &Bundle{
		transport: tc,
		perRPC:    oauth.TokenSource{TokenSource: ts},
	}, nil
}

func (g *Gate) transportCredentials() (credentials.TransportCredentials, error) {
	if g.cfg.CAFile != "" {
		tc, err := credentials.NewClientTLSFromFile(g.cfg.CAFile, g.cfg.ServerName)
		if err != nil {
			return nil, fmt.Errorf("failed to load CA bundle: %w", err)
		}
		return tc, nil
	}
	return credentials.NewTLS(&tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: g.cfg.ServerName,
	}), nil
}
