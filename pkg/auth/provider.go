package auth

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TokenProvider hands out the token source that authorizes individual
// calls. Refresh and caching live behind the returned source, not in the
// transport. Implementations must be safe for concurrent use.
type TokenProvider interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// StaticTokenProvider authorizes every call with one fixed bearer token.
type StaticTokenProvider struct {
	Token string
}

func (p StaticTokenProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if p.Token == "" {
		return nil, errors.New("static token is empty")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: p.Token,
		TokenType:   "Bearer",
	}), nil
}

// ServiceTokenProvider mints short-lived HS256 tokens from a shared
// secret. Expired tokens are re-minted transparently by the returned
// source.
type ServiceTokenProvider struct {
	Secret  []byte
	Issuer  string
	Subject string
	// TTL bounds each minted token's lifetime. Defaults to one hour.
	TTL time.Duration
}

func (p *ServiceTokenProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if len(p.Secret) == 0 {
		return nil, errors.New("service token secret is empty")
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return oauth2.ReuseTokenSource(nil, &serviceTokenSource{provider: p, ttl: ttl}), nil
}

type serviceTokenSource struct {
	provider *ServiceTokenProvider
	ttl      time.Duration
}

func (s *serviceTokenSource) Token() (*oauth2.Token, error) {
	now := time.Now()
	expiry := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    s.provider.Issuer,
		Subject:   s.provider.Subject,
		ExpiresAt: jwt.NewNumericDate(expiry),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        tokenID(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.provider.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign service token: %w", err)
	}

	return &oauth2.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}

func tokenID() string {
	b := make([]byte, 16)
	if _, err := cryptorand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
