package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type countingProvider struct {
	calls    atomic.Int32
	failures atomic.Int32
	delay    time.Duration
}

func (p *countingProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.failures.Load() > 0 {
		p.failures.Add(-1)
		return nil, errors.New("provider down")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), nil
}

func TestNewGate_InsecureReadyImmediately(t *testing.T) {
	g, err := NewGate(GateConfig{Insecure: true})
	require.NoError(t, err)

	b, err := g.Ensure(context.Background())
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.NotNil(t, b.TransportCredentials())
	assert.Nil(t, b.PerRPCCredentials())
	assert.Len(t, b.DialOptions(), 1)
}

func TestNewGate_RequiresProvider(t *testing.T) {
	_, err := NewGate(GateConfig{})
	require.Error(t, err)
}

func TestGate_EnsureCachesBundle(t *testing.T) {
	provider := &countingProvider{}
	g, err := NewGate(GateConfig{Provider: provider})
	require.NoError(t, err)

	first, err := g.Ensure(context.Background())
	require.NoError(t, err)
	second, err := g.Ensure(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestGate_ConcurrentEnsureAcquiresOnce(t *testing.T) {
	provider := &countingProvider{delay: 20 * time.Millisecond}
	g, err := NewGate(GateConfig{Provider: provider})
	require.NoError(t, err)

	var wg sync.WaitGroup
	bundles := make([]*Bundle, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := g.Ensure(context.Background())
			assert.NoError(t, err)
			bundles[i] = b
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), provider.calls.Load(), "overlapping callers should share one acquisition")
	for i := 1; i < len(bundles); i++ {
		assert.Same(t, bundles[0], bundles[i])
	}
}

func TestGate_FailedAcquisitionIsNotCached(t *testing.T) {
	provider := &countingProvider{}
	provider.failures.Store(1)
	g, err := NewGate(GateConfig{Provider: provider})
	require.NoError(t, err)

	_, err = g.Ensure(context.Background())
	require.Error(t, err)

	b, err := g.Ensure(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.Equal(t, int32(2), provider.calls.Load())
}

func TestGate_SecureBundleCarriesPerRPCCredentials(t *testing.T) {
	g, err := NewGate(GateConfig{Provider: &countingProvider{}, ServerName: "svc.internal"})
	require.NoError(t, err)

	b, err := g.Ensure(context.Background())
	require.NoError(t, err)

	require.NotNil(t, b.PerRPCCredentials())
	assert.True(t, b.PerRPCCredentials().RequireTransportSecurity())
	assert.NotNil(t, b.TransportCredentials())
	assert.Len(t, b.DialOptions(), 1)
}
