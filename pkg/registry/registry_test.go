package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/odvcencio/switchboard/pkg/auth"
)

type fakeConn struct {
	target string
	closed atomic.Bool
}

func (c *fakeConn) Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error {
	return nil
}

func (c *fakeConn) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	failures int
	delay    time.Duration
	conns    []*fakeConn
}

func (d *fakeDialer) dial(ctx context.Context, target string, opts ...grpc.DialOption) (grpc.ClientConnInterface, error) {
	d.mu.Lock()
	d.dials++
	fail := d.failures > 0
	if fail {
		d.failures--
	}
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if fail {
		return nil, errors.New("dial refused")
	}

	conn := &fakeConn{target: target}
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func insecureBundle(t *testing.T) *auth.Bundle {
	t.Helper()
	g, err := auth.NewGate(auth.GateConfig{Insecure: true})
	require.NoError(t, err)
	b, err := g.Ensure(context.Background())
	require.NoError(t, err)
	return b
}

func TestRegistry_ResolveCachesPerService(t *testing.T) {
	dialer := &fakeDialer{}
	r := New(Config{Target: "localhost:7443", Dial: dialer.dial})
	bundle := insecureBundle(t)

	first, err := r.Resolve(context.Background(), "widgets.v1.Widgets", bundle)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "widgets.v1.Widgets", bundle)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dialer.count())

	other, err := r.Resolve(context.Background(), "gears.v1.Gears", bundle)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, dialer.count())
}

func TestRegistry_ConcurrentResolveDialsOnce(t *testing.T) {
	dialer := &fakeDialer{delay: 20 * time.Millisecond}
	r := New(Config{Target: "localhost:7443", Dial: dialer.dial})
	bundle := insecureBundle(t)

	var wg sync.WaitGroup
	instances := make([]*Instance, 8)
	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := r.Resolve(context.Background(), "widgets.v1.Widgets", bundle)
			assert.NoError(t, err)
			instances[i] = inst
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, dialer.count(), "overlapping resolves should share one dial")
	for i := 1; i < len(instances); i++ {
		assert.Same(t, instances[0], instances[i])
	}
}

func TestRegistry_TargetOverrides(t *testing.T) {
	dialer := &fakeDialer{}
	r := New(Config{
		Target:    "default:7443",
		Overrides: map[string]string{"gears.v1.Gears": "gears:9000"},
		Dial:      dialer.dial,
	})
	bundle := insecureBundle(t)

	inst, err := r.Resolve(context.Background(), "widgets.v1.Widgets", bundle)
	require.NoError(t, err)
	assert.Equal(t, "default:7443", inst.Target)

	inst, err = r.Resolve(context.Background(), "gears.v1.Gears", bundle)
	require.NoError(t, err)
	assert.Equal(t, "gears:9000", inst.Target)
}

func TestRegistry_NoTargetForService(t *testing.T) {
	r := New(Config{Dial: (&fakeDialer{}).dial})

	_, err := r.Resolve(context.Background(), "widgets.v1.Widgets", insecureBundle(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target")
}

func TestRegistry_DialFailureNotCached(t *testing.T) {
	dialer := &fakeDialer{failures: 1}
	r := New(Config{Target: "localhost:7443", Dial: dialer.dial})
	bundle := insecureBundle(t)

	_, err := r.Resolve(context.Background(), "widgets.v1.Widgets", bundle)
	require.Error(t, err)

	inst, err := r.Resolve(context.Background(), "widgets.v1.Widgets", bundle)
	require.NoError(t, err)
	assert.NotNil(t, inst)
	assert.Equal(t, 2, dialer.count())
}

func TestRegistry_InputValidation(t *testing.T) {
	r := New(Config{Target: "localhost:7443", Dial: (&fakeDialer{}).dial})

	_, err := r.Resolve(context.Background(), "", insecureBundle(t))
	require.Error(t, err)

	_, err = r.Resolve(context.Background(), "widgets.v1.Widgets", nil)
	require.Error(t, err)
}

func TestRegistry_Close(t *testing.T) {
	dialer := &fakeDialer{}
	r := New(Config{Target: "localhost:7443", Dial: dialer.dial})
	bundle := insecureBundle(t)

	_, err := r.Resolve(context.Background(), "widgets.v1.Widgets", bundle)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "gears.v1.Gears", bundle)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	for _, conn := range dialer.conns {
		assert.True(t, conn.closed.Load(), "connection to %s should be closed", conn.target)
	}

	_, err = r.Resolve(context.Background(), "widgets.v1.Widgets", bundle)
	assert.ErrorIs(t, err, ErrClosed)

	// Closing twice is fine
	assert.NoError(t, r.Close())
}

func TestRegistry_CloseDuringDial(t *testing.T) {
	dialStarted := make(chan struct{})
	releaseDial := make(chan struct{})
	conn := &fakeConn{target: "localhost:7443"}
	dial := func(ctx context.Context, target string, opts ...grpc.DialOption) (grpc.ClientConnInterface, error) {
		close(dialStarted)
		<-releaseDial
		return conn, nil
	}
	r := New(Config{Target: "localhost:7443", Dial: dial})
	bundle := insecureBundle(t)

	resolved := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), "widgets.v1.Widgets", bundle)
		resolved <- err
	}()

	<-dialStarted
	require.NoError(t, r.Close())
	close(releaseDial)

	err := <-resolved
	require.ErrorIs(t, err, ErrClosed)
	assert.True(t, conn.closed.Load(), "a conn dialed across Close must still be torn down")
}
