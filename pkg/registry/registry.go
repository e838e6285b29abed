package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"

	"github.com/odvcencio/switchboard/pkg/auth"
)

// ErrClosed is returned by Resolve after the registry shuts down.
var ErrClosed = errors.New("registry is closed")

// DialFunc opens a connection. The default wraps grpc.NewClient.
type DialFunc func(ctx context.Context, target string, opts ...grpc.DialOption) (grpc.ClientConnInterface, error)

func defaultDial(_ context.Context, target string, opts ...grpc.DialOption) (grpc.ClientConnInterface, error) {
	return grpc.NewClient(target, opts...)
}

// Config configures a Registry.
type Config struct {
	// Target is the address every service resolves to unless overridden.
	Target string
	// Overrides maps service names to their own targets.
	Overrides map[string]string
	// Dial replaces the connection factory. Nil means grpc.NewClient.
	Dial DialFunc
}

// Instance is a resolved service: a live connection bound to the
// service's target.
type Instance struct {
	Service string
	Target  string
	Conn    grpc.ClientConnInterface
}

// Registry caches one connection per logical service name. Concurrent
// first resolves of the same service share a single dial, and a failed
// dial is not cached.
type Registry struct {
	cfg   Config
	dial  DialFunc
	group singleflight.Group

	mu        sync.RWMutex
	instances map[string]*Instance
	closed    bool
}

// New builds an empty registry.
func New(cfg Config) *Registry {
	dial := cfg.Dial
	if dial == nil {
		dial = defaultDial
	}
	return &Registry{
		cfg:       cfg,
		dial:      dial,
		instances: make(map[string]*Instance),
	}
}

// Resolve returns the instance for a service, dialing it on first use
// with the bundle's credentials. Later calls return the same instance,
// so credentials are captured at dial time.
func (r *Registry) Resolve(ctx context.Context, service string, bundle *auth.Bundle) (*Instance, error) {
	if service == "" {
		return nil, errors.New("registry: empty service name")
	}
	if bundle == nil {
		return nil, errors.New("registry: credential bundle required")
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrClosed
	}
	inst := r.instances[service]
	r.mu.RUnlock()
	if inst != nil {
		return inst, nil
	}

	v, err, _ := r.group.Do(service, func() (any, error) {
		r.mu.RLock()
		cached := r.instances[service]
		closed := r.closed
		r.mu.RUnlock()
		if closed {
			return nil, ErrClosed
		}
		if cached != nil {
			return cached, nil
		}

		target, err := r.targetFor(service)
		if err != nil {
			return nil, err
		}

		conn, err := r.dial(ctx, target, bundle.DialOptions()...)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s at %s: %w", service, target, err)
		}

		built := &Instance{Service: service, Target: target, Conn: conn}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			// Close ran while the dial was in flight; the fresh conn
			// must not outlive the registry.
			if closer, ok := conn.(io.Closer); ok {
				_ = closer.Close()
			}
			return nil, ErrClosed
		}
		r.instances[service] = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Instance), nil
}

func (r *Registry) targetFor(service string) (string, error) {
	if t, ok := r.cfg.Overrides[service]; ok && t != "" {
		return t, nil
	}
	if r.cfg.Target == "" {
		return "", fmt.Errorf("no target configured for service %s", service)
	}
	return r.cfg.Target, nil
}

// Close tears down every cached connection. The registry rejects
// resolves afterwards; a dial still in flight is torn down on
// completion instead of stored.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for name, inst := range r.instances {
		if closer, ok := inst.Conn.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	r.instances = nil
	return errors.Join(errs...)
}
