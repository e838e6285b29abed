package auth

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Bundle combines channel-level transport credentials with per-call
// authorization. It satisfies grpc's credentials.Bundle so one value
// carries both halves to the dialer.
type Bundle struct {
	transport credentials.TransportCredentials
	perRPC    credentials.PerRPCCredentials
}

func (b *Bundle) TransportCredentials() credentials.TransportCredentials {
	return b.transport
}

func (b *Bundle) PerRPCCredentials() credentials.PerRPCCredentials {
	return b.perRPC
}

// NewWithMode is required by credentials.Bundle. Mode switching is not
// supported; the bundle is returned unchanged.
func (b *Bundle) NewWithMode(mode string) (credentials.Bundle, error) {
	return b, nil
}

// DialOptions renders the bundle as dial options for a new connection.
func (b *Bundle) DialOptions() []grpc.DialOption {
	if b.perRPC == nil {
		return []grpc.DialOption{grpc.WithTransportCredentials(b.transport)}
	}
	return []grpc.DialOption{grpc.WithCredentialsBundle(b)}
}
