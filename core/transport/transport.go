// Package transport connects to the target under test and replays packet
// sequences over the connection.
package transport

import (
	"context"
	"errors"
	"net"
)

// Dialer opens connections to the target.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext implements Dialer.
func (f DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// Middleware wraps a Dialer to add functionality.
type Middleware func(Dialer) Dialer

// Chain creates a single Middleware from a series of middlewares. The first
// middleware is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(base Dialer) Dialer {
		for i := len(middlewares) - 1; i >= 0; i-- {
			base = middlewares[i](base)
		}
		return base
	}
}

var (
	// ErrHandshake wraps TLS handshake failures.
	ErrHandshake = errors.New("handshake failed")
	// ErrTargetUnavailable wraps failures to reach the target at all.
	ErrTargetUnavailable = errors.New("target unavailable")
)
