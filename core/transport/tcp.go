package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// TCPConfig contains configuration options for TCP connections.
type TCPConfig struct {
	DialTimeout time.Duration
	KeepAlive   time.Duration
	// SOCKS5Proxy routes connections through a SOCKS5 proxy at host:port.
	SOCKS5Proxy string
	// TLS, when set, wraps every connection in a uTLS client.
	TLS *TLSConfig
}

// TCPDialer dials the target directly or through a SOCKS5 proxy.
type TCPDialer struct {
	dialer    proxy.ContextDialer
	tlsConfig *TLSConfig
}

// NewTCPDialer creates a TCPDialer with the given configuration.
func NewTCPDialer(cfg *TCPConfig) (*TCPDialer, error) {
	base := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	d := &TCPDialer{dialer: base, tlsConfig: cfg.TLS}

	if cfg.SOCKS5Proxy != "" {
		socks, err := proxy.SOCKS5("tcp", cfg.SOCKS5Proxy, nil, base)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", cfg.SOCKS5Proxy, err)
		}
		cd, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", cfg.SOCKS5Proxy)
		}
		d.dialer = cd
	}
	if cfg.TLS != nil {
		if _, err := ClientHello(cfg.TLS.ClientHelloID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// DialContext connects to address. With TLS configured it also completes
// the handshake before returning.
func (d *TCPDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTargetUnavailable, address, err)
	}
	if d.tlsConfig == nil {
		return conn, nil
	}

	tlsConn, err := wrapTLS(ctx, conn, d.tlsConfig, address)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
