package transport

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"sort"

	utls "github.com/refraction-networking/utls"
)

// TLSConfig selects the ClientHello fingerprint and verification roots for
// TLS-wrapped targets. Certificate verification is always on.
type TLSConfig struct {
	ClientHelloID string
	ServerName    string
	MinVersion    string
	MaxVersion    string
	RootCAs       *x509.CertPool
}

var clientHelloIDs = map[string]utls.ClientHelloID{
	"HelloGolang":            utls.HelloGolang,
	"HelloChrome_Auto":       utls.HelloChrome_Auto,
	"HelloFirefox_Auto":      utls.HelloFirefox_Auto,
	"HelloIOS_Auto":          utls.HelloIOS_Auto,
	"HelloAndroid_11_OkHttp": utls.HelloAndroid_11_OkHttp,
	"HelloEdge_Auto":         utls.HelloEdge_Auto,
	"HelloSafari_Auto":       utls.HelloSafari_Auto,
	"HelloRandomized":        utls.HelloRandomized,
	"HelloRandomizedALPN":    utls.HelloRandomizedALPN,
	"HelloRandomizedNoALPN":  utls.HelloRandomizedNoALPN,
}

var tlsVersions = map[string]uint16{
	"1.0": utls.VersionTLS10,
	"1.1": utls.VersionTLS11,
	"1.2": utls.VersionTLS12,
	"1.3": utls.VersionTLS13,
}

// ClientHello maps a fingerprint name to a uTLS ClientHelloID. An empty
// name selects HelloChrome_Auto.
func ClientHello(name string) (utls.ClientHelloID, error) {
	if name == "" {
		return utls.HelloChrome_Auto, nil
	}
	id, ok := clientHelloIDs[name]
	if !ok {
		return utls.ClientHelloID{}, fmt.Errorf("unknown or unsupported client hello ID: %s", name)
	}
	return id, nil
}

// ClientHelloNames lists the supported fingerprint names, sorted.
func ClientHelloNames() []string {
	names := make([]string, 0, len(clientHelloIDs))
	for n := range clientHelloIDs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TLSVersion maps "1.0" through "1.3" to the protocol constant.
func TLSVersion(name string) (uint16, error) {
	v, ok := tlsVersions[name]
	if !ok {
		return 0, fmt.Errorf("unknown TLS version: %s", name)
	}
	return v, nil
}

// TLSVersionNames lists the supported version names.
func TLSVersionNames() []string {
	names := make([]string, 0, len(tlsVersions))
	for n := range tlsVersions {
		names = append(names, n)
	}
	return names
}

func buildUTLSConfig(cfg *TLSConfig, serverName string) (*utls.Config, error) {
	minVersion := uint16(utls.VersionTLS12)
	if cfg.MinVersion != "" {
		v, err := TLSVersion(cfg.MinVersion)
		if err != nil {
			return nil, err
		}
		minVersion = v
	}
	maxVersion := uint16(utls.VersionTLS13)
	if cfg.MaxVersion != "" {
		v, err := TLSVersion(cfg.MaxVersion)
		if err != nil {
			return nil, err
		}
		maxVersion = v
	}
	return &utls.Config{
		ServerName: serverName,
		MinVersion: minVersion,
		MaxVersion: maxVersion,
		RootCAs:    cfg.RootCAs,
	}, nil
}

func wrapTLS(ctx context.Context, conn net.Conn, cfg *TLSConfig, address string) (net.Conn, error) {
	serverName := cfg.ServerName
	if serverName == "" {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			host = address
		}
		serverName = host
	}

	utlsConfig, err := buildUTLSConfig(cfg, serverName)
	if err != nil {
		return nil, fmt.Errorf("failed to build uTLS config: %w", err)
	}
	helloID, err := ClientHello(cfg.ClientHelloID)
	if err != nil {
		return nil, err
	}

	uconn := utls.UClient(conn, utlsConfig, helloID)
	if err := uconn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return uconn, nil
}
