package testutils

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"math/big"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/armon/go-socks5"
	"github.com/gocircum/statefuzz/core/packet"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"
)

// TestTimeout is the default timeout for operations in tests.
const TestTimeout = 5 * time.Second

// Commands understood by MockStatusServer besides the login sequence.
const (
	// CmdSilent makes the server swallow the line without replying.
	CmdSilent = "SILENT"
	// CmdCrash makes the server drop the connection without replying.
	CmdCrash = "CRASH"
)

// MockStatusServer is a tiny FTP-like line server with login state. It
// greets with "220", answers USER with "331", PASS after USER with "230"
// and out of order with "503", QUIT with "221" before closing, and anything
// else with "500".
type MockStatusServer struct {
	listener net.Listener
	addr     string
	conns    atomic.Int64
	wg       sync.WaitGroup
}

// NewMockStatusServer starts a plain TCP MockStatusServer.
func NewMockStatusServer() *MockStatusServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	return startStatusServer(listener)
}

// NewMockTLSStatusServer starts a MockStatusServer behind TLS with a
// self-signed certificate for "localhost". The returned pool verifies it.
func NewMockTLSStatusServer() (*MockStatusServer, *x509.CertPool) {
	cert, pool, err := SelfSignedCert("localhost")
	if err != nil {
		panic(err)
	}
	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		panic(err)
	}
	return startStatusServer(listener), pool
}

func startStatusServer(listener net.Listener) *MockStatusServer {
	s := &MockStatusServer{
		listener: listener,
		addr:     listener.Addr().String(),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *MockStatusServer) run() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.conns.Add(1)
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer c.Close()
			serveStatus(c)
		}(conn)
	}
}

func serveStatus(c net.Conn) {
	reply := func(line string) bool {
		_, err := io.WriteString(c, line+"\r\n")
		return err == nil
	}
	if !reply("220 ready") {
		return
	}

	user := false
	r := bufio.NewReader(c)
	for {
		_ = c.SetReadDeadline(time.Now().Add(TestTimeout))
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		verb, _, _ := strings.Cut(strings.TrimSpace(line), " ")
		var ok bool
		switch strings.ToUpper(verb) {
		case "USER":
			user = true
			ok = reply("331 password required")
		case "PASS":
			if user {
				ok = reply("230 logged in")
			} else {
				ok = reply("503 bad sequence of commands")
			}
		case "QUIT":
			reply("221 bye")
			return
		case CmdSilent:
			ok = true
		case CmdCrash:
			return
		default:
			ok = reply("500 unknown command")
		}
		if !ok {
			return
		}
	}
}

// Addr returns the address of the server.
func (s *MockStatusServer) Addr() string {
	return s.addr
}

// Connections returns how many connections were accepted.
func (s *MockStatusServer) Connections() int64 {
	return s.conns.Load()
}

// Close stops the server.
func (s *MockStatusServer) Close() {
	s.listener.Close()
}

// SelfSignedCert creates a certificate for hosts (DNS names or IPs) and a
// pool that trusts it.
func SelfSignedCert(hosts ...string) (tls.Certificate, *x509.CertPool, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"statefuzz test"},
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	leaf, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	certPem := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPem := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	cert, err := tls.X509KeyPair(certPem, keyPem)
	return cert, pool, err
}

// SOCKS5Server is an in-process SOCKS5 proxy.
type SOCKS5Server struct {
	listener net.Listener
	addr     string
}

// NewSOCKS5Server starts a SOCKS5 proxy without authentication.
func NewSOCKS5Server() *SOCKS5Server {
	server, err := socks5.New(&socks5.Config{
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		panic(err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	go func() {
		_ = server.Serve(listener)
	}()
	return &SOCKS5Server{listener: listener, addr: listener.Addr().String()}
}

// Addr returns the proxy address.
func (s *SOCKS5Server) Addr() string {
	return s.addr
}

// Close stops the proxy.
func (s *SOCKS5Server) Close() {
	s.listener.Close()
}

// CheckSOCKS5Proxy connects to a MockStatusServer through a SOCKS5 proxy
// and checks its greeting.
func CheckSOCKS5Proxy(proxyAddr, targetAddr string) error {
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	conn, err := dialer.(proxy.ContextDialer).DialContext(ctx, "tcp", targetAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(TestTimeout))
	greeting, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	if !strings.HasPrefix(greeting, "220") {
		return fmt.Errorf("unexpected greeting: %q", greeting)
	}
	return nil
}

// AssertConnectedToProxy is a helper for integration tests.
func AssertConnectedToProxy(t *testing.T, proxyAddr, targetAddr string) {
	err := CheckSOCKS5Proxy(proxyAddr, targetAddr)
	require.NoError(t, err, "Failed to connect to target through SOCKS5 proxy")
}

// Lines builds a sequence of CRLF-terminated text packets with inferred
// spans.
func Lines(lines ...string) packet.Sequence {
	var seq packet.Sequence
	for _, l := range lines {
		data := []byte(l + "\r\n")
		seq.Append(packet.New(data, packet.InferTextSpans(data)...))
	}
	return seq
}
