package quictransport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// ALPNProtocol identifies the upload protocol carried over QUIC.
	ALPNProtocol = "uplink-v1"
)

var serverCert = sync.OnceValues(generateSelfSignedCert)

// ServerConfig returns a TLS configuration for the QUIC server.
// The certificate is self-signed and generated once per process.
func ServerConfig() (*tls.Config, error) {
	cert, err := serverCert()
	if err != nil {
		return nil, fmt.Errorf("generate self-signed certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocol},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientConfig returns a TLS configuration for the QUIC client.
// Uses InsecureSkipVerify to match the self-signed server certificate.
func ClientConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPNProtocol},
		MinVersion:         tls.VersionTLS13,
	}
}

// DefaultServerQUICConfig returns the base server config before window tuning.
func DefaultServerQUICConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:         10 * time.Second,
		MaxIdleTimeout:          60 * time.Second,
		HandshakeIdleTimeout:    10 * time.Second,
		DisablePathMTUDiscovery: true,
	}
}

// DefaultClientQUICConfig returns the base client config before window tuning.
func DefaultClientQUICConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:         10 * time.Second,
		MaxIdleTimeout:          60 * time.Second,
		HandshakeIdleTimeout:    10 * time.Second,
		DisablePathMTUDiscovery: true,
	}
}

func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"uplink"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
	}, nil
}

// logDial wraps quic.DialAddr with the usual start/fail/established log lines.
func logDial(ctx context.Context, addr string, config *quic.Config, logger *slog.Logger) (*quic.Conn, error) {
	logger.Debug("QUIC dial starting", "remote_addr", addr)
	conn, err := quic.DialAddr(ctx, addr, ClientConfig(), config)
	if err != nil {
		logger.Error("QUIC dial failed", "error", err, "remote_addr", addr)
		return nil, err
	}
	logger.Debug("QUIC connection established", "remote_addr", conn.RemoteAddr())
	return conn, nil
}
