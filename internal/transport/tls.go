// Package transport provides the mutually-authenticated TLS client and
// server used for every strategy<->data-server connection, plus the
// connection registry keyed by ConnectionType (spec §4.C, §6).
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig names the three files a ConnectionType entry in
// server_settings.toml resolves to.
type TLSConfig struct {
	Address     string
	CertPath    string
	KeyPath     string
	CAPath      string
}

// ServerTLSConfig builds a *tls.Config requiring and verifying a client
// certificate signed by CAPath, per spec §6 "mutually-authenticated TLS".
func ServerTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: load server cert: %w", err)
	}
	caPool, err := loadCAPool(cfg.CAPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    caPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLSConfig builds a *tls.Config presenting a client certificate and
// verifying the server against CAPath.
func ClientTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: load client cert: %w", err)
	}
	caPool, err := loadCAPool(cfg.CAPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("transport: read CA bundle %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("transport: no certificates parsed from %s", path)
	}
	return pool, nil
}
