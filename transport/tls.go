package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSFiles names the PEM files an mTLS listener/dialer needs. Adapted from
// teacher's config.TLSConfig/LoadTLSConfig.
type TLSFiles struct {
	CACert   string
	PeerCert string
	PeerKey  string
}

// LoadTLSConfig builds a *tls.Config requiring mutual authentication from
// the PEM paths in f. A zero-value f (all paths empty) returns (nil, nil),
// meaning the caller should fall back to plain TCP.
func LoadTLSConfig(f TLSFiles) (*tls.Config, error) {
	if f.CACert == "" && f.PeerCert == "" && f.PeerKey == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(f.PeerCert, f.PeerKey)
	if err != nil {
		return nil, fmt.Errorf("load peer cert/key: %w", err)
	}

	caPEM, err := os.ReadFile(f.CACert)
	if err != nil {
		return nil, fmt.Errorf("read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		RootCAs:      caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
