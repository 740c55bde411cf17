package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNoCertsFound is returned when a PEM bundle holds no certificate.
	ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

	// ErrInvalidPEM is returned when PEM data cannot be decoded.
	ErrInvalidPEM = errors.New("tlsroots: invalid PEM data")
)

// AppendPEM parses every CERTIFICATE block of data into pool.
func AppendPEM(pool *x509.CertPool, data []byte) error {
	var added int
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		pool.AddCert(cert)
		added++
	}
	if added == 0 {
		if len(data) > 0 {
			return ErrInvalidPEM
		}
		return ErrNoCertsFound
	}
	return nil
}

// ClientConfig returns the TLS settings of an admin client. caFile adds
// a CA bundle to the system roots; insecure skips verification.
func ClientConfig(caFile string, insecure bool) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure,
	}
	if caFile == "" {
		return cfg, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: read ca file %s: %w", caFile, err)
	}
	if err := AppendPEM(pool, data); err != nil {
		return nil, fmt.Errorf("%w (%s)", err, caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
