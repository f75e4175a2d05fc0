package config

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
)

// TLSConfig builds the client TLS config used for STARTTLS/SMTPS.
// CACert is an optional base64-encoded PEM bundle for self-hosted relays.
func (s SMTPConfig) TLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: s.Host,
		MinVersion: tls.VersionTLS12,
	}

	if strings.TrimSpace(s.CACert) == "" {
		return cfg, nil
	}

	caCertData, err := base64.StdEncoding.DecodeString(s.CACert)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SMTP CA cert: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCertData) {
		return nil, fmt.Errorf("SMTP CA cert contains no PEM certificates")
	}
	cfg.RootCAs = pool

	return cfg, nil
}
