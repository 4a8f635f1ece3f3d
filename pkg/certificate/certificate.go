// Package certificate contains functions for handling the TLS certificates of
// the device management server.
package certificate

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
)

// LoadPEM loads certificates from a PEM file and returns a cert pool containing
// the certificates.
func LoadPEM(path string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate file: %w", err)
	}

	if ok := pool.AppendCertsFromPEM(contents); !ok {
		return nil, fmt.Errorf("no valid certificates found in %s", path)
	}

	return pool, nil
}

// ValidateConnectionContext checks that a TLS connection can be established
// to the host of serverURL with a certificate chaining to pool. It does not
// prove the authenticity of the server but reports certificate problems with
// more detail than a failed request would.
func ValidateConnectionContext(ctx context.Context, pool *x509.CertPool, serverURL string) error {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	addr := parsed.Host
	if parsed.Port() == "" {
		addr = net.JoinHostPort(parsed.Hostname(), "443")
	}

	dialer := &tls.Dialer{
		Config: &tls.Config{
			RootCAs:            pool,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec // verified in VerifyConnection
			VerifyConnection: func(state tls.ConnectionState) error {
				if len(state.PeerCertificates) == 0 {
					return errors.New("no peer certificates")
				}

				intermediates := x509.NewCertPool()
				for _, cert := range state.PeerCertificates[1:] {
					intermediates.AddCert(cert)
				}
				if _, err := state.PeerCertificates[0].Verify(x509.VerifyOptions{
					DNSName:       parsed.Hostname(),
					Roots:         pool,
					Intermediates: intermediates,
				}); err != nil {
					return fmt.Errorf("verify certificate: %w", err)
				}
				return nil
			},
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial for validate: %w", err)
	}
	defer conn.Close()

	return nil
}
