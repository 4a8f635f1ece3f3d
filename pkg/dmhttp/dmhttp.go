// Package dmhttp builds the HTTP client used to talk to the device
// management server.
package dmhttp

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetdm/dmagent/pkg/certificate"
)

// DefaultTimeout bounds a device management request when no timeout is
// configured.
const DefaultTimeout = 30 * time.Second

type clientOpts struct {
	timeout time.Duration
	tlsConf *tls.Config
}

// ClientOpt configures the client returned by NewClient.
type ClientOpt func(o *clientOpts)

// WithTimeout sets the timeout of a whole request. A request that times out
// surfaces as a transport error like any other.
func WithTimeout(t time.Duration) ClientOpt {
	return func(o *clientOpts) {
		o.timeout = t
	}
}

// WithTLSClientConfig sets the TLS configuration used to reach the server,
// usually built by TLSConfig.
func WithTLSClientConfig(conf *tls.Config) ClientOpt {
	return func(o *clientOpts) {
		o.tlsConf = conf.Clone()
	}
}

// NewClient returns the HTTP client for device management requests.
//
// Redirects are never followed: a registration POST redirected by a proxy
// or a misconfigured server would be replayed as a GET without its payload,
// so the redirect response itself is returned and the caller reports its
// status.
func NewClient(opts ...ClientOpt) *http.Client {
	co := clientOpts{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&co)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if co.tlsConf != nil {
		tr.TLSClientConfig = co.tlsConf
	}
	return &http.Client{
		Timeout:       co.timeout,
		Transport:     tr,
		CheckRedirect: refuseRedirect,
	}
}

func refuseRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// TLSConfig builds the TLS configuration for connecting to the device
// management server. If rootCA is set, it is the path to a PEM bundle that
// replaces the system roots.
func TLSConfig(rootCA string, insecureSkipVerify bool) (*tls.Config, error) {
	if rootCA != "" && insecureSkipVerify {
		return nil, fmt.Errorf("root CA and insecure may not be specified together")
	}

	//nolint:gosec
	conf := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify,
	}
	if rootCA != "" {
		pool, err := certificate.LoadPEM(rootCA)
		if err != nil {
			return nil, fmt.Errorf("load root CA: %w", err)
		}
		conf.RootCAs = pool
	}
	return conf, nil
}
