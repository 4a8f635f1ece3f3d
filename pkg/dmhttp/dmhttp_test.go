package dmhttp

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	cases := []struct {
		name    string
		opts    []ClientOpt
		timeout time.Duration
		tls     bool
	}{
		{"default", nil, DefaultTimeout, false},
		{"timeout", []ClientOpt{WithTimeout(time.Second)}, time.Second, false},
		{"tlsconf", []ClientOpt{WithTLSClientConfig(&tls.Config{ServerName: "dm.example.com"})}, DefaultTimeout, true},
		{"all", []ClientOpt{
			WithTLSClientConfig(&tls.Config{ServerName: "dm.example.com"}),
			WithTimeout(time.Second),
		}, time.Second, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cli := NewClient(c.opts...)
			assert.Equal(t, c.timeout, cli.Timeout)
			assert.NotNil(t, cli.CheckRedirect)

			tr, ok := cli.Transport.(*http.Transport)
			require.True(t, ok)
			assert.NotSame(t, http.DefaultTransport, tr)
			if c.tls {
				require.NotNil(t, tr.TLSClientConfig)
				assert.Equal(t, "dm.example.com", tr.TLSClientConfig.ServerName)
			}
		})
	}
}

func TestClientRefusesRedirect(t *testing.T) {
	var redirected bool
	mux := http.NewServeMux()
	mux.HandleFunc("/management_service", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})
	mux.HandleFunc("/elsewhere", func(w http.ResponseWriter, r *http.Request) {
		redirected = true
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := NewClient().Post(srv.URL+"/management_service", "application/x-protobuf", strings.NewReader("payload"))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.False(t, redirected)
}

func TestTLSConfig(t *testing.T) {
	_, err := TLSConfig("ca.pem", true)
	require.Error(t, err)

	conf, err := TLSConfig("", true)
	require.NoError(t, err)
	require.True(t, conf.InsecureSkipVerify)
	require.Nil(t, conf.RootCAs)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0o600))
	_, err = TLSConfig(bad, false)
	require.Error(t, err)

	_, err = TLSConfig(filepath.Join(dir, "missing.pem"), false)
	require.ErrorIs(t, err, os.ErrNotExist)
}
