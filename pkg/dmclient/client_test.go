package dmclient

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fleetdm/dmagent/pkg/dmerrors"
	"github.com/fleetdm/dmagent/pkg/dmmessages"
	"github.com/fleetdm/dmagent/pkg/sysinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSystemInfo() sysinfo.Info {
	return sysinfo.Info{
		Hostname:   "test-host",
		OSPlatform: "Windows",
		OSFamily:   "Windows NT",
		Arch:       "x86_64",
		OSVersion:  "10.0.19045.0",
		Major:      10,
		Minor:      0,
	}
}

func newTestClient(t *testing.T, serverURL string, doer Doer) *Client {
	t.Helper()
	c, err := NewClient(Options{
		URL:            serverURL,
		ProductName:    "MyApp",
		ProductVersion: "1.2.3.4",
		Doer:           doer,
		SystemInfo:     testSystemInfo,
	})
	require.NoError(t, err)
	return c
}

func TestRegister(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/management_service", r.URL.Path)
		assert.Equal(t, "GoogleEnrollmentToken token=ET1", r.Header.Get("Authorization"))

		var keys []string
		for _, kv := range strings.Split(r.URL.RawQuery, "&") {
			keys = append(keys, strings.SplitN(kv, "=", 2)[0])
		}
		assert.Equal(t, []string{"request", "apptype", "agent", "platform", "deviceid"}, keys)

		q := r.URL.Query()
		assert.Equal(t, "register_policy_agent", q.Get("request"))
		assert.Equal(t, "Chrome", q.Get("apptype"))
		assert.Equal(t, "MyApp 1.2.3.4()", q.Get("agent"))
		assert.Equal(t, "Windows NT|x86_64|10.0.0", q.Get("platform"))
		assert.Equal(t, "DID1", q.Get("deviceid"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		req, err := dmmessages.ParseRegisterBrowserRequest(body)
		require.NoError(t, err)
		assert.Equal(t, &dmmessages.RegisterBrowserRequest{
			MachineName: "test-host",
			OSPlatform:  "Windows",
			OSVersion:   "10.0.19045.0",
		}, req)

		_, _ = w.Write(dmmessages.MarshalDeviceRegisterResponse("DMT1"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/management_service", nil)
	token, err := c.Register("ET1", "DID1")
	require.NoError(t, err)
	assert.Equal(t, "DMT1", token)
	assert.Equal(t, 1, requests)
}

func TestRegisterUnknownOSVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Windows NT||0.0.0", r.URL.Query().Get("platform"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		req, err := dmmessages.ParseRegisterBrowserRequest(body)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", req.OSVersion)
		_, _ = w.Write(dmmessages.MarshalDeviceRegisterResponse("DMT1"))
	}))
	defer srv.Close()

	c, err := NewClient(Options{
		URL: srv.URL,
		SystemInfo: func() sysinfo.Info {
			return sysinfo.Info{Hostname: "h", OSPlatform: "Windows", OSFamily: "Windows NT"}
		},
	})
	require.NoError(t, err)
	_, err = c.Register("ET1", "DID1")
	require.NoError(t, err)
}

func TestRegisterProtocolErrors(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		body        []byte
		wantStatus  int
		wantMessage string
	}{
		{"server error with message", http.StatusUnauthorized, dmmessages.MarshalErrorResponse("invalid token"), http.StatusUnauthorized, "invalid token"},
		{"server error without message", http.StatusInternalServerError, []byte("<html>oops</html>"), http.StatusInternalServerError, ""},
		{"unparseable 200", http.StatusOK, []byte("<html>oops</html>"), http.StatusOK, ""},
		{"200 without token", http.StatusOK, dmmessages.MarshalErrorResponse("nope"), http.StatusOK, ""},
		{"200 with empty token", http.StatusOK, dmmessages.MarshalDeviceRegisterResponse(""), http.StatusOK, ""},
		{"200 with oversized token", http.StatusOK, dmmessages.MarshalDeviceRegisterResponse(strings.Repeat("t", 4097)), http.StatusOK, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				_, _ = w.Write(c.body)
			}))
			defer srv.Close()

			token, err := newTestClient(t, srv.URL, nil).Register("ET1", "DID1")
			require.Error(t, err)
			assert.Empty(t, token)

			var perr *dmerrors.ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, c.wantStatus, perr.StatusCode)
			assert.Equal(t, c.wantMessage, perr.ServerMessage)
		})
	}
}

func TestRegisterRedirectIsProtocolError(t *testing.T) {
	var followed bool
	mux := http.NewServeMux()
	mux.HandleFunc("/management_service", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/moved", http.StatusFound)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		followed = true
		_, _ = w.Write(dmmessages.MarshalDeviceRegisterResponse("DMT1"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	token, err := newTestClient(t, srv.URL+"/management_service", nil).Register("ET1", "DID1")
	require.Error(t, err)
	assert.Empty(t, token)
	assert.False(t, followed)

	var perr *dmerrors.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusFound, perr.StatusCode)
}

type testDoer struct {
	doFn func(*http.Request) (*http.Response, error)
}

func (d *testDoer) Do(r *http.Request) (*http.Response, error) {
	return d.doFn(r)
}

func TestRegisterLargestToken(t *testing.T) {
	token := strings.Repeat("t", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(dmmessages.MarshalDeviceRegisterResponse(token))
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL, nil).Register("ET1", "DID1")
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestRegisterTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	doer := &testDoer{doFn: func(*http.Request) (*http.Response, error) {
		return nil, cause
	}}

	_, err := newTestClient(t, "https://dm.example.com/management_service", doer).Register("ET1", "DID1")
	require.Error(t, err)
	assert.True(t, dmerrors.IsTransport(err))
	assert.ErrorIs(t, err, cause)
}

func TestRegisterInvalidPayload(t *testing.T) {
	called := false
	doer := &testDoer{doFn: func(*http.Request) (*http.Response, error) {
		called = true
		return nil, errors.New("unexpected")
	}}
	c, err := NewClient(Options{
		URL:  "https://dm.example.com",
		Doer: doer,
		SystemInfo: func() sysinfo.Info {
			return sysinfo.Info{Hostname: "bad\xff"}
		},
	})
	require.NoError(t, err)

	_, err = c.Register("ET1", "DID1")
	require.Error(t, err)
	assert.True(t, dmerrors.IsValidation(err))
	assert.False(t, called)
}

func TestNewClientConfiguration(t *testing.T) {
	for _, u := range []string{"", "://bad", "dm.example.com", "ftp://dm.example.com", "https://"} {
		_, err := NewClient(Options{URL: u})
		require.Error(t, err, u)
		assert.True(t, dmerrors.IsConfiguration(err), u)
	}

	_, err := NewClient(Options{URL: "https://dm.example.com/management_service"})
	require.NoError(t, err)
}

func TestRequestURLKeepsExistingQuery(t *testing.T) {
	c := newTestClient(t, "https://dm.example.com/dm?key=abc", nil)
	got, err := url.Parse(c.requestURL(registerPolicyAgentRequest, "DID1", testSystemInfo()))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.RawQuery, "key=abc&request=register_policy_agent&"))
	assert.Equal(t, "DID1", got.Query().Get("deviceid"))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "MyApp 1.2.3.4()", Agent("MyApp", "1.2.3.4"))
	assert.Equal(t, "Windows NT|x86|6.1.0", Platform(sysinfo.Info{OSFamily: "Windows NT", Arch: "x86", Major: 6, Minor: 1}))
	assert.Equal(t, "GoogleEnrollmentToken token=abc", FormatEnrollmentTokenAuthorizationHeader("abc"))
	assert.Equal(t, "GoogleDMToken token=abc", FormatDMTokenAuthorizationHeader("abc"))
}
