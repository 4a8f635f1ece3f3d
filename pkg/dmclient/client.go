// Package dmclient registers the machine with the device management server,
// exchanging an enrollment token for a device management token.
package dmclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fleetdm/dmagent/pkg/constant"
	"github.com/fleetdm/dmagent/pkg/dmerrors"
	"github.com/fleetdm/dmagent/pkg/dmhttp"
	"github.com/fleetdm/dmagent/pkg/dmmessages"
	"github.com/fleetdm/dmagent/pkg/sysinfo"
	"github.com/rs/zerolog/log"
)

const (
	registerPolicyAgentRequest = "register_policy_agent"
	appType                    = "Chrome"

	// maxResponseSize bounds the body read from the server.
	maxResponseSize = 1 << 20
)

// Doer sends an HTTP request. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configure a Client.
type Options struct {
	// URL is the device management server endpoint. Required.
	URL string
	// ProductName and ProductVersion form the agent query parameter.
	ProductName    string
	ProductVersion string
	// Doer defaults to an HTTP client built by dmhttp.NewClient.
	Doer Doer
	// SystemInfo defaults to sysinfo.Collect.
	SystemInfo func() sysinfo.Info
}

// Client talks to the device management server.
type Client struct {
	url        *url.URL
	agent      string
	doer       Doer
	systemInfo func() sysinfo.Info
}

// NewClient returns a Client for the server at opts.URL.
func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, &dmerrors.ConfigurationError{Op: "create dm client", Err: errors.New("no device management url")}
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, &dmerrors.ConfigurationError{Op: "create dm client", Err: fmt.Errorf("parse device management url: %w", err)}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &dmerrors.ConfigurationError{Op: "create dm client", Err: fmt.Errorf("invalid device management url %q", opts.URL)}
	}

	c := &Client{
		url:        u,
		agent:      Agent(opts.ProductName, opts.ProductVersion),
		doer:       opts.Doer,
		systemInfo: opts.SystemInfo,
	}
	if c.doer == nil {
		c.doer = dmhttp.NewClient()
	}
	if c.systemInfo == nil {
		c.systemInfo = sysinfo.Collect
	}
	return c, nil
}

// Register sends a registration request authorized by enrollmentToken for
// the device deviceID and returns the device management token issued by the
// server. Nothing is retried.
func (c *Client) Register(enrollmentToken, deviceID string) (string, error) {
	const op = "register"

	info := c.systemInfo()
	osVersion := info.OSVersion
	if osVersion == "" {
		osVersion = constant.UnknownOSVersion
	}
	payload, err := dmmessages.SerializeRegisterBrowserRequest(info.Hostname, info.OSPlatform, osVersion)
	if err != nil {
		return "", &dmerrors.ValidationError{Op: op, Err: err}
	}

	body, err := c.post(op, c.requestURL(registerPolicyAgentRequest, deviceID, info), FormatEnrollmentTokenAuthorizationHeader(enrollmentToken), payload)
	if err != nil {
		return "", err
	}

	dmToken, err := dmmessages.ParseDeviceRegisterResponse(body)
	if err != nil {
		return "", &dmerrors.ProtocolError{Op: op, StatusCode: http.StatusOK, Err: err}
	}
	if dmToken == "" {
		return "", &dmerrors.ProtocolError{Op: op, StatusCode: http.StatusOK, Err: errors.New("empty device management token")}
	}
	if len(dmToken) > constant.MaxDMTokenLength {
		return "", &dmerrors.ProtocolError{
			Op:         op,
			StatusCode: http.StatusOK,
			Err:        fmt.Errorf("device management token of %d bytes exceeds %d", len(dmToken), constant.MaxDMTokenLength),
		}
	}
	return dmToken, nil
}

// post sends payload and returns the body of a 200 response.
func (c *Client) post(op, reqURL, authorization string, payload []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &dmerrors.ConfigurationError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &dmerrors.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &dmerrors.TransportError{Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		perr := &dmerrors.ProtocolError{Op: op, StatusCode: resp.StatusCode}
		if msg, err := dmmessages.ParseDeviceManagementResponseError(body); err == nil {
			perr.ServerMessage = msg
		}
		log.Debug().Int("status_code", resp.StatusCode).Str("server_message", perr.ServerMessage).Msg("device management request failed")
		return nil, perr
	}
	return body, nil
}

// requestURL appends the query parameters of a device management request to
// the server URL, in the order the server expects.
func (c *Client) requestURL(request, deviceID string, info sysinfo.Info) string {
	params := [][2]string{
		{"request", request},
		{"apptype", appType},
		{"agent", c.agent},
		{"platform", Platform(info)},
		{"deviceid", deviceID},
	}

	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p[0]))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p[1]))
	}

	u := *c.url
	if u.RawQuery != "" {
		u.RawQuery += "&" + sb.String()
	} else {
		u.RawQuery = sb.String()
	}
	return u.String()
}

// Agent returns the agent query parameter value.
func Agent(productName, productVersion string) string {
	return fmt.Sprintf("%s %s()", productName, productVersion)
}

// Platform returns the platform query parameter value, e.g.
// "Windows NT|x86_64|10.0.0".
func Platform(info sysinfo.Info) string {
	return fmt.Sprintf("%s|%s|%d.%d.0", info.OSFamily, info.Arch, info.Major, info.Minor)
}

// FormatEnrollmentTokenAuthorizationHeader returns the Authorization header
// value of a registration request.
func FormatEnrollmentTokenAuthorizationHeader(token string) string {
	return "GoogleEnrollmentToken token=" + token
}

// FormatDMTokenAuthorizationHeader returns the Authorization header value of
// requests sent once the device is registered.
func FormatDMTokenAuthorizationHeader(token string) string {
	return "GoogleDMToken token=" + token
}
