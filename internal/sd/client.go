// Package sd is a small client for the Junos Space Security Director REST API.
//
// Only the address-management calls needed to maintain an address group are
// covered: login/logout, address lookup by filter, address creation, and
// group read/update with edit-version locking.
package sd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	loginPath     = "/api/space/user-management/login"
	logoutPath    = "/api/space/user-management/logout"
	addressesPath = "/api/juniper/sd/address-management/addresses"

	userRefMediaType     = "application/vnd.net.juniper.space.user-management.user-ref+json;version=1"
	addressRefsMediaType = "application/vnd.juniper.sd.address-management.address-refs+json;version=1;q=0.01"
	addressMediaType     = "application/vnd.juniper.sd.address-management.address+json;version=1;q=0.01"
	addressContentType   = "application/vnd.juniper.sd.address-management.address+json;version=1;charset=UTF-8"

	maxErrorBody = 4096
)

// HTTPClient allows injecting a custom transport in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client holds the connection settings for one Space/Security Director
// instance. Requests that need authentication go through a Session.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewHTTPClient returns an *http.Client for the appliance. Space ships with a
// self-signed certificate, so certificate verification is usually disabled.
func NewHTTPClient(insecureSkipVerify bool, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecureSkipVerify}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// NewClient creates a client for the API rooted at baseURL, e.g.
// "https://space.example.net".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call describes one API request.
type call struct {
	op      string
	method  string
	path    string
	query   url.Values
	accept  string
	content string
	body    interface{}

	// failure is the sentinel a non-2xx status unwraps to.
	failure error
	// conflicts marks calls where 409/412 means a stale edit-version.
	conflicts bool
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", cl.op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", cl.op, err)
	}
	if cl.accept != "" {
		req.Header.Set("Accept", cl.accept)
	}
	if cl.content != "" {
		req.Header.Set("Content-Type", cl.content)
	}
	return req, nil
}

// send executes req and decodes a 2xx JSON body into out when out is not nil.
func (c *Client) send(req *http.Request, cl call, out interface{}) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", cl.op, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Security Director request",
		"op", cl.op,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Op:         cl.op,
			Method:     req.Method,
			URL:        req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			kind:       cl.failure,
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			apiErr.kind = ErrAuth
		case cl.conflicts && (resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed):
			apiErr.kind = ErrConflict
		}
		return resp, apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("%s: failed to decode response: %w", cl.op, err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp, nil
}
