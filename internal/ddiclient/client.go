// SPDX-License-Identifier: LGPL-2.1-only

// Package ddiclient implements the HTTP/JSON transport to a hawkBit DDI
// server: REST request/retry, binary bundle download with resume and
// low-speed abort, and the header/URL conventions hawkbit-client.c wires up
// around libcurl. Styled after pkg/pillar/controllerconn's Client/send
// split, trimmed to what a DDI poll loop actually needs.
package ddiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rauc/rauc-hawkbit-updater/internal/jsonutil"
	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

const userAgent = "rauc-hawkbit-c-agent/1.0"

// maxRetries bounds the number of extra attempts made after an initial
// request answers 409 or 429; retryDelay is the pause between attempts.
const maxRetries = 10

// retryDelay is overridable by tests.
var retryDelay = time.Second

// Options configures a Client. It mirrors the subset of internal/config
// that governs the HTTP transport.
type Options struct {
	Server       string
	TenantID     string
	ControllerID string

	SSL       bool
	SSLVerify bool
	SSLKey    string
	SSLCert   string

	AuthToken    string
	GatewayToken string

	ConnectTimeout time.Duration
	Timeout        time.Duration

	LowSpeedTime time.Duration
	LowSpeedRate int64 // bytes per second

	SendDownloadAuthentication bool
}

// Client issues DDI REST and binary-download requests against a single
// hawkBit controller resource.
type Client struct {
	opts Options
	http *http.Client
	log  *logger.Object
}

// New builds a Client. An error is returned only if SSLKey/SSLCert fail to
// load as an X.509 key pair.
func New(opts Options, log *logger.Object) (*Client, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: !opts.SSLVerify} //nolint:gosec // user-controlled, documented in config

	if opts.SSLKey != "" && opts.SSLCert != "" {
		cert, err := tls.LoadX509KeyPair(opts.SSLCert, opts.SSLKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		opts: opts,
		http: &http.Client{Transport: transport, Timeout: opts.Timeout},
		log:  log,
	}, nil
}

// AuthorizationHeaderValue returns the bearer value this client would send
// on the Authorization header, for collaborators (streaming installs) that
// need to forward it verbatim to a third party.
func (c *Client) AuthorizationHeaderValue() string {
	_, value := c.authHeader()
	return value
}

func (c *Client) authHeader() (string, string) {
	if c.opts.AuthToken != "" {
		return "Authorization", "TargetToken " + c.opts.AuthToken
	}
	if c.opts.GatewayToken != "" {
		return "Authorization", "GatewayToken " + c.opts.GatewayToken
	}
	return "", ""
}

// Get issues a GET to url and decodes the JSON response body into a
// generic tree suitable for jsonutil queries.
func (c *Client) Get(ctx context.Context, url string) (interface{}, error) {
	status, body, err := c.restRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &HTTPStatusError{Method: http.MethodGet, URL: url, Status: status}
	}
	if len(body) == 0 {
		return nil, nil
	}
	return jsonutil.Decode(body)
}

// Put issues a PUT with a JSON body, used for configData.
func (c *Client) Put(ctx context.Context, url string, body []byte) error {
	return c.postOrPut(ctx, http.MethodPut, url, body)
}

// Post issues a POST with a JSON body, used for feedback submissions.
func (c *Client) Post(ctx context.Context, url string, body []byte) error {
	return c.postOrPut(ctx, http.MethodPost, url, body)
}

func (c *Client) postOrPut(ctx context.Context, method, url string, body []byte) error {
	status, _, err := c.restRequest(ctx, method, url, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &HTTPStatusError{Method: method, URL: url, Status: status}
	}
	return nil
}

// restRequest performs a single logical REST call, transparently retrying
// on 409 (Conflict) and 429 (Too Many Requests) up to maxRetries times with
// retryDelay between attempts. Any other status is returned to the caller
// without retry.
func (c *Client) restRequest(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var lastStatus int
	var lastBody []byte

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debugf("retrying %s %s (attempt %d/%d)", method, url, attempt, maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return 0, nil, &TransportError{Op: "retry wait", Err: ctx.Err()}
			}
		}

		status, respBody, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			return 0, nil, err
		}
		if status != http.StatusConflict && status != http.StatusTooManyRequests {
			return status, respBody, nil
		}
		lastStatus, lastBody = status, respBody
	}
	return lastStatus, lastBody, nil
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, &TransportError{Op: "build request", Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json;charset=UTF-8")
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}
	if key, value := c.authHeader(); key != "" {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: fmt.Sprintf("%s %s", method, url), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Op: "read response body", Err: err}
	}
	return resp.StatusCode, respBody, nil
}
