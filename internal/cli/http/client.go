package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	operatorHeader = "X-Operator"
	// maxResponseBytes bounds what the repl will print.
	maxResponseBytes = 4 << 20
)

// ResponseInfo is what the repl renders for one call.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Client talks to the evaluator admin API. It is not safe for concurrent
// reconfiguration; the repl owns it.
type Client struct {
	baseURL  string
	http     *http.Client
	operator func() string
	token    string
}

// New creates a client. operator is read on every call so repl "set operator"
// takes effect immediately.
func New(baseURL string, timeout time.Duration, operator func() string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		operator: operator,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SetBaseURL(baseURL string) { c.baseURL = strings.TrimRight(baseURL, "/") }

// SetToken sets the bearer token; admin-only routes reject calls without one.
func (c *Client) SetToken(token string) { c.token = token }

// SetTimeout ignores non-positive values.
func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.http.Timeout = timeout
	}
}

// Do sends one request. Non-2xx statuses are not errors; the evaluator's
// JSON envelope is returned for the caller to render.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (ResponseInfo, error) {
	req, err := c.newRequest(ctx, method, path, headers, body)
	if err != nil {
		return ResponseInfo{}, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	info := ResponseInfo{Duration: time.Since(start)}
	if err != nil {
		return info, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	if info.Body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
		return info, fmt.Errorf("read response body: %w", err)
	}
	return info, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, headers map[string]string, body []byte) (*http.Request, error) {
	var r io.Reader
	if len(body) > 0 {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.operator != nil {
		if op := c.operator(); op != "" {
			req.Header.Set(operatorHeader, op)
		}
	}
	return req, nil
}
