// Package api is the HTTP client for the IaEco REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"iaeco.app/internal/ids"
	"iaeco.app/internal/obs"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultRateLimit = 10
	defaultRateBurst = 20

	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 1024
)

// Credentials supplies the bearer token for authorized calls and renews it after a
// 401. Refresh implementations must coalesce concurrent calls.
type Credentials interface {
	oauth2.TokenSource
	Refresh(ctx context.Context) error
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: %s %s: HTTP %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("api: %s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Detail)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == code
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Client talks JSON (and multipart for uploads) to the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter

	mu    sync.RWMutex
	creds Credentials
}

// Option configures Client.
type Option func(*Client) error

// WithHTTPClient replaces the transport client (tests use httptest's).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc != nil {
			c.httpClient = hc
		}
		return nil
	}
}

// WithTimeout bounds every request, including reading the response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d > 0 {
			c.timeout = d
		}
		return nil
	}
}

// WithRateLimit caps outbound requests per second. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) error {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return nil
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithCredentials sets the token source at construction time.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) error {
		c.creds = creds
		return nil
	}
}

// New builds a client for baseURL, e.g. "https://api.iaeco.example/api/v1".
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api: base url is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateBurst),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetCredentials installs the token source. The auth service is built on top of the
// client, so it is attached after both exist.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

func (c *Client) credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	// public requests carry no bearer token and are never retried after a refresh.
	public bool
	header http.Header
}

func jsonRequest(method, path string, payload any) (request, error) {
	req := request{method: method, path: path}
	if payload == nil {
		return req, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("api: encode %s %s: %w", method, path, err)
	}
	req.body = body
	req.contentType = "application/json"
	return req, nil
}

// send performs req; an authorized request answered with 401 triggers exactly one
// credential refresh and one retry.
func (c *Client) send(ctx context.Context, req request, out any) error {
	err := c.attempt(ctx, req, out)
	if req.public || !IsStatus(err, http.StatusUnauthorized) {
		return err
	}
	creds := c.credentials()
	if creds == nil {
		return err
	}
	if rerr := creds.Refresh(ctx); rerr != nil {
		return fmt.Errorf("%w (refresh: %v)", err, rerr)
	}
	return c.attempt(ctx, req, out)
}

func (c *Client) attempt(ctx context.Context, req request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", req.method, req.path, err)
	}
	for k, vals := range req.header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, ids.Request())
	if !req.public {
		if creds := c.credentials(); creds != nil {
			if tok, err := creds.Token(); err == nil && tok != nil && tok.AccessToken != "" {
				tok.SetAuthHeader(httpReq)
			}
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		obs.ObserveRequest(req.method, req.path, 0, time.Since(start))
		return fmt.Errorf("api: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()
	obs.ObserveRequest(req.method, req.path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(req, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("api: decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}

func decodeError(req request, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{Method: req.method, Path: req.path, Status: resp.StatusCode}
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Detail != "" {
		se.Detail = payload.Detail
	} else {
		se.Detail = strings.TrimSpace(string(raw))
	}
	return se
}
