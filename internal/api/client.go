// Package api is the HTTP client for the ShifaLink booking REST API. It owns
// bearer-token injection and the single-flight refresh that replays requests
// rejected with 401.
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
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/shifalink/portal-client/internal/observability/metrics"
	"github.com/shifalink/portal-client/internal/session"
	"github.com/shifalink/portal-client/pkg/logging"
)

// TokenSource provides the current session and accepts rotated tokens. The
// session store satisfies this.
type TokenSource interface {
	Current() session.Session
	SetToken(token string)
	Clear()
}

// Error is a non-2xx API response, carrying validation errors when the server
// returned them.
type Error struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// IsStatus reports whether err is an API error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is an HTTP client for the booking API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	tokens     TokenSource
	metrics    *metrics.RealtimeMetrics
	refresh    singleflight.Group
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records token refresh outcomes.
func WithMetrics(m *metrics.RealtimeMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a booking API client. baseURL is the API root, e.g.
// "https://api.shifalink.example/api".
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.Default(),
		tokens: tokens,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get/post/put/patch mirror the verbs the API uses. out may be nil when the
// response body is irrelevant.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.invoke(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, ct, err := encodeJSON(body)
	if err != nil {
		return err
	}
	return c.invoke(ctx, http.MethodPost, path, payload, ct, out)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	payload, ct, err := encodeJSON(body)
	if err != nil {
		return err
	}
	return c.invoke(ctx, http.MethodPut, path, payload, ct, out)
}

func (c *Client) patch(ctx context.Context, path string, body, out any) error {
	payload, ct, err := encodeJSON(body)
	if err != nil {
		return err
	}
	return c.invoke(ctx, http.MethodPatch, path, payload, ct, out)
}

func encodeJSON(body any) ([]byte, string, error) {
	if body == nil {
		return nil, "", nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("api: marshal request: %w", err)
	}
	return payload, "application/json", nil
}

// invoke performs the request and, on a 401 from an authenticated endpoint,
// refreshes the token once and replays. Concurrent 401s share one refresh.
func (c *Client) invoke(ctx context.Context, method, path string, payload []byte, contentType string, out any) error {
	err := c.send(ctx, method, path, payload, contentType, out, c.tokens.Current().Token)
	if err == nil {
		return nil
	}
	if !IsStatus(err, http.StatusUnauthorized) || isAuthPath(path) {
		return err
	}

	token, refreshErr := c.refreshToken(ctx)
	if refreshErr != nil {
		c.logger.Warn("api: token refresh failed, clearing session", "error", refreshErr)
		c.tokens.Clear()
		return err
	}
	return c.send(ctx, method, path, payload, contentType, out, token)
}

// isAuthPath marks endpoints that must never trigger a refresh loop.
func isAuthPath(path string) bool {
	switch path {
	case "/login", "/register", "/refresh":
		return true
	}
	return false
}

func (c *Client) refreshToken(ctx context.Context) (string, error) {
	v, err, _ := c.refresh.Do("refresh", func() (any, error) {
		var res AuthResponse
		if err := c.send(ctx, http.MethodPost, "/refresh", nil, "", &res, c.tokens.Current().Token); err != nil {
			return nil, err
		}
		if res.AccessToken == "" {
			return nil, fmt.Errorf("api: refresh returned empty token")
		}
		c.tokens.SetToken(res.AccessToken)
		c.logger.Debug("api: token refreshed")
		return res.AccessToken, nil
	})
	if err != nil {
		c.metrics.ObserveTokenRefresh("failed")
		return "", err
	}
	c.metrics.ObserveTokenRefresh("ok")
	return v.(string), nil
}

// send performs one HTTP round trip with the given bearer token.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, contentType string, out any, token string) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// sendMultipart posts a prebuilt multipart body, with the same 401 handling
// as invoke.
func (c *Client) sendMultipart(ctx context.Context, path string, payload []byte, contentType string, out any) error {
	return c.invoke(ctx, http.MethodPost, path, payload, contentType, out)
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	var parsed struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &parsed); err == nil {
		apiErr.Message = parsed.Message
		apiErr.Fields = parsed.Errors
	}
	return apiErr
}
