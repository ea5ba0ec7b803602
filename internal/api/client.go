package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"tutorcast/internal/config"
	"tutorcast/internal/logging"
)

// TokenSource supplies the bearer credential and the one-shot refresh used
// when the backend reports an expired credential. The session manager
// implements it.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) (string, error)
}

// HTTPDoer abstracts the HTTP client used for API calls.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides both the request and streaming HTTP clients.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		c.httpClient = client
		c.streamClient = client
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client talks to the backend HTTP API.
type Client struct {
	base       string
	healthBase string
	tokens     TokenSource

	httpClient HTTPDoer
	// streamClient has no request timeout; downloads and uploads run as
	// long as the transfer needs, bounded only by the caller's context.
	streamClient HTTPDoer
	logger       *slog.Logger
}

// New builds a Client from configuration. tokens may be nil for
// unauthenticated use (the health probe).
func New(cfg *config.Config, tokens TokenSource, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	base := strings.TrimRight(cfg.Server.APIURL, "/")
	timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second

	c := &Client{
		base: base,
		// The health endpoint lives outside the /api prefix.
		healthBase:   strings.TrimSuffix(base, "/api"),
		tokens:       tokens,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do issues a request against the API base. body may be nil; when the
// response is 401 and a token source is present, exactly one refresh is
// attempted followed by exactly one retry. On refresh failure the original
// unauthorized response is surfaced as the error.
func (c *Client) do(ctx context.Context, doer HTTPDoer, method, path string, query url.Values, body []byte, contentType string) (*http.Response, error) {
	send := func(token string) (*http.Response, error) {
		endpoint := c.base + path
		if len(query) > 0 {
			endpoint += "?" + query.Encode()
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", uuid.NewString())
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := doer.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		return resp, nil
	}

	var token string
	if c.tokens != nil {
		token = c.tokens.Token()
	}

	resp, err := send(token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || c.tokens == nil {
		return resp, nil
	}

	// Hold on to the original response text; if refresh fails the caller
	// gets this failure, not the refresh's.
	original, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	newToken, refreshErr := c.tokens.Refresh(ctx)
	if refreshErr != nil {
		c.logger.Debug("credential refresh failed", "error", refreshErr)
		return nil, apiErrorFromBody(http.StatusUnauthorized, original, "unauthorized")
	}

	retry, err := send(newToken)
	if err != nil {
		return nil, err
	}
	return retry, nil
}

// decode runs a request and unmarshals a JSON response into out, turning
// non-success statuses into *APIError with fallback as the default text.
func (c *Client) decode(ctx context.Context, method, path string, query url.Values, body []byte, contentType, fallback string, out any) error {
	resp, err := c.do(ctx, c.httpClient, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp, fallback)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Health probes the backend. The endpoint is unauthenticated and sits
// outside the /api prefix.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthBase+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp, "health check failed")
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &status, nil
}
