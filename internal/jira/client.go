// Package jira is a minimal Jira REST v2 client covering users and work logs.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tiliavir/toggl-jira-sync/internal/apierror"
	"github.com/Tiliavir/toggl-jira-sync/internal/retry"
)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the Jira REST API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	auth       Authenticator
	retry      retry.Config
	logger     zerolog.Logger
}

// NewClient creates a new Jira API client.
func NewClient(baseURL string, auth Authenticator, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
		retry:      retry.DefaultConfig(),
		logger:     logger.With().Str("component", "jira").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// SetRetryConfig replaces the backoff settings for idempotent calls.
func (c *Client) SetRetryConfig(cfg retry.Config) {
	c.retry = cfg
}

// BaseURL returns the base URL of the Jira instance.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do executes an authenticated API request. Responses with status >= 400 are
// returned as *apierror.APIError carrying the raw body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if err := c.auth.Apply(req); err != nil {
		return nil, fmt.Errorf("applying auth: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apierror.New("jira", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return resp, nil
}

// getJSON performs a GET with retries and decodes the response into v.
func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		return decodeResponse(resp, v)
	})
}

// decodeResponse reads and decodes a JSON response.
func decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
