// Package toggl is a minimal client for the Toggl Track v9 API.
package toggl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tiliavir/toggl-jira-sync/internal/apierror"
	"github.com/Tiliavir/toggl-jira-sync/internal/model"
	"github.com/Tiliavir/toggl-jira-sync/internal/retry"
)

// DefaultBaseURL is the Toggl Track v9 API root.
const DefaultBaseURL = "https://api.track.toggl.com/api/v9"

const projectsPerPage = 200

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an authenticated Toggl API client.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient HTTPClient
	retry      retry.Config
	logger     zerolog.Logger
}

// NewClient creates a Toggl client authenticating with a personal API token.
func NewClient(apiToken string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.DefaultConfig(),
		logger:     logger.With().Str("component", "toggl").Logger(),
	}
}

// SetBaseURL overrides the API root (for testing or proxies).
func (c *Client) SetBaseURL(baseURL string) {
	if baseURL != "" {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
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

// timeEntry is the wire form of a v9 time entry.
type timeEntry struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	ProjectID   *int64    `json:"project_id"`
	Description *string   `json:"description"`
	Start       time.Time `json:"start"`
	Duration    int64     `json:"duration"`
}

type project struct {
	ID          int64  `json:"id"`
	WorkspaceID int64  `json:"workspace_id"`
	Name        string `json:"name"`
}

// TimeEntries fetches the current user's time entries started in [start, end].
// Toggl returns them newest first.
func (c *Client) TimeEntries(ctx context.Context, start, end time.Time) ([]model.TimeEntry, error) {
	q := url.Values{
		"start_date": {start.Format(time.RFC3339)},
		"end_date":   {end.Format(time.RFC3339)},
	}
	var raw []timeEntry
	if err := c.get(ctx, "/me/time_entries?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetching time entries: %w", err)
	}

	entries := make([]model.TimeEntry, 0, len(raw))
	for _, te := range raw {
		entries = append(entries, model.TimeEntry{
			ID:          te.ID,
			WorkspaceID: te.WorkspaceID,
			ProjectID:   te.ProjectID,
			Description: te.Description,
			Start:       te.Start.In(start.Location()),
			Duration:    te.Duration,
		})
	}
	c.logger.Debug().
		Str("start", start.Format(time.RFC3339)).
		Str("end", end.Format(time.RFC3339)).
		Int("count", len(entries)).
		Msg("fetched time entries")
	return entries, nil
}

// Projects fetches all projects of a workspace, following pagination.
func (c *Client) Projects(ctx context.Context, workspaceID int64) ([]model.Project, error) {
	var all []model.Project
	for page := 1; ; page++ {
		path := fmt.Sprintf("/workspaces/%d/projects?per_page=%d&page=%d", workspaceID, projectsPerPage, page)
		var raw []project
		if err := c.get(ctx, path, &raw); err != nil {
			return nil, fmt.Errorf("fetching projects of workspace %d: %w", workspaceID, err)
		}
		for _, p := range raw {
			all = append(all, model.Project{ID: p.ID, WorkspaceID: p.WorkspaceID, Name: p.Name})
		}
		if len(raw) < projectsPerPage {
			break
		}
	}
	c.logger.Debug().Int64("workspace_id", workspaceID).Int("count", len(all)).Msg("fetched projects")
	return all, nil
}

// get performs an authenticated GET with retries and decodes the JSON body into v.
func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.SetBasicAuth(c.apiToken, "api_token")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("toggl API request failed: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return apierror.New("toggl", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("decoding toggl response: %w", err)
		}
		return nil
	})
}
