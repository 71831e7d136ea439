package toggl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/toggl-jira-sync/internal/apierror"
	"github.com/Tiliavir/toggl-jira-sync/internal/retry"
)

func setupTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient("secret-token", zerolog.Nop())
	client.SetBaseURL(server.URL)
	client.SetHTTPClient(server.Client())
	client.SetRetryConfig(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	return client
}

func TestClient_TimeEntries(t *testing.T) {
	client := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/time_entries", r.URL.Path)
		assert.Equal(t, "2026-02-27T00:00:00Z", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2026-02-27T23:59:59Z", r.URL.Query().Get("end_date"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "secret-token", user)
		assert.Equal(t, "api_token", pass)
		fmt.Fprint(w, `[
			{"id": 2, "workspace_id": 10, "project_id": 100, "description": "Review", "start": "2026-02-27T13:00:00Z", "duration": 1800},
			{"id": 1, "workspace_id": 10, "project_id": null, "description": null, "start": "2026-02-27T09:00:00Z", "duration": -1772182800}
		]`)
	})

	start := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	entries, err := client.TimeEntries(context.Background(), start, start.Add(24*time.Hour-time.Second))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(2), entries[0].ID)
	require.NotNil(t, entries[0].ProjectID)
	assert.Equal(t, int64(100), *entries[0].ProjectID)
	require.NotNil(t, entries[0].Description)
	assert.Equal(t, "Review", *entries[0].Description)
	assert.Equal(t, int64(1800), entries[0].Duration)

	assert.Nil(t, entries[1].ProjectID)
	assert.Nil(t, entries[1].Description)
	assert.Less(t, entries[1].Duration, int64(0))
}

func TestClient_TimeEntries_Error(t *testing.T) {
	client := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "Incorrect username and/or password")
	})

	_, err := client.TimeEntries(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierror.ErrAuthFailure)
	assert.Contains(t, err.Error(), "403")
}

func TestClient_TimeEntries_RetriesTransientFailure(t *testing.T) {
	var calls int32
	client := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[]`)
	})

	entries, err := client.TimeEntries(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Projects_Paginates(t *testing.T) {
	client := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workspaces/10/projects", r.URL.Path)
		page := r.URL.Query().Get("page")
		w.Write([]byte("["))
		if page == "1" {
			for i := 0; i < projectsPerPage; i++ {
				if i > 0 {
					w.Write([]byte(","))
				}
				fmt.Fprintf(w, `{"id": %d, "workspace_id": 10, "name": "PROJ-%d"}`, i+1, i+1)
			}
		} else {
			fmt.Fprint(w, `{"id": 9999, "workspace_id": 10, "name": "OPS-1"}`)
		}
		w.Write([]byte("]"))
	})

	projects, err := client.Projects(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, projects, projectsPerPage+1)
	assert.Equal(t, "PROJ-1", projects[0].Name)
	assert.Equal(t, "OPS-1", projects[projectsPerPage].Name)
}
