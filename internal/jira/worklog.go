package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/Tiliavir/toggl-jira-sync/internal/apierror"
	"github.com/Tiliavir/toggl-jira-sync/internal/retry"
)

// TimeLayout is the timestamp format Jira uses for work log "started" values.
const TimeLayout = "2006-01-02T15:04:05.000-0700"

// Time is a timestamp in Jira's work log format.
type Time struct {
	time.Time
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(TimeLayout))
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{TimeLayout, time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("cannot parse jira time %q", s)
}

// Author identifies the user a work log belongs to.
type Author struct {
	Key         string `json:"key,omitempty"`
	AccountID   string `json:"accountId,omitempty"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Matches reports whether the author is the user with the given identity key.
func (a Author) Matches(identityKey string) bool {
	if identityKey == "" {
		return false
	}
	return a.Key == identityKey || a.AccountID == identityKey
}

// WorkLog is an existing work log on an issue.
type WorkLog struct {
	ID               string `json:"id"`
	Author           Author `json:"author"`
	Comment          string `json:"comment,omitempty"`
	Started          Time   `json:"started"`
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
}

// WorkLogInput is the payload for creating a work log.
type WorkLogInput struct {
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
	Comment          string `json:"comment"`
	Started          Time   `json:"started"`
}

// WorkLogResult is the outcome of a create call. ErrorMessages is non-empty
// when Jira rejected the work log for an application-level reason.
type WorkLogResult struct {
	WorkLog       *WorkLog
	ErrorMessages []string
}

type workLogPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	WorkLogs   []WorkLog `json:"worklogs"`
}

// errorResponse is Jira's error body: {"errorMessages": [...], "errors": {...}}.
type errorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

func (e errorResponse) messages() []string {
	msgs := append([]string(nil), e.ErrorMessages...)
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		msgs = append(msgs, field+": "+e.Errors[field])
	}
	return msgs
}

// WorkLogs returns all work logs of an issue, following pagination.
func (c *Client) WorkLogs(ctx context.Context, issueKey string) ([]WorkLog, error) {
	var all []WorkLog
	for {
		path := fmt.Sprintf("/rest/api/2/issue/%s/worklog?startAt=%d", url.PathEscape(issueKey), len(all))
		var page workLogPage
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("fetching work logs of %s: %w", issueKey, err)
		}
		all = append(all, page.WorkLogs...)
		if len(page.WorkLogs) == 0 || len(all) >= page.Total {
			break
		}
	}
	return all, nil
}

// AddWorkLog creates a work log on an issue. Creation is never retried: a
// lost response would otherwise produce a duplicate.
func (c *Client) AddWorkLog(ctx context.Context, issueKey string, in WorkLogInput, notifyUsers bool) (*WorkLogResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding work log: %w", err)
	}

	path := fmt.Sprintf("/rest/api/2/issue/%s/worklog?adjustEstimate=auto&notifyUsers=%s",
		url.PathEscape(issueKey), strconv.FormatBool(notifyUsers))
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			var er errorResponse
			if jsonErr := json.Unmarshal([]byte(apiErr.Message), &er); jsonErr == nil {
				if msgs := er.messages(); len(msgs) > 0 {
					return &WorkLogResult{ErrorMessages: msgs}, nil
				}
			}
		}
		return nil, fmt.Errorf("adding work log to %s: %w", issueKey, err)
	}

	var wl WorkLog
	if err := decodeResponse(resp, &wl); err != nil {
		return nil, fmt.Errorf("adding work log to %s: %w", issueKey, err)
	}
	c.logger.Debug().Str("issue", issueKey).Str("worklog_id", wl.ID).Msg("work log created")
	return &WorkLogResult{WorkLog: &wl}, nil
}

// DeleteWorkLog removes a work log from an issue.
func (c *Client) DeleteWorkLog(ctx context.Context, issueKey, workLogID string) error {
	path := fmt.Sprintf("/rest/api/2/issue/%s/worklog/%s?adjustEstimate=auto",
		url.PathEscape(issueKey), url.PathEscape(workLogID))
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodDelete, path, nil)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting work log %s of %s: %w", workLogID, issueKey, err)
	}
	c.logger.Debug().Str("issue", issueKey).Str("worklog_id", workLogID).Msg("work log deleted")
	return nil
}
