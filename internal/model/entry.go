package model

import "time"

// TimeEntry is a single Toggl time entry as fetched for one day.
type TimeEntry struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	ProjectID   *int64    `json:"project_id"`
	Description *string   `json:"description"`
	Start       time.Time `json:"start"`
	// Duration is in seconds. Toggl reports a negative value while the timer runs.
	Duration int64 `json:"duration"`
}

// Project is a Toggl project. Its name carries the Jira issue key.
type Project struct {
	ID          int64  `json:"id"`
	WorkspaceID int64  `json:"workspace_id"`
	Name        string `json:"name"`
}

// WorkLogEntry is one Jira work log to deliver: all of a day's time entries
// for one issue, merged.
type WorkLogEntry struct {
	// DeliveryID is the idempotency key recorded in the delivery ledger.
	DeliveryID string `json:"delivery_id"`
	IssueKey   string `json:"issue_key"`
	Comment    string `json:"comment"`
	Seconds    int64  `json:"seconds"`
	// SpentOn is the start of the first contributing time entry.
	SpentOn time.Time `json:"spent_on"`
	// Day is midnight of the calendar day the work applies to.
	Day time.Time `json:"day"`
}
