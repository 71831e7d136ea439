package reconcile

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Tiliavir/toggl-jira-sync/internal/apierror"
	"github.com/Tiliavir/toggl-jira-sync/internal/jira"
	"github.com/Tiliavir/toggl-jira-sync/internal/model"
	"github.com/Tiliavir/toggl-jira-sync/internal/timecalc"
)

const userKey = "JIRAUSER10100"

var errBoom = errors.New("boom")

// fakeSource serves time entries per calendar day and projects per workspace.
type fakeSource struct {
	entries  map[string][]model.TimeEntry
	projects map[int64][]model.Project
	// projectFailures is the number of Projects calls that fail before succeeding.
	projectFailures int
	projectCalls    map[int64]int
	failOn          string
	fetched         []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		entries: map[string][]model.TimeEntry{},
		projects: map[int64][]model.Project{
			1: {
				{ID: 10, WorkspaceID: 1, Name: "OPS-2"},
				{ID: 11, WorkspaceID: 1, Name: "DEV-7"},
				{ID: 12, WorkspaceID: 1, Name: "Internal"},
				{ID: 13, WorkspaceID: 1, Name: "OPS-1"},
			},
		},
		projectCalls: map[int64]int{},
	}
}

func (f *fakeSource) TimeEntries(_ context.Context, start, _ time.Time) ([]model.TimeEntry, error) {
	day := start.Format(timecalc.DateLayout)
	f.fetched = append(f.fetched, day)
	if day == f.failOn {
		return nil, errBoom
	}
	return f.entries[day], nil
}

func (f *fakeSource) Projects(_ context.Context, workspaceID int64) ([]model.Project, error) {
	f.projectCalls[workspaceID]++
	if f.projectFailures > 0 {
		f.projectFailures--
		return nil, errBoom
	}
	return f.projects[workspaceID], nil
}

type addedLog struct {
	issue string
	input jira.WorkLogInput
}

// fakeJira keeps work logs in memory. Added work logs become visible to later
// WorkLogs calls.
type fakeJira struct {
	user    *jira.User
	userErr error
	logs    map[string][]jira.WorkLog
	added   []addedLog
	deleted []string
	reject  []string
	addErr  error
	nextID  int
}

func newFakeJira() *fakeJira {
	return &fakeJira{
		user: &jira.User{Key: userKey, Name: "jdoe"},
		logs: map[string][]jira.WorkLog{},
	}
}

func (f *fakeJira) User(_ context.Context, _ string) (*jira.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.user, nil
}

func (f *fakeJira) WorkLogs(_ context.Context, issueKey string) ([]jira.WorkLog, error) {
	return append([]jira.WorkLog(nil), f.logs[issueKey]...), nil
}

func (f *fakeJira) AddWorkLog(_ context.Context, issueKey string, in jira.WorkLogInput, _ bool) (*jira.WorkLogResult, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	if len(f.reject) > 0 {
		return &jira.WorkLogResult{ErrorMessages: f.reject}, nil
	}
	f.nextID++
	wl := jira.WorkLog{
		ID:               "new-" + strconv.Itoa(f.nextID),
		Author:           jira.Author{Key: userKey},
		Comment:          in.Comment,
		Started:          in.Started,
		TimeSpentSeconds: in.TimeSpentSeconds,
	}
	f.logs[issueKey] = append(f.logs[issueKey], wl)
	f.added = append(f.added, addedLog{issue: issueKey, input: in})
	return &jira.WorkLogResult{WorkLog: &wl}, nil
}

func (f *fakeJira) DeleteWorkLog(_ context.Context, issueKey, id string) error {
	f.deleted = append(f.deleted, id)
	kept := f.logs[issueKey][:0]
	for _, wl := range f.logs[issueKey] {
		if wl.ID != id {
			kept = append(kept, wl)
		}
	}
	f.logs[issueKey] = kept
	return nil
}

func (f *fakeJira) notFound() {
	f.userErr = apierror.New("jira", 404, "user does not exist")
}

type memLedger struct {
	ids     map[string]bool
	checkErr error
	readErr  error
	markErr  error
}

func newMemLedger() *memLedger {
	return &memLedger{ids: map[string]bool{}}
}

func (m *memLedger) Check(_ context.Context) error {
	return m.checkErr
}

func (m *memLedger) IsDelivered(_ context.Context, id string) (bool, error) {
	if m.readErr != nil {
		return false, m.readErr
	}
	return m.ids[id], nil
}

func (m *memLedger) MarkDelivered(_ context.Context, id string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.ids[id] = true
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

// record builds a time entry in workspace 1.
func record(id, projectID int64, desc string, start time.Time, seconds int64) model.TimeEntry {
	return model.TimeEntry{
		ID:          id,
		WorkspaceID: 1,
		ProjectID:   ptr(projectID),
		Description: ptr(desc),
		Start:       start,
		Duration:    seconds,
	}
}

// wednesday is a past weekday relative to now.
var (
	wednesday = time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	now       = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
)

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
