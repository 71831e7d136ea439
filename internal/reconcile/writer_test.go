package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/toggl-jira-sync/internal/jira"
	"github.com/Tiliavir/toggl-jira-sync/internal/model"
)

func opsEntry() *model.WorkLogEntry {
	return &model.WorkLogEntry{
		DeliveryID: "101",
		IssueKey:   "OPS-2",
		Comment:    "deploy",
		Seconds:    5400,
		SpentOn:    at(wednesday, 9, 0),
		Day:        wednesday,
	}
}

// seedExisting puts work logs on OPS-2: two by the user on the same day, one
// by someone else on the same day and one by the user on another day.
func seedExisting(api *fakeJira) {
	mine := jira.Author{Key: userKey}
	api.logs["OPS-2"] = []jira.WorkLog{
		{ID: "1", Author: mine, Started: jira.Time{Time: at(wednesday, 8, 0)}},
		{ID: "2", Author: jira.Author{Key: "someone-else"}, Started: jira.Time{Time: at(wednesday, 8, 0)}},
		{ID: "3", Author: mine, Started: jira.Time{Time: at(wednesday.AddDate(0, 0, -1), 8, 0)}},
		{ID: "4", Author: mine, Started: jira.Time{Time: at(wednesday, 16, 0)}},
	}
}

func TestWriter_Delivers(t *testing.T) {
	api := newFakeJira()
	ledger := newMemLedger()
	w := NewWriter(api, ledger, true, zerolog.Nop())

	outcome := w.Write(context.Background(), opsEntry(), userKey, false)

	assert.Equal(t, OutcomeDelivered, outcome)
	require.Len(t, api.added, 1)
	assert.Equal(t, "OPS-2", api.added[0].issue)
	assert.Equal(t, int64(5400), api.added[0].input.TimeSpentSeconds)
	assert.Equal(t, "deploy", api.added[0].input.Comment)
	assert.True(t, api.added[0].input.Started.Equal(at(wednesday, 9, 0)))
	assert.True(t, ledger.ids["101"])
}

func TestWriter_AlreadyDeliveredMakesNoCalls(t *testing.T) {
	api := newFakeJira()
	seedExisting(api)
	ledger := newMemLedger()
	ledger.ids["101"] = true
	w := NewWriter(api, ledger, true, zerolog.Nop())

	outcome := w.Write(context.Background(), opsEntry(), userKey, true)

	assert.Equal(t, OutcomeAlreadyDelivered, outcome)
	assert.Empty(t, api.added)
	assert.Empty(t, api.deleted)
}

func TestWriter_OverwriteDeletesSameUserSameDay(t *testing.T) {
	api := newFakeJira()
	seedExisting(api)
	w := NewWriter(api, newMemLedger(), true, zerolog.Nop())

	outcome := w.Write(context.Background(), opsEntry(), userKey, true)

	assert.Equal(t, OutcomeDelivered, outcome)
	assert.Equal(t, []string{"1", "4"}, api.deleted)
	assert.Len(t, api.added, 1)
}

func TestWriter_NoOverwriteAddsAlongside(t *testing.T) {
	api := newFakeJira()
	seedExisting(api)
	w := NewWriter(api, newMemLedger(), true, zerolog.Nop())

	outcome := w.Write(context.Background(), opsEntry(), userKey, false)

	assert.Equal(t, OutcomeDelivered, outcome)
	assert.Empty(t, api.deleted)
	assert.Len(t, api.added, 1)
	assert.Len(t, api.logs["OPS-2"], 5)
}

func TestWriter_MatchesDayInEntryLocation(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	day := time.Date(2026, time.March, 4, 0, 0, 0, 0, berlin)

	api := newFakeJira()
	// 23:30 UTC on the 3rd is 00:30 on the 4th in Berlin.
	api.logs["OPS-2"] = []jira.WorkLog{
		{ID: "9", Author: jira.Author{Key: userKey}, Started: jira.Time{Time: time.Date(2026, time.March, 3, 23, 30, 0, 0, time.UTC)}},
	}
	entry := opsEntry()
	entry.Day = day
	entry.SpentOn = time.Date(2026, time.March, 4, 9, 0, 0, 0, berlin)

	outcome := NewWriter(api, newMemLedger(), true, zerolog.Nop()).Write(context.Background(), entry, userKey, true)

	assert.Equal(t, OutcomeDelivered, outcome)
	assert.Equal(t, []string{"9"}, api.deleted)
}

func TestWriter_RejectedIsNotMarked(t *testing.T) {
	api := newFakeJira()
	api.reject = []string{"Issue does not exist or you do not have permission to see it."}
	ledger := newMemLedger()
	w := NewWriter(api, ledger, true, zerolog.Nop())

	outcome := w.Write(context.Background(), opsEntry(), userKey, false)

	assert.Equal(t, OutcomeRejected, outcome)
	assert.False(t, ledger.ids["101"])
}

func TestWriter_TransportFailureIsNotMarked(t *testing.T) {
	api := newFakeJira()
	api.addErr = errBoom
	ledger := newMemLedger()
	w := NewWriter(api, ledger, true, zerolog.Nop())

	outcome := w.Write(context.Background(), opsEntry(), userKey, false)

	assert.Equal(t, OutcomeFailed, outcome)
	assert.False(t, ledger.ids["101"])
}

func TestWriter_LedgerWriteFailure(t *testing.T) {
	api := newFakeJira()
	ledger := newMemLedger()
	ledger.markErr = errBoom
	w := NewWriter(api, ledger, true, zerolog.Nop())

	outcome := w.Write(context.Background(), opsEntry(), userKey, false)

	assert.Equal(t, OutcomeLedgerFailed, outcome)
	assert.Len(t, api.added, 1)
}

func TestWriter_LedgerReadFailureMakesNoCalls(t *testing.T) {
	api := newFakeJira()
	ledger := newMemLedger()
	ledger.readErr = errBoom
	w := NewWriter(api, ledger, true, zerolog.Nop())

	outcome := w.Write(context.Background(), opsEntry(), userKey, false)

	assert.Equal(t, OutcomeLedgerFailed, outcome)
	assert.Empty(t, api.added)
	assert.Empty(t, api.deleted)
}
