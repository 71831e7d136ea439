package reconcile

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tiliavir/toggl-jira-sync/internal/jira"
	"github.com/Tiliavir/toggl-jira-sync/internal/model"
	"github.com/Tiliavir/toggl-jira-sync/internal/timecalc"
)

// Outcome is the result of writing one work log.
type Outcome string

const (
	OutcomeDelivered        Outcome = "delivered"
	OutcomeAlreadyDelivered Outcome = "already_delivered"
	OutcomeRejected         Outcome = "rejected"
	OutcomeFailed           Outcome = "failed"
	// OutcomeLedgerFailed means the delivery ledger could not be read or
	// written. The sync stops on it.
	OutcomeLedgerFailed Outcome = "ledger_failed"
)

// WorkLogAPI is the part of the Jira client the sync needs.
type WorkLogAPI interface {
	User(ctx context.Context, username string) (*jira.User, error)
	WorkLogs(ctx context.Context, issueKey string) ([]jira.WorkLog, error)
	AddWorkLog(ctx context.Context, issueKey string, in jira.WorkLogInput, notifyUsers bool) (*jira.WorkLogResult, error)
	DeleteWorkLog(ctx context.Context, issueKey, workLogID string) error
}

// DeliveryLedger is the part of storage.Ledger the sync needs.
type DeliveryLedger interface {
	Check(ctx context.Context) error
	IsDelivered(ctx context.Context, id string) (bool, error)
	MarkDelivered(ctx context.Context, id string) error
}

// Writer delivers merged work logs to Jira exactly once per delivery id.
type Writer struct {
	api         WorkLogAPI
	ledger      DeliveryLedger
	notifyUsers bool
	logger      zerolog.Logger
}

// NewWriter returns a Writer.
func NewWriter(api WorkLogAPI, ledger DeliveryLedger, notifyUsers bool, logger zerolog.Logger) *Writer {
	return &Writer{api: api, ledger: ledger, notifyUsers: notifyUsers, logger: logger}
}

// Write delivers entry unless the ledger already has it. Existing work logs
// of userKey on the same issue and day are deleted first when overwrite is
// set; otherwise they are left alone. The delivery id is only recorded after
// Jira accepted the work log, so a rejected or failed entry is retried on the
// next run.
func (w *Writer) Write(ctx context.Context, entry *model.WorkLogEntry, userKey string, overwrite bool) Outcome {
	log := w.logger.With().
		Str("issue", entry.IssueKey).
		Str("day", entry.Day.Format(timecalc.DateLayout)).
		Str("delivery_id", entry.DeliveryID).
		Logger()

	delivered, err := w.ledger.IsDelivered(ctx, entry.DeliveryID)
	if err != nil {
		log.Error().Err(err).Msg("could not read delivery ledger")
		return OutcomeLedgerFailed
	}
	if delivered {
		log.Info().Msg("work log already uploaded, skipping")
		return OutcomeAlreadyDelivered
	}

	result, err := w.push(ctx, log, entry, userKey, overwrite)
	if err != nil {
		log.Error().Err(err).Msg("could not write work log")
		return OutcomeFailed
	}
	if len(result.ErrorMessages) > 0 {
		log.Error().Str("errors", strings.Join(result.ErrorMessages, "; ")).Msg("jira rejected work log")
		return OutcomeRejected
	}

	if err := w.ledger.MarkDelivered(ctx, entry.DeliveryID); err != nil {
		log.Error().Err(err).Msg("work log was added but could not be recorded in the ledger")
		return OutcomeLedgerFailed
	}
	log.Info().
		Float64("hours", timecalc.Hours(entry.Seconds)).
		Msg("added work log entry")
	return OutcomeDelivered
}

func (w *Writer) push(ctx context.Context, log zerolog.Logger, entry *model.WorkLogEntry, userKey string, overwrite bool) (*jira.WorkLogResult, error) {
	existing, err := w.api.WorkLogs(ctx, entry.IssueKey)
	if err != nil {
		return nil, err
	}

	for _, wl := range existing {
		if !wl.Author.Matches(userKey) {
			continue
		}
		if !timecalc.SameDay(wl.Started.In(entry.Day.Location()), entry.Day) {
			continue
		}
		if !overwrite {
			// Keep what is there; the new work log is added next to it.
			break
		}
		if err := w.api.DeleteWorkLog(ctx, entry.IssueKey, wl.ID); err != nil {
			return nil, err
		}
		log.Info().Str("work_log_id", wl.ID).Msg("deleted existing work log")
	}

	return w.api.AddWorkLog(ctx, entry.IssueKey, jira.WorkLogInput{
		TimeSpentSeconds: entry.Seconds,
		Comment:          entry.Comment,
		Started:          jira.Time{Time: entry.SpentOn},
	}, w.notifyUsers)
}
