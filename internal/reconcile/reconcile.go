// Package reconcile turns a range of Toggl days into Jira work logs: it
// resolves time entries to issues, merges them per issue and day, tops past
// weekdays up to the required time and writes each work log once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tiliavir/toggl-jira-sync/internal/apierror"
	"github.com/Tiliavir/toggl-jira-sync/internal/metrics"
	"github.com/Tiliavir/toggl-jira-sync/internal/model"
	"github.com/Tiliavir/toggl-jira-sync/internal/timecalc"
)

var (
	// ErrUnknownUser means the configured Jira user does not exist. Nothing
	// is processed.
	ErrUnknownUser = errors.New("unknown jira user")
	// ErrFetchFailed means the time entries of a day could not be fetched and
	// the run stopped at that day.
	ErrFetchFailed = errors.New("fetching time entries failed")
	// ErrLedger means the delivery ledger could not be read or written. The
	// run stops so that nothing is delivered without a working ledger.
	ErrLedger = errors.New("delivery ledger unavailable")
)

// TimeSource is the part of the Toggl client the sync needs.
type TimeSource interface {
	ProjectSource
	TimeEntries(ctx context.Context, start, end time.Time) ([]model.TimeEntry, error)
}

// Options configures a Syncer.
type Options struct {
	// Username is the Jira user the work logs are written as.
	Username    string
	NotifyUsers bool
	Comments    CommentMode
	Fill        FillOptions
	// Location defines calendar days. Nil means time.Local.
	Location *time.Location
	// Now is the clock used to decide whether a day is today. Nil means time.Now.
	Now func() time.Time
}

// Request is a single sync invocation.
type Request struct {
	Start     time.Time
	End       time.Time
	Overwrite bool
	DryRun    bool
}

// DayPlan is the merged work logs of one day, before any filler.
type DayPlan struct {
	Day     time.Time             `json:"day"`
	Fetched int                   `json:"fetched"`
	Skipped int                   `json:"skipped"`
	Entries []*model.WorkLogEntry `json:"entries"`
}

// Summary counts what a run did.
type Summary struct {
	RunID            string
	DryRun           bool
	Days             int
	EmptyDays        int
	RecordsFetched   int
	RecordsSkipped   int
	Entries          int
	FilledSeconds    int64
	Delivered        int
	AlreadyDelivered int
	Rejected         int
	Failed           int
	// Halted is set when a fetch or ledger failure stopped the run at HaltedOn.
	Halted   bool
	HaltedOn time.Time
	Plans    []DayPlan
}

// Syncer drives the day-by-day reconciliation.
type Syncer struct {
	source  TimeSource
	api     WorkLogAPI
	ledger  DeliveryLedger
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New returns a Syncer. A nil m gets a private metrics registry.
func New(source TimeSource, api WorkLogAPI, ledger DeliveryLedger, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Syncer {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Comments == "" {
		opts.Comments = CommentSubstring
	}
	if m == nil {
		m = metrics.New()
	}
	return &Syncer{
		source:  source,
		api:     api,
		ledger:  ledger,
		opts:    opts,
		metrics: m,
		logger:  logger.With().Str("component", "sync").Logger(),
	}
}

// Run synchronises every day from req.Start to req.End inclusive. It returns
// ErrLedger if the delivery ledger cannot be read or written, ErrUnknownUser
// if the Jira user cannot be resolved and ErrFetchFailed if a day could not
// be fetched; in the latter cases the summary covers the days processed
// before. Other failures of single entries or work logs are counted in the
// summary and do not stop the run.
func (s *Syncer) Run(ctx context.Context, req Request) (*Summary, error) {
	start, end, err := s.dayRange(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	sum := &Summary{RunID: uuid.NewString(), DryRun: req.DryRun}
	log := s.logger.With().
		Str("run_id", sum.RunID).
		Bool("dry_run", req.DryRun).
		Logger()
	defer func() { s.metrics.MarkFinished(s.opts.Now()) }()

	if err := s.ledger.Check(ctx); err != nil {
		log.Error().Err(err).Msg("delivery ledger is not readable, nothing is synced")
		return sum, fmt.Errorf("%w: %w", ErrLedger, err)
	}

	userKey, err := s.resolveUser(ctx)
	if err != nil {
		log.Error().Err(err).Str("username", s.opts.Username).Msg("could not resolve jira user")
		return sum, err
	}
	log.Info().
		Str("from", start.Format(timecalc.DateLayout)).
		Str("to", end.Format(timecalc.DateLayout)).
		Str("user_key", userKey).
		Msg("starting sync")

	resolver := NewResolver(s.source, log)
	writer := NewWriter(s.api, s.ledger, s.opts.NotifyUsers, log)

	for day := start; !day.After(end); day = timecalc.NextDay(day) {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		dayLog := log.With().Str("day", day.Format(timecalc.DateLayout)).Logger()

		plan, err := s.planDay(ctx, resolver, dayLog, day)
		if err != nil {
			dayLog.Error().Err(err).Msg("could not fetch time entries, stopping")
			s.metrics.RecordDay("fetch_failed")
			sum.Halted = true
			sum.HaltedOn = day
			return sum, fmt.Errorf("%w for %s: %w", ErrFetchFailed, day.Format(timecalc.DateLayout), err)
		}
		sum.Days++
		sum.RecordsFetched += plan.Fetched
		sum.RecordsSkipped += plan.Skipped
		if plan.Fetched == 0 {
			dayLog.Info().Msg("no time entries found")
			s.metrics.RecordDay("empty")
			sum.EmptyDays++
			continue
		}
		if err := s.logPlan(ctx, dayLog, plan); err != nil {
			return sum, err
		}

		entries := plan.Entries
		if !req.DryRun && ShouldFill(day, s.opts.Now(), s.opts.Fill.Issue) {
			var added int64
			if entries, added, err = s.fill(ctx, dayLog, day, entries); err != nil {
				return sum, err
			}
			sum.FilledSeconds += added
		}
		plan.Entries = entries
		sum.Entries += len(entries)
		sum.Plans = append(sum.Plans, plan)

		if req.DryRun {
			s.metrics.RecordDay("planned")
			continue
		}
		for _, entry := range entries {
			outcome := writer.Write(ctx, entry, userKey, req.Overwrite)
			s.metrics.RecordWorkLog(string(outcome))
			sum.count(outcome)
			if outcome == OutcomeLedgerFailed {
				dayLog.Error().Str("delivery_id", entry.DeliveryID).Msg("delivery ledger failed, stopping")
				sum.Halted = true
				sum.HaltedOn = day
				return sum, fmt.Errorf("%w on %s", ErrLedger, day.Format(timecalc.DateLayout))
			}
		}
		s.metrics.RecordDay("synced")
	}

	done := log.Info().
		Int("days", sum.Days).
		Int("entries", sum.Entries).
		Int("delivered", sum.Delivered).
		Int("already_delivered", sum.AlreadyDelivered).
		Int("rejected", sum.Rejected).
		Int("failed", sum.Failed)
	if req.DryRun {
		done.Msg("Dry run finished, nothing was written to jira")
	} else {
		done.Msg("All done for today, time to go home!")
	}
	return sum, nil
}

// Preview fetches, resolves and merges every day from start to end without
// touching Jira or the ledger. Filler work logs are not added.
func (s *Syncer) Preview(ctx context.Context, start, end time.Time) ([]DayPlan, error) {
	first, last, err := s.dayRange(start, end)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(s.source, s.logger)

	var plans []DayPlan
	for day := first; !day.After(last); day = timecalc.NextDay(day) {
		dayLog := s.logger.With().Str("day", day.Format(timecalc.DateLayout)).Logger()
		plan, err := s.planDay(ctx, resolver, dayLog, day)
		if err != nil {
			return plans, fmt.Errorf("%w for %s: %w", ErrFetchFailed, day.Format(timecalc.DateLayout), err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (s *Syncer) dayRange(start, end time.Time) (time.Time, time.Time, error) {
	first := timecalc.StartOfDay(start.In(s.opts.Location))
	last := timecalc.StartOfDay(end.In(s.opts.Location))
	if last.Before(first) {
		return first, last, fmt.Errorf("end date %s is before start date %s",
			last.Format(timecalc.DateLayout), first.Format(timecalc.DateLayout))
	}
	return first, last, nil
}

func (s *Syncer) resolveUser(ctx context.Context) (string, error) {
	user, err := s.api.User(ctx, s.opts.Username)
	if errors.Is(err, apierror.ErrNotFound) {
		return "", fmt.Errorf("%w %q", ErrUnknownUser, s.opts.Username)
	}
	if err != nil {
		return "", fmt.Errorf("looking up jira user %q: %w", s.opts.Username, err)
	}
	key := user.IdentityKey()
	if key == "" {
		return "", fmt.Errorf("%w %q", ErrUnknownUser, s.opts.Username)
	}
	return key, nil
}

func (s *Syncer) planDay(ctx context.Context, resolver *Resolver, log zerolog.Logger, day time.Time) (DayPlan, error) {
	plan := DayPlan{Day: day}
	records, err := s.source.TimeEntries(ctx, day, timecalc.EndOfDay(day))
	if err != nil {
		return plan, err
	}
	plan.Fetched = len(records)
	if len(records) == 0 {
		return plan, nil
	}
	agg := &Aggregator{
		Resolver: resolver,
		Comments: s.opts.Comments,
		Metrics:  s.metrics,
		Logger:   log,
	}
	plan.Entries, plan.Skipped = agg.Aggregate(ctx, day, records)
	return plan, nil
}

func (s *Syncer) logPlan(ctx context.Context, log zerolog.Logger, plan DayPlan) error {
	log.Info().Int("count", len(plan.Entries)).Msg("found work log entries")
	for _, e := range plan.Entries {
		uploaded, err := s.ledger.IsDelivered(ctx, e.DeliveryID)
		if err != nil {
			log.Error().Err(err).Str("delivery_id", e.DeliveryID).Msg("could not read delivery ledger, stopping")
			return fmt.Errorf("%w: %w", ErrLedger, err)
		}
		log.Info().
			Str("issue", e.IssueKey).
			Float64("hours", timecalc.Hours(e.Seconds)).
			Str("delivery_id", e.DeliveryID).
			Bool("uploaded", uploaded).
			Msg("work log entry")
	}
	return nil
}

// fill tops the day up and returns the seconds that will actually be written.
// Time added to a filler-issue work log that an earlier run already delivered
// never reaches Jira, so it is reported and not counted.
func (s *Syncer) fill(ctx context.Context, log zerolog.Logger, day time.Time, entries []*model.WorkLogEntry) ([]*model.WorkLogEntry, int64, error) {
	entries, added := Fill(entries, day, s.opts.Fill)
	if added == 0 {
		return entries, 0, nil
	}

	for _, e := range entries {
		if e.IssueKey != s.opts.Fill.Issue {
			continue
		}
		delivered, err := s.ledger.IsDelivered(ctx, e.DeliveryID)
		if err != nil {
			return entries, 0, fmt.Errorf("%w: %w", ErrLedger, err)
		}
		if delivered {
			log.Warn().
				Str("issue", e.IssueKey).
				Str("delivery_id", e.DeliveryID).
				Float64("hours", timecalc.Hours(added)).
				Msg("filler time not written, the work log of the filler issue was already delivered")
			return entries, 0, nil
		}
		break
	}

	log.Info().
		Str("issue", s.opts.Fill.Issue).
		Float64("hours", timecalc.Hours(added)).
		Msg("filled up day to required time")
	return entries, added, nil
}

func (sum *Summary) count(o Outcome) {
	switch o {
	case OutcomeDelivered:
		sum.Delivered++
	case OutcomeAlreadyDelivered:
		sum.AlreadyDelivered++
	case OutcomeRejected:
		sum.Rejected++
	case OutcomeFailed, OutcomeLedgerFailed:
		sum.Failed++
	}
}
