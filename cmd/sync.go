package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/toggl-jira-sync/internal/metrics"
	"github.com/Tiliavir/toggl-jira-sync/internal/reconcile"
	"github.com/Tiliavir/toggl-jira-sync/internal/timecalc"
)

var (
	syncFrom      string
	syncTo        string
	syncDate      string
	syncOverwrite bool
	syncDryRun    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync Toggl time entries into Jira work logs",
	Long: `Sync reads every day from --from to --to (default: yesterday and today),
merges the day's time entries per issue and writes them as Jira work logs.
Work logs already written by an earlier run are skipped.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncFrom, "from", "", "Start date (YYYY-MM-DD); required when --to is specified")
	syncCmd.Flags().StringVar(&syncTo, "to", "", "End date (YYYY-MM-DD); defaults to today")
	syncCmd.Flags().StringVar(&syncDate, "date", "", "Sync a specific date (YYYY-MM-DD)")
	syncCmd.Flags().BoolVar(&syncOverwrite, "overwrite", false, "Delete your existing Jira work logs of the same day before writing")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Fetch and merge only; write nothing to Jira or the ledger")
}

// parseRange resolves the --date/--from/--to flags to a day range in loc.
// Without any of them the default range is returned.
func parseRange(date, from, to string, loc *time.Location, defFrom, defTo time.Time) (time.Time, time.Time, error) {
	switch {
	case date != "":
		d, err := timecalc.ParseDay(date, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--date: %w", err)
		}
		return d, d, nil

	case from != "" || to != "":
		if from == "" {
			return time.Time{}, time.Time{}, errors.New("--from is required when --to is specified")
		}
		start, err := timecalc.ParseDay(from, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		end := defTo
		if to != "" {
			if end, err = timecalc.ParseDay(to, loc); err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
			}
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s",
				end.Format(timecalc.DateLayout), start.Format(timecalc.DateLayout))
		}
		return start, end, nil

	default:
		return defFrom, defTo, nil
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return withCode(exitConfig, fmt.Errorf("invalid configuration:\n%w", err))
	}

	today := timecalc.StartOfDay(time.Now().In(a.loc))
	yesterday := time.Date(today.Year(), today.Month(), today.Day()-1, 0, 0, 0, 0, a.loc)
	from, to, err := parseRange(syncDate, syncFrom, syncTo, a.loc, yesterday, today)
	if err != nil {
		return withCode(exitConfig, err)
	}

	ledger, err := a.openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := metrics.New()
	summary, runErr := a.syncer(a.jiraClient(), ledger, m).Run(ctx, reconcile.Request{
		Start:     from,
		End:       to,
		Overwrite: syncOverwrite,
		DryRun:    syncDryRun,
	})

	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	if a.cfg.MetricsFile != "" {
		if err := m.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.logger.Warn().Err(err).Msg("could not write metrics file")
		}
	}
	if errors.Is(runErr, reconcile.ErrUnknownUser) {
		return withCode(exitConfig, runErr)
	}
	return runErr
}

func printSummary(w io.Writer, s *reconcile.Summary) {
	dryTag := ""
	if s.DryRun {
		dryTag = " [dry-run]"
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary%s:\n", dryTag)
	fmt.Fprintf(w, "  %d days (%d without entries)\n", s.Days, s.EmptyDays)
	fmt.Fprintf(w, "  %d time entries, %d skipped\n", s.RecordsFetched, s.RecordsSkipped)
	if s.FilledSeconds > 0 {
		fmt.Fprintf(w, "  %s filled up\n", timecalc.FormatDuration(s.FilledSeconds))
	}
	if s.DryRun {
		fmt.Fprintf(w, "  %d work logs planned\n", s.Entries)
	} else {
		fmt.Fprintf(w, "  %d delivered\n", s.Delivered)
		fmt.Fprintf(w, "  %d already delivered\n", s.AlreadyDelivered)
		if s.Rejected > 0 {
			fmt.Fprintf(w, "  %d rejected by jira\n", s.Rejected)
		}
		if s.Failed > 0 {
			fmt.Fprintf(w, "  %d failed\n", s.Failed)
		}
	}
	if s.Halted {
		fmt.Fprintf(w, "  stopped at %s, later days were not synced\n", s.HaltedOn.Format(timecalc.DateLayout))
	}
}
