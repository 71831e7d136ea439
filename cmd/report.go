package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/toggl-jira-sync/internal/reconcile"
	"github.com/Tiliavir/toggl-jira-sync/internal/timecalc"
)

var (
	reportFrom   string
	reportTo     string
	reportFormat string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the work logs a sync would write",
	Long: `Report fetches and merges time entries exactly like sync but writes nothing.
Filler time is not included. Defaults to the current week.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "Start date (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "End date (YYYY-MM-DD); defaults to the end of this week")
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md, csv, json")
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	if a.cfg.Toggl.APIToken == "" {
		return withCode(exitConfig, errors.New("toggl.api_token is required (or TJS_TOGGL_API_TOKEN)"))
	}

	now := time.Now().In(a.loc)
	monday, sunday := timecalc.WeekRange(now)
	from, to, err := parseRange("", reportFrom, reportTo, a.loc, monday, timecalc.StartOfDay(sunday))
	if err != nil {
		return withCode(exitConfig, err)
	}

	// Preview reads neither Jira nor the ledger.
	plans, err := a.syncer(nil, nil, nil).Preview(context.Background(), from, to)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), plans, reportFormat)
}

type reportRow struct {
	Day        string  `json:"day"`
	Issue      string  `json:"issue"`
	Hours      float64 `json:"hours"`
	Seconds    int64   `json:"seconds"`
	DeliveryID string  `json:"delivery_id"`
	Comment    string  `json:"comment"`
}

func reportRows(plans []reconcile.DayPlan) []reportRow {
	var rows []reportRow
	for _, p := range plans {
		for _, e := range p.Entries {
			rows = append(rows, reportRow{
				Day:        p.Day.Format(timecalc.DateLayout),
				Issue:      e.IssueKey,
				Hours:      timecalc.Hours(e.Seconds),
				Seconds:    e.Seconds,
				DeliveryID: e.DeliveryID,
				Comment:    e.Comment,
			})
		}
	}
	return rows
}

func writeReport(w io.Writer, plans []reconcile.DayPlan, format string) error {
	rows := reportRows(plans)
	var total int64
	for _, r := range rows {
		total += r.Seconds
	}

	switch format {
	case "csv":
		fmt.Fprintln(w, "day,issue,duration_minutes,delivery_id,comment")
		for _, r := range rows {
			fmt.Fprintf(w, "%s,%s,%d,%s,%s\n",
				r.Day, csvEscape(r.Issue), r.Seconds/60, csvEscape(r.DeliveryID), csvEscape(r.Comment))
		}
	case "json":
		if rows == nil {
			rows = []reportRow{}
		}
		data, err := json.MarshalIndent(struct {
			Entries      []reportRow `json:"entries"`
			TotalSeconds int64       `json:"total_seconds"`
		}{rows, total}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
	case "md", "":
		if len(rows) == 0 {
			fmt.Fprintln(w, "No entries found.")
			return nil
		}
		var currentDay string
		for _, r := range rows {
			if r.Day != currentDay {
				fmt.Fprintln(w, r.Day)
				currentDay = r.Day
			}
			fmt.Fprintf(w, "  %-16s%-10s%s\n", r.Issue, timecalc.FormatDuration(r.Seconds),
				strings.ReplaceAll(r.Comment, "\n", "; "))
		}
		fmt.Fprintln(w, "--------------------------------")
		fmt.Fprintf(w, "  %-16s%s\n", "Total", timecalc.FormatDuration(total))
	default:
		return withCode(exitConfig, fmt.Errorf("unknown format %q, want md, csv or json", format))
	}
	return nil
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
