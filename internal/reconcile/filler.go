package reconcile

import (
	"time"

	"github.com/Tiliavir/toggl-jira-sync/internal/model"
	"github.com/Tiliavir/toggl-jira-sync/internal/timecalc"
)

// fillSlack is added on top of the deficit so the day ends up just above the
// required time and not at it exactly.
const fillSlack = 60

// FillOptions configures topping a day up to the required time.
type FillOptions struct {
	Issue           string
	Comment         string
	RequiredSeconds int64
}

// FillID is the delivery id of a synthesized filler work log.
func FillID(issue string, day time.Time) string {
	return "fill:" + issue + ":" + day.Format(timecalc.DateLayout)
}

// ShouldFill reports whether day is eligible for filling: a filler issue is
// configured, day is a weekday and day is not today.
func ShouldFill(day, now time.Time, issue string) bool {
	if issue == "" {
		return false
	}
	if timecalc.SameDay(day, now.In(day.Location())) {
		return false
	}
	return timecalc.IsWeekday(day)
}

// Fill tops entries up to opts.RequiredSeconds by extending the work log of
// the filler issue, or appending a new one. It returns the resulting entries
// and the number of seconds added; a day already at or above the required
// time is returned unchanged.
func Fill(entries []*model.WorkLogEntry, day time.Time, opts FillOptions) ([]*model.WorkLogEntry, int64) {
	var total int64
	for _, e := range entries {
		total += e.Seconds
	}
	if total >= opts.RequiredSeconds {
		return entries, 0
	}
	deficit := opts.RequiredSeconds - total + fillSlack

	for _, e := range entries {
		if e.IssueKey == opts.Issue {
			e.Seconds += deficit
			return entries, deficit
		}
	}

	start := timecalc.StartOfDay(day)
	return append(entries, &model.WorkLogEntry{
		DeliveryID: FillID(opts.Issue, start),
		IssueKey:   opts.Issue,
		Comment:    opts.Comment,
		Seconds:    deficit,
		SpentOn:    start,
		Day:        start,
	}), deficit
}
