package reconcile

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tiliavir/toggl-jira-sync/internal/metrics"
	"github.com/Tiliavir/toggl-jira-sync/internal/model"
	"github.com/Tiliavir/toggl-jira-sync/internal/timecalc"
)

// CommentMode controls how comments of merged time entries are combined.
type CommentMode string

const (
	// CommentSubstring drops a comment that already occurs anywhere in the
	// combined comment. "fix" is dropped after "fix login", which is the
	// historic behaviour.
	CommentSubstring CommentMode = "substring"
	// CommentExact drops a comment only if an identical line exists.
	CommentExact CommentMode = "exact"
)

// Aggregator merges one day's time entries into one work log per issue.
type Aggregator struct {
	Resolver *Resolver
	Comments CommentMode
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

type groupKey struct {
	issue string
	day   string
}

// Aggregate resolves entries and merges those of the same issue and day. The
// entries are processed oldest first. Each merged work log keeps the id and
// start of its first contributing entry as delivery id and spent-on time, so
// the delivery id stays stable however the entries are fetched. The result is
// in order of first appearance; skipped is the number of rejected entries.
func (a *Aggregator) Aggregate(ctx context.Context, day time.Time, entries []model.TimeEntry) (merged []*model.WorkLogEntry, skipped int) {
	sorted := append([]model.TimeEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	groups := map[groupKey]*model.WorkLogEntry{}
	for _, te := range sorted {
		issue, reason := a.Resolver.Resolve(ctx, te)
		if reason != "" {
			skipped++
			a.Metrics.RecordRecord(string(reason))
			continue
		}
		a.Metrics.RecordRecord("resolved")

		key := groupKey{issue: issue, day: te.Start.In(day.Location()).Format(timecalc.DateLayout)}
		if existing, ok := groups[key]; ok {
			existing.Seconds += te.Duration
			existing.Comment = a.mergeComment(existing.Comment, *te.Description)
			a.Logger.Info().
				Str("issue", issue).
				Str("day", key.day).
				Float64("hours", timecalc.Hours(te.Duration)).
				Str("delivery_id", existing.DeliveryID).
				Msg("added time spent for issue")
			continue
		}

		wl := &model.WorkLogEntry{
			DeliveryID: strconv.FormatInt(te.ID, 10),
			IssueKey:   issue,
			Comment:    strings.TrimSpace(*te.Description),
			Seconds:    te.Duration,
			SpentOn:    te.Start.In(day.Location()),
			Day:        timecalc.StartOfDay(day),
		}
		groups[key] = wl
		merged = append(merged, wl)
	}
	return merged, skipped
}

func (a *Aggregator) mergeComment(combined, comment string) string {
	comment = strings.TrimSpace(comment)
	switch a.Comments {
	case CommentExact:
		for _, line := range strings.Split(combined, "\n") {
			if line == comment {
				return combined
			}
		}
	default:
		if strings.Contains(combined, comment) {
			return combined
		}
	}
	return combined + "\n" + comment
}
