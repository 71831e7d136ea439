package timecalc_test

import (
	"testing"
	"time"

	"github.com/Tiliavir/toggl-jira-sync/internal/timecalc"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{45, "45s"},
		{60, "1m"},
		{90, "1m"},
		{3600, "1h 0m"},
		{3661, "1h 1m"},
		{5400, "1h 30m"},
	}
	for _, tt := range tests {
		got := timecalc.FormatDuration(tt.seconds)
		if got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestHours(t *testing.T) {
	tests := []struct {
		seconds int64
		want    float64
	}{
		{0, 0},
		{1800, 0.5},
		{5400, 1.5},
		{17, 0},
		{18, 0.01},
		{59, 0.02},
		{10860, 3.02},
		{28800, 8},
	}
	for _, tt := range tests {
		got := timecalc.Hours(tt.seconds)
		if got != tt.want {
			t.Errorf("Hours(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestWeekRange(t *testing.T) {
	// 2026-02-27 is a Friday (week 9).
	fri := time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC)
	monday, sunday := timecalc.WeekRange(fri)

	wantMonday := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)
	wantSunday := time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)

	if !monday.Equal(wantMonday) {
		t.Errorf("WeekRange monday = %v, want %v", monday, wantMonday)
	}
	if !sunday.Equal(wantSunday) {
		t.Errorf("WeekRange sunday = %v, want %v", sunday, wantSunday)
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC)
	b := time.Date(2026, 2, 27, 23, 59, 59, 0, time.UTC)
	c := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	if !timecalc.SameDay(a, b) {
		t.Error("SameDay: expected same day for a and b")
	}
	if timecalc.SameDay(a, c) {
		t.Error("SameDay: expected different day for a and c")
	}
}

func TestNextDayAcrossDST(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Clocks go forward on 2026-03-29; the day is only 23h long.
	d := time.Date(2026, 3, 29, 0, 0, 0, 0, berlin)
	next := timecalc.NextDay(d)
	want := time.Date(2026, 3, 30, 0, 0, 0, 0, berlin)
	if !next.Equal(want) {
		t.Errorf("NextDay = %v, want %v", next, want)
	}
}

func TestIsWeekday(t *testing.T) {
	fri := time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC)
	sat := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)
	sun := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !timecalc.IsWeekday(fri) {
		t.Error("IsWeekday(friday) = false, want true")
	}
	if timecalc.IsWeekday(sat) || timecalc.IsWeekday(sun) {
		t.Error("IsWeekday(weekend) = true, want false")
	}
}

func TestParseDay(t *testing.T) {
	d, err := timecalc.ParseDay("2026-02-27", time.UTC)
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	if !d.Equal(time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseDay = %v", d)
	}
	if _, err := timecalc.ParseDay("27.02.2026", time.UTC); err == nil {
		t.Error("ParseDay: expected error for wrong layout")
	}
}
