package utils

import (
	"testing"
	"time"
)

func TestDaysSince(t *testing.T) {
	now := time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want int
	}{
		{"same day", time.Date(2026, time.March, 10, 1, 0, 0, 0, time.UTC), 0},
		{"late yesterday is one day", time.Date(2026, time.March, 9, 23, 59, 0, 0, time.UTC), 1},
		{"a week ago", time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC), 7},
		{"across month boundary", time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), 10},
		{"future", time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC), -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DaysSince(tt.t.Unix(), now)
			if got != tt.want {
				t.Errorf("DaysSince(%v) = %d, want %d", tt.t, got, tt.want)
			}
		})
	}
}

func TestDaysSinceZeroTimestamp(t *testing.T) {
	if got := DaysSince(0, time.Now()); got != 0 {
		t.Errorf("DaysSince(0) = %d, want 0", got)
	}
}

func TestNextBillingDate(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		day  int
		want time.Time
	}{
		{
			"later this month",
			time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC), 15,
			time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			"already passed this month",
			time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC), 15,
			time.Date(2026, time.April, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			"same day rolls to next month",
			time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), 15,
			time.Date(2026, time.April, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			"day 31 clamps to february",
			time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), 31,
			time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			"day 31 clamps to leap february",
			time.Date(2028, time.February, 1, 0, 0, 0, 0, time.UTC), 31,
			time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			"clamped date passed, next month has the day",
			time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC), 31,
			time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			"december rolls into january",
			time.Date(2026, time.December, 20, 0, 0, 0, 0, time.UTC), 15,
			time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			"day 31 from january lands on jan 31 first",
			time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC), 31,
			time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBillingDate(tt.now, tt.day)
			if !got.Equal(tt.want) {
				t.Errorf("NextBillingDate(%v, %d) = %v, want %v", tt.now, tt.day, got, tt.want)
			}
		})
	}
}

func TestFormatInvoiceDates(t *testing.T) {
	ts := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC).Unix()
	if got := FormatRFC3339(FromUnixSeconds(ts)); got != "2026-03-10T08:00:00Z" {
		t.Errorf("FormatRFC3339 = %q", got)
	}
	if got := FormatRFC3339(time.Time{}); got != "" {
		t.Errorf("FormatRFC3339(zero) = %q, want empty", got)
	}
}
