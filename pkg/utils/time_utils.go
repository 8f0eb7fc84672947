package utils

import "time"

// Ledger timestamps are stored as unix seconds, UTC.
func NowUnixSeconds() int64 { return time.Now().Unix() }

func FromUnixSeconds(t int64) time.Time {
	if t <= 0 {
		return time.Time{}
	}
	return time.Unix(t, 0).UTC()
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysSince returns whole days elapsed from the unix-second timestamp t until
// now, comparing calendar days rather than 24h windows. Zero or negative when
// t is today or in the future.
func DaysSince(t int64, now time.Time) int {
	if t <= 0 {
		return 0
	}
	from := StartOfDay(FromUnixSeconds(t))
	until := StartOfDay(now)
	return int(until.Sub(from).Hours() / 24)
}

// NextBillingDate returns the next occurrence of the given day-of-month after
// now. Days beyond the target month's length clamp to its last day, so a
// billing day of 31 bills on Feb 28/29.
func NextBillingDate(now time.Time, day int) time.Time {
	y, m, _ := now.UTC().Date()
	candidate := clampToMonth(y, m, day)
	if !candidate.After(now) {
		candidate = clampToMonth(y, m+1, day)
	}
	return candidate
}

func clampToMonth(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func FormatRFC3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
