package printer

import (
	"fmt"
	"time"
)

// TimeAgo renders how long ago t was as a short relative phrase, always in
// UTC, e.g. "5 seconds ago (UTC)" or "3 days ago (UTC)". Timestamps from the
// future render as "in the future (UTC)".
func TimeAgo(t time.Time) string {
	diff := time.Now().UTC().Sub(t.UTC())
	if diff < 0 {
		return "in the future (UTC)"
	}

	switch {
	case diff < time.Minute:
		return timeAgoUnit(int(diff.Seconds()), "second")
	case diff < time.Hour:
		return timeAgoUnit(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return timeAgoUnit(int(diff.Hours()), "hour")
	default:
		return timeAgoUnit(int(diff.Hours()/24), "day")
	}
}

func timeAgoUnit(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago (UTC)", unit)
	}
	return fmt.Sprintf("%d %ss ago (UTC)", n, unit)
}

// FormatTimestamp renders t as "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
