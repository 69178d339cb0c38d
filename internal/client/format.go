package client

import (
	"fmt"
	"time"
)

// FormatDuration renders seconds as "1h 2m 3s", dropping leading zero
// units: 125 → "2m 5s", 42 → "42s".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatClock renders a running timer as HH:MM:SS.
func FormatClock(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatDate renders t in the local zone as day/month/year hour:minute.
func FormatDate(t time.Time) string {
	return t.Local().Format("02/01/2006 15:04")
}
