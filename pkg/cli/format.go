package cli

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration to a short human readable string
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs = secs - float64(mins*60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatScore formats a similarity score with four decimals.
func FormatScore(s float64) string {
	return fmt.Sprintf("%.4f", s)
}
