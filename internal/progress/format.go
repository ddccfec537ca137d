package progress

import (
	"fmt"
	"time"
)

// FormatRate renders a byte rate with binary units.
func FormatRate(bps float64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	switch {
	case bps >= g:
		return fmt.Sprintf("%.2f GB/s", bps/float64(g))
	case bps >= m:
		return fmt.Sprintf("%.1f MB/s", bps/float64(m))
	case bps >= k:
		return fmt.Sprintf("%.0f KB/s", bps/float64(k))
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

// FormatETA renders d as hh:mm:ss, or dashes when unknown.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--:--:--"
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// FormatLine renders a one-line progress summary.
func FormatLine(s Stats) string {
	return fmt.Sprintf("%5.1f%% %d/%d bytes %s eta %s",
		s.Percent, s.BytesDone, s.Total, FormatRate(s.RateBps), FormatETA(s.ETA))
}
