package transport

import "fmt"

// FormatSize renders n bytes as an exact MiB count when possible, otherwise
// with two decimals in the largest fitting binary unit.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0B"
	}
	const (
		kib = 1024
		mib = 1024 * kib
		gib = 1024 * mib
	)
	switch {
	case n >= gib:
		return fmt.Sprintf("%.2fGiB", float64(n)/gib)
	case n >= mib && n%mib == 0:
		return fmt.Sprintf("%dMiB", n/mib)
	case n >= mib:
		return fmt.Sprintf("%.2fMiB", float64(n)/mib)
	case n >= kib && n%kib == 0:
		return fmt.Sprintf("%dKiB", n/kib)
	}
	return fmt.Sprintf("%dB", n)
}
