package progress

import (
	"strings"
	"testing"
	"time"
)

func TestMeterRateAndETA(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Start(2000, 0)

	now = now.Add(1 * time.Second)
	m.Add(1000)

	stats := m.Snapshot()
	if stats.BytesDone != 1000 {
		t.Fatalf("expected bytes done 1000, got %d", stats.BytesDone)
	}
	if stats.RateBps < 900 || stats.RateBps > 1100 {
		t.Fatalf("expected rate around 1000 B/s, got %.2f", stats.RateBps)
	}
	if stats.ETA < 900*time.Millisecond || stats.ETA > 1100*time.Millisecond {
		t.Fatalf("expected ETA around 1s, got %s", stats.ETA)
	}
}

func TestMeterResumedBytesDoNotInflateRate(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Start(10000, 8000)

	now = now.Add(2 * time.Second)
	m.Add(1000)

	stats := m.Snapshot()
	if stats.BytesDone != 9000 {
		t.Fatalf("expected bytes done 9000, got %d", stats.BytesDone)
	}
	if stats.Moved() != 1000 {
		t.Fatalf("expected 1000 bytes moved, got %d", stats.Moved())
	}
	if stats.RateBps < 450 || stats.RateBps > 550 {
		t.Fatalf("expected rate around 500 B/s, got %.2f", stats.RateBps)
	}
	if stats.Percent < 89.9 || stats.Percent > 90.1 {
		t.Fatalf("expected 90%%, got %.1f", stats.Percent)
	}
}

func TestMeterEWMASmoothing(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Start(10000, 0)

	now = now.Add(1 * time.Second)
	m.Add(1000)

	now = now.Add(1 * time.Second)
	m.Add(3000)

	stats := m.Snapshot()
	if stats.RateBps < 1300 || stats.RateBps > 1500 {
		t.Fatalf("expected smoothed rate around 1400 B/s, got %.2f", stats.RateBps)
	}
}

func TestMeterNilAddIsNoop(t *testing.T) {
	var m *Meter
	m.Add(10)
}

func TestFormatLine(t *testing.T) {
	line := FormatLine(Stats{BytesDone: 512, Total: 1024, Percent: 50, RateBps: 2048})
	if !strings.Contains(line, "50.0%") || !strings.Contains(line, "2 KB/s") {
		t.Fatalf("unexpected line %q", line)
	}
	if FormatETA(0) != "--:--:--" {
		t.Fatalf("expected dashes for unknown ETA")
	}
	if FormatETA(3725*time.Second) != "01:02:05" {
		t.Fatalf("unexpected ETA %q", FormatETA(3725*time.Second))
	}
}
