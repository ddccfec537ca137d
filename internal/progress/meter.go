// Package progress measures upload throughput for logs and the client CLI.
package progress

import (
	"sync"
	"time"
)

// Stats is a point-in-time view of one upload.
type Stats struct {
	BytesDone int64 // includes bytes that were already on the server
	Resumed   int64 // bytes the upload resumed from
	Total     int64
	RateBps   float64
	ETA       time.Duration
	Percent   float64
	Elapsed   time.Duration
}

// Moved returns the bytes that actually crossed the wire in this attempt.
func (s Stats) Moved() int64 {
	return s.BytesDone - s.Resumed
}

// Meter tracks byte progress of one attempt with an EWMA rate.
type Meter struct {
	mu        sync.Mutex
	total     int64
	resumed   int64
	done      int64
	startedAt time.Time
	lastAt    time.Time
	lastDone  int64
	rateBps   float64
	alpha     float64
	now       func() time.Time
}

// NewMeter returns a meter using the wall clock.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter with a custom time source (for tests).
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{alpha: 0.2, now: now}
}

// Start resets the meter for an attempt that begins at offset of total.
// Bytes before offset count toward completion but not toward the rate.
func (m *Meter) Start(total, offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
	m.resumed = offset
	m.done = offset
	m.startedAt = m.now()
	m.lastAt = m.startedAt
	m.lastDone = offset
	m.rateBps = 0
}

// Add records n more bytes.
func (m *Meter) Add(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.done += int64(n)
	deltaTime := now.Sub(m.lastAt).Seconds()
	if deltaTime > 0 {
		inst := float64(m.done-m.lastDone) / deltaTime
		if m.rateBps == 0 {
			m.rateBps = inst
		} else {
			m.rateBps = m.alpha*inst + (1-m.alpha)*m.rateBps
		}
		m.lastAt = now
		m.lastDone = m.done
	}
}

// Snapshot returns current stats.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		BytesDone: m.done,
		Resumed:   m.resumed,
		Total:     m.total,
		RateBps:   m.rateBps,
		Elapsed:   m.now().Sub(m.startedAt),
	}
	if m.total > 0 {
		stats.Percent = float64(m.done) / float64(m.total) * 100
	}
	if m.rateBps > 0 && m.total > m.done {
		remaining := float64(m.total - m.done)
		stats.ETA = time.Duration(remaining / m.rateBps * float64(time.Second))
	}
	return stats
}
