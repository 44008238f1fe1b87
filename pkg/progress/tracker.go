// Package progress derives throughput and ETA figures from byte counters
// reported by a running extraction.
package progress

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultWindowSize is the number of samples kept for speed averaging.
	DefaultWindowSize = 10

	bytesPerMB = 1024 * 1024
)

// Stats is the immutable output of one tracker update. Speeds are in MB/s,
// durations in whole seconds, all clamped non-negative.
type Stats struct {
	CurrentSpeedMBps float64 `json:"current_speed_mbps"`
	AverageSpeedMBps float64 `json:"average_speed_mbps"`
	ETASeconds       int64   `json:"eta_seconds"`
	ElapsedSeconds   int64   `json:"elapsed_seconds"`
}

// ETAString renders the ETA the way the progress dialog shows it.
func (s Stats) ETAString() string {
	if s.ETASeconds <= 0 {
		return "0s"
	}
	hours := s.ETASeconds / 3600
	minutes := (s.ETASeconds % 3600) / 60
	seconds := s.ETASeconds % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

type sample struct {
	at    time.Time
	bytes int64
}

// Tracker keeps a sliding window of (instant, cumulative bytes) samples for
// one extraction run. It is reset by Start at the beginning of each run.
type Tracker struct {
	mu         sync.Mutex
	windowSize int
	startAt    time.Time
	samples    []sample
	totalBytes int64
	extracted  int64

	now func() time.Time // swapped out in tests
}

func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Tracker{
		windowSize: windowSize,
		now:        time.Now,
	}
}

// Start resets the sample window and records the start instant.
func (t *Tracker) Start(totalBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startAt = t.now()
	t.totalBytes = totalBytes
	t.extracted = 0
	t.samples = t.samples[:0]
}

// Update appends a sample and recomputes the stats. The instantaneous speed
// uses the two newest samples, the average speed is delta-over-window between
// the oldest and newest retained samples.
func (t *Tracker) Update(extractedBytes int64) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.extracted = extractedBytes
	t.samples = append(t.samples, sample{at: now, bytes: extractedBytes})
	if len(t.samples) > t.windowSize {
		t.samples = t.samples[len(t.samples)-t.windowSize:]
	}

	var stats Stats
	if !t.startAt.IsZero() {
		stats.ElapsedSeconds = int64(now.Sub(t.startAt).Seconds())
	}

	if n := len(t.samples); n >= 2 {
		last, prev := t.samples[n-1], t.samples[n-2]
		if dt := last.at.Sub(prev.at).Seconds(); dt > 0 {
			stats.CurrentSpeedMBps = float64(last.bytes-prev.bytes) / dt / bytesPerMB
		}

		first := t.samples[0]
		if dt := last.at.Sub(first.at).Seconds(); dt > 0 {
			stats.AverageSpeedMBps = float64(last.bytes-first.bytes) / dt / bytesPerMB
		}
	}

	if remaining := t.totalBytes - t.extracted; remaining > 0 && stats.AverageSpeedMBps > 0 {
		stats.ETASeconds = int64(float64(remaining) / (stats.AverageSpeedMBps * bytesPerMB))
	}

	return clamp(stats)
}

// Reset clears all tracker state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startAt = time.Time{}
	t.samples = t.samples[:0]
	t.totalBytes = 0
	t.extracted = 0
}

func clamp(s Stats) Stats {
	if s.CurrentSpeedMBps < 0 {
		s.CurrentSpeedMBps = 0
	}
	if s.AverageSpeedMBps < 0 {
		s.AverageSpeedMBps = 0
	}
	if s.ETASeconds < 0 {
		s.ETASeconds = 0
	}
	if s.ElapsedSeconds < 0 {
		s.ElapsedSeconds = 0
	}
	return s
}
