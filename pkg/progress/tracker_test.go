package progress

import (
	"math"
	"testing"
	"time"
)

// fakeClock hands out a controllable instant so speed math is deterministic.
type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestTracker(windowSize int) (*Tracker, *fakeClock) {
	clock := &fakeClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(windowSize)
	tr.now = clock.now
	return tr, clock
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTrackerSteadySpeed(t *testing.T) {
	tr, clock := newTestTracker(0)
	tr.Start(100 * bytesPerMB)

	// 10 MB per second, sampled once a second
	var stats Stats
	for i := int64(1); i <= 2; i++ {
		clock.advance(time.Second)
		stats = tr.Update(i * 10 * bytesPerMB)
	}

	if !almostEqual(stats.CurrentSpeedMBps, 10) {
		t.Errorf("CurrentSpeedMBps = %v, want 10", stats.CurrentSpeedMBps)
	}
	if !almostEqual(stats.AverageSpeedMBps, 10) {
		t.Errorf("AverageSpeedMBps = %v, want 10", stats.AverageSpeedMBps)
	}
	// 80 MB left at 10 MB/s
	if stats.ETASeconds != 8 {
		t.Errorf("ETASeconds = %d, want 8", stats.ETASeconds)
	}
	if stats.ElapsedSeconds != 2 {
		t.Errorf("ElapsedSeconds = %d, want 2", stats.ElapsedSeconds)
	}
}

func TestTrackerSingleSampleHasNoSpeed(t *testing.T) {
	tr, clock := newTestTracker(0)
	tr.Start(100 * bytesPerMB)

	clock.advance(time.Second)
	stats := tr.Update(10 * bytesPerMB)

	if stats.CurrentSpeedMBps != 0 || stats.AverageSpeedMBps != 0 {
		t.Errorf("speeds with one sample = (%v, %v), want (0, 0)",
			stats.CurrentSpeedMBps, stats.AverageSpeedMBps)
	}
	if stats.ETASeconds != 0 {
		t.Errorf("ETASeconds = %d, want 0 without an average speed", stats.ETASeconds)
	}
}

func TestTrackerWindowEviction(t *testing.T) {
	tr, clock := newTestTracker(3)
	tr.Start(1000 * bytesPerMB)

	// slow phase, then a fast phase long enough to push the slow samples out
	clock.advance(time.Second)
	tr.Update(1 * bytesPerMB)
	var stats Stats
	for i := int64(1); i <= 3; i++ {
		clock.advance(time.Second)
		stats = tr.Update((1 + i*50) * bytesPerMB)
	}

	if len(tr.samples) != 3 {
		t.Fatalf("retained %d samples, want window of 3", len(tr.samples))
	}
	// the slow first sample is gone, so the average reflects only the fast phase
	if !almostEqual(stats.AverageSpeedMBps, 50) {
		t.Errorf("AverageSpeedMBps = %v, want 50 after eviction", stats.AverageSpeedMBps)
	}
}

func TestTrackerInstantVersusAverage(t *testing.T) {
	tr, clock := newTestTracker(0)
	tr.Start(1000 * bytesPerMB)

	clock.advance(time.Second)
	tr.Update(10 * bytesPerMB)
	clock.advance(time.Second)
	tr.Update(20 * bytesPerMB)
	clock.advance(time.Second)
	stats := tr.Update(50 * bytesPerMB)

	if !almostEqual(stats.CurrentSpeedMBps, 30) {
		t.Errorf("CurrentSpeedMBps = %v, want 30 from the newest pair", stats.CurrentSpeedMBps)
	}
	// (50-10) MB over 2s between oldest and newest samples
	if !almostEqual(stats.AverageSpeedMBps, 20) {
		t.Errorf("AverageSpeedMBps = %v, want 20 over the window", stats.AverageSpeedMBps)
	}
}

func TestTrackerOverrunClampsETA(t *testing.T) {
	tr, clock := newTestTracker(0)
	tr.Start(10 * bytesPerMB)

	clock.advance(time.Second)
	tr.Update(10 * bytesPerMB)
	clock.advance(time.Second)
	stats := tr.Update(15 * bytesPerMB) // extracted beyond the advertised total

	if stats.ETASeconds != 0 {
		t.Errorf("ETASeconds = %d, want 0 once the total is exceeded", stats.ETASeconds)
	}
}

func TestTrackerReset(t *testing.T) {
	tr, clock := newTestTracker(0)
	tr.Start(100 * bytesPerMB)
	clock.advance(time.Second)
	tr.Update(10 * bytesPerMB)

	tr.Reset()

	if len(tr.samples) != 0 || tr.totalBytes != 0 || !tr.startAt.IsZero() {
		t.Error("Reset() left state behind")
	}
}

func TestETAString(t *testing.T) {
	cases := []struct {
		eta  int64
		want string
	}{
		{0, "0s"},
		{-5, "0s"},
		{45, "45s"},
		{75, "1m 15s"},
		{3600, "1h 0m"},
		{7500, "2h 5m"},
	}
	for _, tc := range cases {
		if got := (Stats{ETASeconds: tc.eta}).ETAString(); got != tc.want {
			t.Errorf("ETAString(%d) = %q, want %q", tc.eta, got, tc.want)
		}
	}
}
