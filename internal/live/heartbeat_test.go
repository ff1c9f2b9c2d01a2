package live

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestHeartbeatMonitor_NotStaleRightAfterHeartbeat(t *testing.T) {
	interval := 5 * time.Second
	buffer := time.Second
	m := NewHeartbeatMonitor(interval, buffer, 4, 16)

	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		m.Record(base.Add(time.Duration(i) * interval))
	}
	last := base.Add(9 * interval)

	if m.IsStale(last) {
		t.Error("monitor stale immediately after newest heartbeat")
	}
	if m.IsStale(last.Add(interval)) {
		t.Error("monitor stale one interval after newest heartbeat")
	}
}

func TestHeartbeatMonitor_StaleBeyondAllowedWindow(t *testing.T) {
	interval := 5 * time.Second
	buffer := time.Second
	confirm := 4
	m := NewHeartbeatMonitor(interval, buffer, confirm, 16)

	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	var last time.Time
	for i := 0; i < 10; i++ {
		last = base.Add(time.Duration(i) * interval)
		m.Record(last)
	}

	// The reference entry is the confirm-count-th newest heartbeat; staleness
	// begins strictly beyond reference + confirm*(interval+buffer).
	ref := last.Add(-time.Duration(confirm-1) * interval)
	threshold := ref.Add(time.Duration(confirm) * (interval + buffer))

	if m.IsStale(threshold) {
		t.Error("stale exactly at threshold, want strict exceedance")
	}
	if !m.IsStale(threshold.Add(time.Millisecond)) {
		t.Error("not stale just past threshold")
	}
}

func TestHeartbeatMonitor_InsufficientEvidence(t *testing.T) {
	m := NewHeartbeatMonitor(5*time.Second, time.Second, 4, 16)
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	m.Record(base)
	m.Record(base.Add(5 * time.Second))

	// Fewer than confirm-count heartbeats recorded; never stale.
	if m.IsStale(base.Add(time.Hour)) {
		t.Error("stale with fewer than confirm-count heartbeats")
	}
}

func TestHeartbeatMonitor_LargestGap(t *testing.T) {
	m := NewHeartbeatMonitor(5*time.Second, time.Second, 4, 16)
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	m.Record(base)
	m.Record(base.Add(5 * time.Second))
	m.Record(base.Add(35 * time.Second)) // 30s gap
	m.Record(base.Add(40 * time.Second))

	gap, ok := m.LargestGap()
	if !ok {
		t.Fatal("expected a gap")
	}
	if gap.Span != 30*time.Second {
		t.Errorf("largest gap = %s, want 30s", gap.Span)
	}
	if !gap.Start.Equal(base.Add(5 * time.Second)) {
		t.Errorf("gap start = %s", gap.Start)
	}
}

func TestHeartbeatMonitor_WindowEviction(t *testing.T) {
	confirm, lookback := 2, 3
	m := NewHeartbeatMonitor(time.Second, 0, confirm, lookback)
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		m.Record(base.Add(time.Duration(i) * time.Second))
	}
	m.mu.Lock()
	size := len(m.window)
	oldest := m.window[0]
	m.mu.Unlock()

	if size != confirm+lookback {
		t.Errorf("window size = %d, want %d", size, confirm+lookback)
	}
	if !oldest.Equal(base.Add(15 * time.Second)) {
		t.Errorf("oldest = %s, eviction order wrong", oldest)
	}
}

// Property: for heartbeats spaced exactly interval apart, the monitor is never
// stale at the newest heartbeat and always stale once now exceeds the
// reference heartbeat by more than confirm*(interval+buffer).
func TestProperty_HeartbeatStalenessBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(1)

	properties := gopter.NewProperties(parameters)

	properties.Property("staleness is a strict threshold function", prop.ForAll(
		func(intervalSecs int, bufferSecs int, confirm int, beats int, overshootMs int) bool {
			interval := time.Duration(intervalSecs) * time.Second
			buffer := time.Duration(bufferSecs) * time.Second
			m := NewHeartbeatMonitor(interval, buffer, confirm, 16)

			base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
			var last time.Time
			for i := 0; i < beats; i++ {
				last = base.Add(time.Duration(i) * interval)
				m.Record(last)
			}

			if m.IsStale(last) {
				return false
			}
			if beats < confirm {
				// Not enough evidence: must never go stale.
				return !m.IsStale(last.Add(24 * time.Hour))
			}

			ref := last.Add(-time.Duration(confirm-1) * interval)
			threshold := ref.Add(time.Duration(confirm) * (interval + buffer))
			return m.IsStale(threshold.Add(time.Duration(overshootMs)*time.Millisecond)) &&
				!m.IsStale(threshold)
		},
		gen.IntRange(1, 30),
		gen.IntRange(0, 5),
		gen.IntRange(1, 8),
		gen.IntRange(1, 40),
		gen.IntRange(1, 10_000),
	))

	properties.TestingRun(t)
}
