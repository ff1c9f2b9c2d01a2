// Package live implements the persistent websocket session, the in-memory
// per-subscription data stores and the heartbeat-based liveness detector.
package live

import (
	"sync"
	"time"

	"truedata-client/internal/models"
)

// HeartbeatMonitor tracks a fixed-length sliding window of heartbeat receipt
// timestamps and decides when the connection is stale. Staleness is a pure
// function of the window and wall-clock time; recording and checking happen
// on different goroutines, so the window is mutex-guarded.
type HeartbeatMonitor struct {
	mu     sync.Mutex
	window []time.Time

	size     int
	confirm  int
	interval time.Duration
	buffer   time.Duration
}

// NewHeartbeatMonitor creates a monitor whose window holds
// confirmCount + lookbackCount entries.
func NewHeartbeatMonitor(interval, buffer time.Duration, confirmCount, lookbackCount int) *HeartbeatMonitor {
	if confirmCount < 1 {
		confirmCount = 1
	}
	size := confirmCount + lookbackCount
	return &HeartbeatMonitor{
		window:   make([]time.Time, 0, size),
		size:     size,
		confirm:  confirmCount,
		interval: interval,
		buffer:   buffer,
	}
}

// Record appends a heartbeat receipt time, evicting the oldest entry once the
// window is full.
func (m *HeartbeatMonitor) Record(ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.window) == m.size {
		m.window = append(m.window[1:], ts)
		return
	}
	m.window = append(m.window, ts)
}

// IsStale reports whether the connection should be considered dead: the
// confirm-count-th newest heartbeat is older than now by more than
// (interval + buffer) * confirmCount. With fewer than confirmCount heartbeats
// recorded there is not enough evidence to declare staleness.
func (m *HeartbeatMonitor) IsStale(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.window) < m.confirm {
		return false
	}
	ref := m.window[len(m.window)-m.confirm]
	allowed := time.Duration(m.confirm) * (m.interval + m.buffer)
	return now.Sub(ref) > allowed
}

// Allowed returns the staleness threshold duration.
func (m *HeartbeatMonitor) Allowed() time.Duration {
	return time.Duration(m.confirm) * (m.interval + m.buffer)
}

// Last returns the most recent heartbeat time, if any.
func (m *HeartbeatMonitor) Last() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.window) == 0 {
		return time.Time{}, false
	}
	return m.window[len(m.window)-1], true
}

// LargestGap returns the widest span between consecutive heartbeats in the
// window. Used after a reconnect to report the recovery span to the caller;
// no backfill is performed here.
func (m *HeartbeatMonitor) LargestGap() (models.GapEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.window) < 2 {
		return models.GapEvent{}, false
	}
	var gap models.GapEvent
	for i := 1; i < len(m.window); i++ {
		span := m.window[i].Sub(m.window[i-1])
		if span > gap.Span {
			gap = models.GapEvent{Start: m.window[i-1], End: m.window[i], Span: span}
		}
	}
	return gap, true
}

// Reset clears the window after a disconnect or a completed reconnect, so
// pre-disconnect timestamps cannot condemn the new connection.
func (m *HeartbeatMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = m.window[:0]
}
