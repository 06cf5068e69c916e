// Package tick implements the fixed-rate client/server tick clock (spec
// §4.4), grounded on original_source/client/src/server_connection.rs's use
// of TickManager (mark_frame, record_server_tick, get_server_tick) and on
// the teacher's own polling-over-goroutines style for per-frame work
// elsewhere in internal/transport.
package tick

import (
	"math"
	"time"

	"github.com/statewire-org/statewire/pkg/wire"
)

// DefaultSafetyMargin is added, in whole ticks, on top of the half-RTT +
// jitter estimate when projecting the server tick (spec §4.4).
const DefaultSafetyMargin = 1

// Manager owns a fixed-rate client_tick advanced by a monotonic clock and
// estimates the server's tick for the purpose of command scheduling and
// jitter-buffer release (spec §4.4).
type Manager struct {
	tickDuration time.Duration
	safetyMargin uint16

	startedAt    time.Time
	started      bool
	clientTick   uint16
	lastMarkedAt time.Time
	ticksMarked  uint64

	serverTick    uint16
	haveServerEst bool
}

// NewManager creates a tick manager advancing client_tick once per
// tickDuration.
func NewManager(tickDuration time.Duration) *Manager {
	return &Manager{
		tickDuration: tickDuration,
		safetyMargin: DefaultSafetyMargin,
	}
}

// WithSafetyMargin overrides the default safety margin (in whole ticks)
// added to the server tick estimate.
func (m *Manager) WithSafetyMargin(ticks uint16) *Manager {
	m.safetyMargin = ticks
	return m
}

// MarkFrame advances client_tick by one when a whole tick interval has
// elapsed that has not been marked yet, returning true exactly once per
// completed interval and false otherwise (spec §4.4:
// "mark_frame() returns true exactly once per completed tick interval").
// A caller that falls several intervals behind catches up one per call.
func (m *Manager) MarkFrame(now time.Time) bool {
	if !m.started {
		m.started = true
		m.startedAt = now
		m.lastMarkedAt = now
		return false
	}

	elapsedIntervals := uint64(now.Sub(m.startedAt) / m.tickDuration)
	if elapsedIntervals <= m.ticksMarked {
		return false
	}
	m.ticksMarked++
	m.clientTick = uint16(m.ticksMarked)
	m.lastMarkedAt = now
	return true
}

// ClientTick returns the current client tick.
func (m *Manager) ClientTick() uint16 { return m.clientTick }

// Interpolation returns the fractional progress through the current tick
// interval, in [0,1] (spec §4.4).
func (m *Manager) Interpolation(now time.Time) float64 {
	if !m.started || m.tickDuration <= 0 {
		return 0
	}
	elapsed := now.Sub(m.startedAt)
	frac := float64(elapsed%m.tickDuration) / float64(m.tickDuration)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return frac
}

// RecordServerTick folds a freshly received host_tick, along with the
// connection's current RTT/jitter estimate, into the server tick projection:
//
//	server_tick = host_tick + ceil((rtt/2 + jitter) / tick_duration) + safety_margin
//
// (spec §4.4, verbatim formula).
func (m *Manager) RecordServerTick(hostTick uint16, rtt, jitter time.Duration) {
	offsetTicks := uint16(0)
	if m.tickDuration > 0 {
		halfRTTPlusJitter := rtt/2 + jitter
		offsetTicks = uint16(math.Ceil(float64(halfRTTPlusJitter) / float64(m.tickDuration)))
	}
	m.serverTick = hostTick + offsetTicks + m.safetyMargin
	m.haveServerEst = true
}

// ServerTick returns the current estimate of the server's tick, and whether
// any sample has been recorded yet.
func (m *Manager) ServerTick() (uint16, bool) {
	return m.serverTick, m.haveServerEst
}

// SequenceGreaterThan is re-exported for callers comparing ticks without
// importing pkg/wire directly.
func SequenceGreaterThan(a, b uint16) bool { return wire.SequenceGreaterThan(a, b) }
