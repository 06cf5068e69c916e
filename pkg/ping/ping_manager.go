// Package ping implements the round-trip-time and jitter estimator shared by
// client and server connections (spec §4.3). Its ping/pong bookkeeping is
// grounded on the ping/pong record pattern in
// b7c0b1d5_harshabose-serve pkg/interceptor/ping/state.go (record-on-send,
// record-on-receive, derive RTT from the matched pair); its EWMA smoothing is
// grounded on the original naia PingManager referenced from
// original_source/client/src/server_connection.rs (should_send_ping,
// get_ping_payload, process_pong, get_rtt, get_jitter).
package ping

import (
	"encoding/binary"
	"time"
)

const (
	// DefaultSampleSize matches rtt_sample_size's default (spec §6
	// Configuration; original_source/server/src/server_config.rs's
	// rtt_sample_size: 20): "number of samples to measure RTT & jitter by -
	// a higher number smooths measurements at the cost of responsiveness."
	DefaultSampleSize = 20
	// DefaultInterval is how often a ping is sent absent an explicit config.
	DefaultInterval = 1 * time.Second
)

// Manager estimates RTT and jitter via an exponentially weighted moving
// average over a configurable sample window, and decides when a new ping is
// due (spec §4.3).
type Manager struct {
	interval time.Duration
	alpha    float64

	lastPingAt time.Time
	nextID     uint64
	inFlight   map[uint64]time.Time

	rtt        time.Duration
	haveRTT    bool
	jitter     time.Duration
	haveJitter bool
}

// NewManager creates a ping manager that sends a ping every interval and
// smooths samples over sampleSize measurements (rtt_sample_size, spec §6).
// A larger sampleSize smooths the RTT/jitter estimate further at the cost
// of responsiveness; the window is realized as an EWMA with alpha =
// 2/(sampleSize+1), the standard SMA-equivalent smoothing factor for that
// window length. sampleSize <= 0 defaults to DefaultSampleSize; interval <=
// 0 defaults to DefaultInterval.
func NewManager(interval time.Duration, sampleSize int) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Manager{
		interval: interval,
		alpha:    2.0 / (float64(sampleSize) + 1),
		inFlight: make(map[uint64]time.Time),
	}
}

// ShouldSendPing reports whether ping_interval has elapsed since the last
// ping was issued (spec §4.3: "Emits a ping when now − last_ping ≥
// ping_interval").
func (m *Manager) ShouldSendPing(now time.Time) bool {
	return m.lastPingAt.IsZero() || now.Sub(m.lastPingAt) >= m.interval
}

// BuildPing allocates an opaque id for a new outgoing ping, records the send
// time against it, and marks last_ping. The returned 8 bytes are the wire
// payload; the id is also returned for tests/logging.
func (m *Manager) BuildPing(now time.Time) (id uint64, payload []byte) {
	id = m.nextID
	m.nextID++
	m.inFlight[id] = now
	m.lastPingAt = now

	payload = make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, id)
	return id, payload
}

// ProcessPong consumes a pong payload (the echoed ping id), looks up the
// matching send time, and folds the resulting RTT sample into the EWMA
// estimators for RTT and jitter (mean absolute deviation from the running
// RTT estimate). Returns false if the id is unknown (duplicate or expired
// pong), in which case no sample is recorded.
func (m *Manager) ProcessPong(payload []byte, now time.Time) bool {
	if len(payload) < 8 {
		return false
	}
	id := binary.LittleEndian.Uint64(payload)
	sentAt, ok := m.inFlight[id]
	if !ok {
		return false
	}
	delete(m.inFlight, id)

	sample := now.Sub(sentAt)
	m.recordSample(sample)
	return true
}

func (m *Manager) recordSample(sample time.Duration) {
	if !m.haveRTT {
		m.rtt = sample
		m.haveRTT = true
		m.jitter = 0
		m.haveJitter = true
		return
	}

	delta := sample - m.rtt
	if delta < 0 {
		delta = -delta
	}
	m.rtt = m.rtt + time.Duration(m.alpha*float64(sample-m.rtt))
	if !m.haveJitter {
		m.jitter = delta
		m.haveJitter = true
		return
	}
	m.jitter = m.jitter + time.Duration(m.alpha*float64(delta-m.jitter))
}

// RTT returns the current smoothed RTT estimate, or 0 if no sample has been
// recorded yet.
func (m *Manager) RTT() time.Duration { return m.rtt }

// Jitter returns the current smoothed mean-absolute-deviation jitter
// estimate, or 0 if fewer than two samples have been recorded.
func (m *Manager) Jitter() time.Duration { return m.jitter }

// PendingCount returns the number of pings sent without a matching pong yet,
// useful for detecting a stalled connection.
func (m *Manager) PendingCount() int { return len(m.inFlight) }
