package header

import (
	"time"

	"github.com/statewire-org/statewire/pkg/wire"
)

// DefaultAckWindow is the number of in-flight outgoing packets the ack
// engine tracks before treating an unconfirmed one as dropped.
const DefaultAckWindow = 256

// DeliveryCallback is invoked once per confirmed outgoing packet index, with
// the RTT sample derived from its send timestamp (spec §4.2).
type DeliveryCallback func(packetIndex uint16, rtt time.Duration)

// DropCallback is invoked for an outgoing packet index that aged out of the
// ack window without ever being confirmed.
type DropCallback func(packetIndex uint16)

// AckEngine tracks, per connection, both directions of packet sequencing:
// which of the peer's packets we've received (so we know what to put in our
// own outgoing header) and which of our own sent packets the peer has
// confirmed (so we can sample RTT and notify managers of drops). Grounded on
// the teacher's MsgTx/RxMsgSeen bookkeeping in
// pkg/custom/reliable/utils.go, generalized from per-RPC message acks to a
// single sliding per-connection packet-index window (spec §4.2).
type AckEngine struct {
	window uint16

	nextIndex uint16
	sentAt    *wire.SequenceBuffer // our packet index -> time.Time

	hasReceived  bool
	lastReceived uint16
	receivedMark *wire.SequenceBuffer // peer's packet index -> struct{}{}

	onDelivered DeliveryCallback
	onDropped   DropCallback
}

// NewAckEngine creates an ack engine with the given window size and
// callbacks. Either callback may be nil.
func NewAckEngine(window uint16, onDelivered DeliveryCallback, onDropped DropCallback) *AckEngine {
	if window == 0 {
		window = DefaultAckWindow
	}
	return &AckEngine{
		window:       window,
		sentAt:       wire.NewSequenceBuffer(window),
		receivedMark: wire.NewSequenceBuffer(window),
		onDelivered:  onDelivered,
		onDropped:    onDropped,
	}
}

// SetCallbacks replaces the delivery/drop callbacks, for callers that need
// to wire them after other state (e.g. a replication sender) exists.
func (a *AckEngine) SetCallbacks(onDelivered DeliveryCallback, onDropped DropCallback) {
	a.onDelivered = onDelivered
	a.onDropped = onDropped
}

// RecordOutgoing allocates the next packet index and remembers when it was
// sent, for later RTT sampling. If allocating this slot evicts an older,
// still-unconfirmed send, that send is reported dropped (spec §4.2:
// "indices that fall out of the window unacknowledged").
func (e *AckEngine) RecordOutgoing(now time.Time) uint16 {
	idx := e.nextIndex
	e.nextIndex++

	if seq, _, ok := e.sentAt.OccupantAt(idx); ok {
		if e.onDropped != nil {
			e.onDropped(seq)
		}
	}
	e.sentAt.Insert(idx, now)
	return idx
}

// AckFields returns the (last_received_index, ack_bitfield) pair to embed in
// our next outgoing header, describing which of the peer's recent packets
// we've received.
func (e *AckEngine) AckFields() (lastReceived uint16, bitfield uint32) {
	if !e.hasReceived {
		return 0, 0
	}
	for i := uint16(1); i <= 32; i++ {
		if e.receivedMark.Exists(e.lastReceived - i) {
			bitfield |= 1 << uint(i-1)
		}
	}
	return e.lastReceived, bitfield
}

// OnReceive records that packetIndex just arrived from the peer, advancing
// last_received under wrapping order (spec §4.2: "update last_received to
// the max under wrapping order").
func (e *AckEngine) OnReceive(packetIndex uint16) {
	e.receivedMark.Insert(packetIndex, struct{}{})
	if !e.hasReceived || wire.SequenceGreaterThan(packetIndex, e.lastReceived) {
		e.lastReceived = packetIndex
		e.hasReceived = true
	}
}

// ProcessAck interprets the peer's last_received_index/ack_bitfield — which
// acknowledge OUR sent packets — sampling RTT for every newly confirmed
// index (spec §4.2: "For every locally sent index that the header confirms
// ... sample RTT ... and notify managers").
func (e *AckEngine) ProcessAck(peerLastReceived uint16, peerBitfield uint32, now time.Time) {
	e.confirm(peerLastReceived, now)
	for i := uint16(1); i <= 32; i++ {
		if peerBitfield&(1<<uint(i-1)) != 0 {
			e.confirm(peerLastReceived-i, now)
		}
	}
}

func (e *AckEngine) confirm(idx uint16, now time.Time) {
	v, ok := e.sentAt.Get(idx)
	if !ok {
		return
	}
	e.sentAt.Remove(idx)
	if e.onDelivered != nil {
		e.onDelivered(idx, now.Sub(v.(time.Time)))
	}
}

// LastReceived returns the highest (wrapping) packet index seen from the
// peer so far, or 0 if none yet.
func (e *AckEngine) LastReceived() (uint16, bool) {
	return e.lastReceived, e.hasReceived
}
