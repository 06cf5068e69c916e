// Package message implements the reliable and unreliable application
// message paths (spec §4.6). The reliable path's resend-queue-keyed-by-
// first-send-packet-index design is grounded on the teacher's ACK-driven
// retransmission bookkeeping (originally in pkg/custom/reliable), wired here
// to pkg/header's AckEngine delivery/drop callbacks instead of per-RPC
// frames.
package message

import (
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/werrors"
	"github.com/statewire-org/statewire/pkg/wire"
)

// Message pairs a manifest-registered variant with the NaiaId it was sent
// or received under.
type Message struct {
	ID   protocol.NaiaId
	Body protocol.Replicate
}

// outgoing is a message queued for the reliable path, tracked from the
// moment it is first placed in a packet until it is either delivered or
// resent.
type outgoing struct {
	msg           Message
	packetIndex   uint16
	awaitingFirst bool // true until it has been placed in a packet at least once
}

// Manager implements both message paths over a shared manifest (spec §4.6).
type Manager struct {
	manifest *protocol.Manifest

	reliableOut   []*outgoing          // FIFO of not-yet-placed reliable sends
	resendQueue   map[uint16]*outgoing // first-send packet index -> pending send
	unreliableOut []Message            // FIFO of not-yet-placed one-shot sends

	incoming []Message
}

// NewManager creates a message manager bound to manifest.
func NewManager(manifest *protocol.Manifest) *Manager {
	return &Manager{
		manifest:    manifest,
		resendQueue: make(map[uint16]*outgoing),
	}
}

// SendReliable enqueues msg on the resend_queue path: it is placed into
// packets until delivered, and re-placed on every drop (spec §4.6).
func (m *Manager) SendReliable(msg Message) {
	m.reliableOut = append(m.reliableOut, &outgoing{msg: msg, awaitingFirst: true})
}

// SendUnreliable enqueues msg for one-shot delivery; it is placed into the
// next packet and then forgotten regardless of delivery outcome.
func (m *Manager) SendUnreliable(msg Message) {
	m.unreliableOut = append(m.unreliableOut, msg)
}

// WriteNext attempts to place the next pending message (reliable messages
// take priority over unreliable, matching the teacher's priority-queue
// convention for control traffic over best-effort traffic) into the given
// wire writer as {NaiaId:u16, body:bytes}. Returns false if nothing is
// pending to write, or if try rejects the block (the message stays queued).
func (m *Manager) WriteNext(packetIndex uint16, try func(body []byte) bool) bool {
	if len(m.reliableOut) > 0 {
		item := m.reliableOut[0]
		body := m.encode(item.msg)
		if !try(body) {
			return false
		}
		m.reliableOut = m.reliableOut[1:]
		item.packetIndex = packetIndex
		item.awaitingFirst = false
		m.resendQueue[packetIndex] = item
		return true
	}
	if len(m.unreliableOut) > 0 {
		msg := m.unreliableOut[0]
		body := m.encode(msg)
		if !try(body) {
			return false
		}
		m.unreliableOut = m.unreliableOut[1:]
		return true
	}
	return false
}

func (m *Manager) encode(msg Message) []byte {
	w := wire.NewWriter()
	w.WriteU16(uint16(msg.ID))
	body := wire.NewWriter()
	msg.Body.WriteFull(body)
	w.WriteBytes(body.Bytes())
	return w.Bytes()
}

// Decode parses a wire-form {NaiaId:u16, body:bytes} message using the
// manifest, returning a protocol violation if the id is unregistered (spec
// §4.6/§7).
func (m *Manager) Decode(payload []byte) (Message, error) {
	r := wire.NewReader(payload)
	id, err := r.ReadU16()
	if err != nil {
		return Message{}, err
	}
	bodyBytes, err := r.ReadBytes()
	if err != nil {
		return Message{}, err
	}
	instance, ok := m.manifest.Create(protocol.NaiaId(id))
	if !ok {
		return Message{}, &werrors.ProtocolViolation{Reason: "unknown message NaiaId"}
	}
	if err := instance.ReadFull(wire.NewReader(bodyBytes)); err != nil {
		return Message{}, err
	}
	return Message{ID: protocol.NaiaId(id), Body: instance}, nil
}

// OnReceive records a successfully decoded incoming message for the
// application to drain via PopIncoming.
func (m *Manager) OnReceive(msg Message) {
	m.incoming = append(m.incoming, msg)
}

// PopIncoming drains one received message in FIFO order.
func (m *Manager) PopIncoming() (Message, bool) {
	if len(m.incoming) == 0 {
		return Message{}, false
	}
	msg := m.incoming[0]
	m.incoming = m.incoming[1:]
	return msg, true
}

// NotifyPacketDelivered retires a reliable send once its packet is
// confirmed delivered (spec §4.6: "retires on notify_packet_delivered").
func (m *Manager) NotifyPacketDelivered(packetIndex uint16) {
	delete(m.resendQueue, packetIndex)
}

// NotifyPacketDropped re-queues a reliable send for resend when its packet
// is confirmed dropped (spec §4.6: "Resends when notify_packet_dropped
// fires").
func (m *Manager) NotifyPacketDropped(packetIndex uint16) {
	item, ok := m.resendQueue[packetIndex]
	if !ok {
		return
	}
	delete(m.resendQueue, packetIndex)
	m.reliableOut = append(m.reliableOut, item)
}

// PendingReliableCount reports how many reliable sends are either waiting
// to be placed or awaiting confirmation, useful for tests and metrics.
func (m *Manager) PendingReliableCount() int {
	return len(m.reliableOut) + len(m.resendQueue)
}

// HasPending reports whether any reliable or unreliable message is queued
// to be placed in the next packet, so a caller can decide whether building
// a packet header (which burns an ack-window slot) is worthwhile.
func (m *Manager) HasPending() bool {
	return len(m.reliableOut) > 0 || len(m.unreliableOut) > 0
}
