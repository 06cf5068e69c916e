// Package command implements client-side predicted commands and the
// server-side replay buffer (spec §4.8), grounded on
// original_source/client/src/server_connection.rs's command_sender /
// command_receiver wiring and spec §9's "dual command tracks" redesign
// note: the sender's retry history and the client's replay buffer are kept
// as two distinct ring buffers rather than unified, since they retire on
// different events (ack vs. snapshot).
package command

import (
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/werrors"
	"github.com/statewire-org/statewire/pkg/wire"
)

// DefaultHistorySize is command_history_size's default (spec §9 Open
// Questions, spec §6 Configuration).
const DefaultHistorySize = 64

// Command is an opaque per-tick input for a pawn; the application supplies
// the concrete Replicate-shaped command type via the manifest.
type Command = protocol.Replicate

// pendingSend is one not-yet-acknowledged outgoing command, retried as part
// of the "newest plus a short history" packet shape (spec §4.8).
type pendingSend struct {
	tick uint16
	cmd  Command
}

// DualCommandSender queues outgoing commands per pawn and, on every send,
// emits the newest command plus a short history so a few dropped command
// packets still deliver each command to the server (spec §4.8).
type DualCommandSender struct {
	historySize int
	byPawn      map[protocol.PawnKey][]pendingSend

	// sentByPacket tracks in-flight command blocks by the outgoing packet
	// index that carried them, for ack-driven retirement via
	// NotifyDelivered/NotifyDropped.
	sentByPacket map[uint16][]sentMark
}

// NewDualCommandSender creates a sender with the given per-packet history
// length (command_history_size).
func NewDualCommandSender(historySize int) *DualCommandSender {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &DualCommandSender{historySize: historySize, byPawn: make(map[protocol.PawnKey][]pendingSend)}
}

// QueueCommand records a freshly issued command for pawn at tick.
func (s *DualCommandSender) QueueCommand(pawn protocol.PawnKey, tick uint16, cmd Command) {
	s.byPawn[pawn] = append(s.byPawn[pawn], pendingSend{tick: tick, cmd: cmd})
}

// PendingPawns reports every pawn with at least one buffered outgoing
// command, for a caller driving the send loop to know which pawns need a
// WriteCommandBlock call this tick.
func (s *DualCommandSender) PendingPawns() []protocol.PawnKey {
	if len(s.byPawn) == 0 {
		return nil
	}
	pawns := make([]protocol.PawnKey, 0, len(s.byPawn))
	for pawn, history := range s.byPawn {
		if len(history) > 0 {
			pawns = append(pawns, pawn)
		}
	}
	return pawns
}

// PeekNewest returns pawn's most recently queued command and the tick it
// was issued at, without consuming it, so a caller can resolve its NaiaId
// through the manifest before calling WriteCommandBlock and later mark the
// outgoing packet via MarkSent.
func (s *DualCommandSender) PeekNewest(pawn protocol.PawnKey) (cmd Command, tick uint16, ok bool) {
	history := s.byPawn[pawn]
	if len(history) == 0 {
		return nil, 0, false
	}
	newest := history[len(history)-1]
	return newest.cmd, newest.tick, true
}

// sentMark remembers which pawn's commands, through which tick, an
// outgoing packet carried.
type sentMark struct {
	pawn protocol.PawnKey
	tick uint16
}

// MarkSent records that packetIndex placed pawn's command block with
// newest tick tick, so a later delivery/drop notification knows what to
// retire (spec §9: sender retires on ack).
func (s *DualCommandSender) MarkSent(packetIndex uint16, pawn protocol.PawnKey, tick uint16) {
	if s.sentByPacket == nil {
		s.sentByPacket = make(map[uint16][]sentMark)
	}
	s.sentByPacket[packetIndex] = append(s.sentByPacket[packetIndex], sentMark{pawn: pawn, tick: tick})
}

// NotifyDelivered retires, for every pawn packetIndex carried, every
// buffered command through the tick it was sent with.
func (s *DualCommandSender) NotifyDelivered(packetIndex uint16) {
	marks, ok := s.sentByPacket[packetIndex]
	if !ok {
		return
	}
	delete(s.sentByPacket, packetIndex)
	for _, m := range marks {
		s.RetireAcked(m.pawn, m.tick)
	}
}

// NotifyDropped forgets packetIndex's bookkeeping; the buffered commands
// stay queued and ride along with the next packet's history instead.
func (s *DualCommandSender) NotifyDropped(packetIndex uint16) {
	delete(s.sentByPacket, packetIndex)
}

// RetireAcked drops every buffered send for pawn with tick <= ackedTick,
// called once the server confirms it has incorporated commands through
// that tick (sender retires on ack, spec §9).
func (s *DualCommandSender) RetireAcked(pawn protocol.PawnKey, ackedTick uint16) {
	history := s.byPawn[pawn]
	kept := history[:0]
	for _, p := range history {
		if wire.SequenceGreaterThan(p.tick, ackedTick) {
			kept = append(kept, p)
		}
	}
	s.byPawn[pawn] = kept
}

// WriteCommandBlock encodes one pawn's command block: {PawnKey, NaiaId,
// past_command_count, newest_command, [(tick_delta:u8, command)...]} (spec
// §4.8). Returns false if there is no buffered command for pawn.
func (s *DualCommandSender) WriteCommandBlock(w *wire.Writer, pawn protocol.PawnKey, naiaID protocol.NaiaId) bool {
	history := s.byPawn[pawn]
	if len(history) == 0 {
		return false
	}
	newest := history[len(history)-1]
	past := history[:len(history)-1]
	if len(past) > s.historySize {
		past = past[len(past)-s.historySize:]
	}

	pawn.WriteTo(w)
	w.WriteU16(uint16(naiaID))
	w.WriteU8(uint8(len(past)))

	body := wire.NewWriter()
	newest.cmd.WriteFull(body)
	w.WriteBytes(body.Bytes())

	for _, p := range past {
		delta := newest.tick - p.tick
		w.WriteU8(uint8(delta))
		pb := wire.NewWriter()
		p.cmd.WriteFull(pb)
		w.WriteBytes(pb.Bytes())
	}
	return true
}

// DecodeCommandBlock parses one pawn's command block written by
// WriteCommandBlock and pushes the newest command plus its history into
// recv, each keyed by the tick it was originally issued at (hostTick is the
// client tick the containing packet carries, spec §4.8 "keyed by
// client_tick").
func DecodeCommandBlock(r *wire.Reader, manifest *protocol.Manifest, hostTick uint16, recv *ServerReceiver) error {
	pawn, err := protocol.ReadPawnKey(r)
	if err != nil {
		return err
	}
	rawID, err := r.ReadU16()
	if err != nil {
		return err
	}
	naiaID := protocol.NaiaId(rawID)
	pastCount, err := r.ReadU8()
	if err != nil {
		return err
	}

	newestBody, err := r.ReadBytes()
	if err != nil {
		return err
	}
	newest, ok := manifest.Create(naiaID)
	if !ok {
		return &werrors.ProtocolViolation{Reason: "unknown NaiaId in command block"}
	}
	if err := newest.ReadFull(wire.NewReader(newestBody)); err != nil {
		return err
	}
	recv.PushCommand(hostTick, pawn, newest)

	for i := uint8(0); i < pastCount; i++ {
		delta, err := r.ReadU8()
		if err != nil {
			return err
		}
		body, err := r.ReadBytes()
		if err != nil {
			return err
		}
		cmd, ok := manifest.Create(naiaID)
		if !ok {
			return &werrors.ProtocolViolation{Reason: "unknown NaiaId in command block"}
		}
		if err := cmd.ReadFull(wire.NewReader(body)); err != nil {
			return err
		}
		recv.PushCommand(hostTick-uint16(delta), pawn, cmd)
	}
	return nil
}

