package command

import (
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/wire"
)

// tickCommands is what the server's sequence buffer stores per tick: a
// first-write-wins map of pawn to its command for that tick (spec §4.8
// "stores a map<PawnKey, Command> per tick").
type tickCommands map[protocol.PawnKey]Command

// ServerReceiver is the server-side command intake: keyed by client_tick, a
// sequence buffer of depth command_history_size (default 64) holding one
// command per pawn per tick (spec §4.8).
type ServerReceiver struct {
	buf *wire.SequenceBuffer
}

// NewServerReceiver creates a server receiver with the given depth
// (command_history_size, default DefaultHistorySize).
func NewServerReceiver(depth int) *ServerReceiver {
	if depth <= 0 {
		depth = DefaultHistorySize
	}
	return &ServerReceiver{buf: wire.NewSequenceBuffer(uint16(depth))}
}

// PushCommand records cmd for pawn at tick. Duplicate entries for the same
// (tick, pawn) are idempotent: first-write-wins (spec §4.8).
func (s *ServerReceiver) PushCommand(tick uint16, pawn protocol.PawnKey, cmd Command) {
	v, ok := s.buf.Get(tick)
	var tc tickCommands
	if ok {
		tc = v.(tickCommands)
	} else {
		tc = make(tickCommands)
		s.buf.Insert(tick, tc)
	}
	if _, exists := tc[pawn]; exists {
		return // first-write-wins
	}
	tc[pawn] = cmd
}

// PopIncomingCommands dequeues the pending commands for the tick now being
// simulated; older ticks are discarded by the ring's own eviction as later
// ticks arrive (spec §4.8 "pop_incoming_command(server_tick) dequeues
// pending commands for the tick now being simulated; older ticks are
// discarded").
func (s *ServerReceiver) PopIncomingCommands(serverTick uint16) map[protocol.PawnKey]Command {
	v, ok := s.buf.Get(serverTick)
	if !ok {
		return nil
	}
	s.buf.Remove(serverTick)
	return v.(tickCommands)
}
