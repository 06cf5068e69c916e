package command

import (
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/wire"
)

// bufferedCommand is one ring entry in a pawn's replay history.
type bufferedCommand struct {
	tick uint16
	cmd  Command
}

// ReplayHook is the injected callback the replication manager exposes for
// reapplying a buffered command to a pawn's local copy during rollback
// reconciliation (spec §4.8 "process_command_replay hook").
type ReplayHook func(pawn protocol.PawnKey, cmd Command)

// DualCommandReceiver is the client-side replay buffer: it stores, per
// pawn, a ring of (tick, command) and replays everything newer than the
// latest server snapshot against the local pawn copy (spec §4.8, invariant
// 5 "Command replay purity"). Kept as a buffer wholly separate from
// DualCommandSender's retry history (spec §9 "dual command tracks").
type DualCommandReceiver struct {
	byPawn map[protocol.PawnKey][]bufferedCommand
	replay ReplayHook
}

// NewDualCommandReceiver creates a replay buffer invoking hook for every
// command it replays.
func NewDualCommandReceiver(hook ReplayHook) *DualCommandReceiver {
	return &DualCommandReceiver{byPawn: make(map[protocol.PawnKey][]bufferedCommand), replay: hook}
}

// BufferCommand records a locally issued command for later replay, mirroring
// what DualCommandSender placed on the wire.
func (r *DualCommandReceiver) BufferCommand(pawn protocol.PawnKey, tick uint16, cmd Command) {
	r.byPawn[pawn] = append(r.byPawn[pawn], bufferedCommand{tick: tick, cmd: cmd})
}

// ReconcileSnapshot implements the rollback loop for one pawn (spec §4.8):
// 1. The caller has already rewound the pawn's authoritative state to the
//    server's value at serverTick.
// 2. Replay every buffered command with tick > serverTick against the
//    pawn, in tick order.
// 3. Discard commands with tick <= serverTick (already reflected).
func (r *DualCommandReceiver) ReconcileSnapshot(pawn protocol.PawnKey, serverTick uint16) {
	history := r.byPawn[pawn]
	kept := history[:0]
	for _, bc := range history {
		if !wire.SequenceGreaterThan(bc.tick, serverTick) {
			continue // already reflected in the snapshot
		}
		if r.replay != nil {
			r.replay(pawn, bc.cmd)
		}
		kept = append(kept, bc)
	}
	r.byPawn[pawn] = kept
}
