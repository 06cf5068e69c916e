package command

import (
	"testing"

	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/wire"
	"github.com/stretchr/testify/require"
)

type moveRight struct {
	mask *protocol.StateMask
}

func (m *moveRight) NaiaId() protocol.NaiaId                                   { return 1 }
func (m *moveRight) Guaranteed() bool                                          { return false }
func (m *moveRight) Mask() *protocol.StateMask                                 { return m.mask }
func (m *moveRight) WriteFull(w *wire.Writer)                                  {}
func (m *moveRight) ReadFull(r *wire.Reader) error                             { return nil }
func (m *moveRight) WriteUpdate(w *wire.Writer, mask *protocol.StateMask)      {}
func (m *moveRight) ReadUpdate(r *wire.Reader, mask *protocol.StateMask) error { return nil }
func (m *moveRight) Clone() protocol.Replicate                                { return &moveRight{mask: m.mask} }

func newMoveRight() protocol.Replicate {
	return &moveRight{mask: protocol.NewStateMask(0)}
}

// Scenario S3 (spec §8): pawn at x=0, server_tick=100, buffered MoveRight
// commands at ticks 101-103 each doing x+=1; post-replay x must read 3.
func TestScenarioS3_CommandReplayPurity(t *testing.T) {
	x := 0
	hook := func(pawn protocol.PawnKey, cmd Command) {
		if _, ok := cmd.(*moveRight); ok {
			x++
		}
	}

	recv := NewDualCommandReceiver(hook)
	pawn := protocol.ObjectPawnKey(1)

	recv.BufferCommand(pawn, 101, newMoveRight())
	recv.BufferCommand(pawn, 102, newMoveRight())
	recv.BufferCommand(pawn, 103, newMoveRight())

	x = 0 // rewound to server snapshot value
	recv.ReconcileSnapshot(pawn, 100)

	require.Equal(t, 3, x)
}

func TestDualCommandReceiver_DiscardsCommandsAtOrBeforeSnapshot(t *testing.T) {
	var replayed []uint16
	hook := func(pawn protocol.PawnKey, cmd Command) {
		replayed = append(replayed, 1)
	}
	recv := NewDualCommandReceiver(hook)
	pawn := protocol.ObjectPawnKey(1)

	recv.BufferCommand(pawn, 99, newMoveRight())
	recv.BufferCommand(pawn, 100, newMoveRight())
	recv.BufferCommand(pawn, 101, newMoveRight())

	recv.ReconcileSnapshot(pawn, 100)
	require.Len(t, replayed, 1) // only tick 101 survives
}

func TestServerReceiver_DuplicateCommandIsIdempotent(t *testing.T) {
	s := NewServerReceiver(64)
	pawn := protocol.ObjectPawnKey(1)

	first := newMoveRight()
	second := newMoveRight()
	s.PushCommand(10, pawn, first)
	s.PushCommand(10, pawn, second) // first-write-wins

	cmds := s.PopIncomingCommands(10)
	require.Same(t, first, cmds[pawn])
}

func TestServerReceiver_PopRemovesTick(t *testing.T) {
	s := NewServerReceiver(64)
	pawn := protocol.ObjectPawnKey(1)
	s.PushCommand(5, pawn, newMoveRight())

	cmds := s.PopIncomingCommands(5)
	require.Len(t, cmds, 1)

	again := s.PopIncomingCommands(5)
	require.Nil(t, again)
}

func TestDualCommandSender_RetiresAckedCommands(t *testing.T) {
	s := NewDualCommandSender(4)
	pawn := protocol.ObjectPawnKey(1)
	s.QueueCommand(pawn, 10, newMoveRight())
	s.QueueCommand(pawn, 11, newMoveRight())
	s.QueueCommand(pawn, 12, newMoveRight())

	s.RetireAcked(pawn, 11)
	require.Len(t, s.byPawn[pawn], 1)
	require.Equal(t, uint16(12), s.byPawn[pawn][0].tick)
}

func TestDualCommandSender_WriteCommandBlockCarriesHistory(t *testing.T) {
	s := NewDualCommandSender(4)
	pawn := protocol.ObjectPawnKey(1)
	s.QueueCommand(pawn, 10, newMoveRight())
	s.QueueCommand(pawn, 11, newMoveRight())

	w := wire.NewWriter()
	ok := s.WriteCommandBlock(w, pawn, 1)
	require.True(t, ok)
	require.Greater(t, w.Len(), 0)
}

func TestDualCommandSender_EmptyPawnWritesNothing(t *testing.T) {
	s := NewDualCommandSender(4)
	w := wire.NewWriter()
	ok := s.WriteCommandBlock(w, protocol.ObjectPawnKey(99), 1)
	require.False(t, ok)
}
