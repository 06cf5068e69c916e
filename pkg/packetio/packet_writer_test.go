package packetio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriter_TryWriteBlockRoundTrip(t *testing.T) {
	w := NewWriter(1200)
	require.True(t, w.TryWriteBlock(ManagerReplicate, []byte("hello")))
	require.True(t, w.TryWriteBlock(ManagerCommand, []byte("world")))

	blocks, err := ReadBlocks(w.Bytes())
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, ManagerReplicate, blocks[0].Manager)
	require.Equal(t, "hello", string(blocks[0].Body))
	require.Equal(t, ManagerCommand, blocks[1].Manager)
	require.Equal(t, "world", string(blocks[1].Body))
}

// Reservation pattern: an overflowing write must leave the writer untouched
// so the caller can push the item back to its sender queue (spec §4.5).
func TestWriter_OverflowLeavesStateUntouched(t *testing.T) {
	w := NewWriter(10)
	require.True(t, w.TryWriteBlock(ManagerMessage, []byte("ab")))
	before := w.Len()

	ok := w.TryWriteBlock(ManagerMessage, []byte("this body is far too long"))
	require.False(t, ok)
	require.Equal(t, before, w.Len())

	blocks, err := ReadBlocks(w.Bytes())
	require.NoError(t, err)
	require.Len(t, blocks, 1)
}

func TestWriter_RemainingShrinksAsBlocksAreWritten(t *testing.T) {
	w := NewWriter(100)
	start := w.Remaining()
	w.TryWriteBlock(ManagerMessage, []byte("xyz"))
	require.Less(t, w.Remaining(), start)
}
