package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequenceBuffer_InsertGetRemove(t *testing.T) {
	buf := NewSequenceBuffer(8)
	buf.Insert(3, "three")
	buf.Insert(11, "eleven") // wraps into the same slot as 3 (11 % 8 == 3)

	v, ok := buf.Get(11)
	require.True(t, ok)
	require.Equal(t, "eleven", v)

	// The eviction of slot 3's prior occupant means sequence 3 no longer exists.
	require.False(t, buf.Exists(3))

	buf.Remove(11)
	require.False(t, buf.Exists(11))
}

func TestSequenceBuffer_GetMissing(t *testing.T) {
	buf := NewSequenceBuffer(4)
	_, ok := buf.Get(0)
	require.False(t, ok)
}

func TestTickQueue_OrdersByTickNotArrival(t *testing.T) {
	q := NewTickQueue()
	// Scenario S4: server ticks 50, 51, 52 arrive in order 52, 50, 51.
	q.AddItem(52, "p52")
	q.AddItem(50, "p50")
	q.AddItem(51, "p51")

	var order []string
	for {
		_, payload, ok := q.PopItem(52)
		if !ok {
			break
		}
		order = append(order, payload.(string))
	}
	require.Equal(t, []string{"p50", "p51", "p52"}, order)
}

func TestTickQueue_HoldsFutureItems(t *testing.T) {
	q := NewTickQueue()
	q.AddItem(10, "future")
	_, _, ok := q.PopItem(9)
	require.False(t, ok)
	_, payload, ok := q.PopItem(10)
	require.True(t, ok)
	require.Equal(t, "future", payload)
}

func TestTickQueue_WrapsAcrossBoundary(t *testing.T) {
	q := NewTickQueue()
	q.AddItem(65535, "last")
	q.AddItem(0, "first")
	_, p1, _ := q.PopItem(0)
	require.Equal(t, "last", p1)
	_, p2, _ := q.PopItem(0)
	require.Equal(t, "first", p2)
}
