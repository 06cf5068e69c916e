package tick

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManager_MarkFrameOncePerInterval(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	t0 := time.Now()

	require.False(t, m.MarkFrame(t0)) // establishes the clock, no tick yet

	require.False(t, m.MarkFrame(t0.Add(3*time.Millisecond)))
	require.True(t, m.MarkFrame(t0.Add(11*time.Millisecond)))
	require.Equal(t, uint16(1), m.ClientTick())

	require.False(t, m.MarkFrame(t0.Add(12*time.Millisecond)))
	require.True(t, m.MarkFrame(t0.Add(25*time.Millisecond)))
	require.Equal(t, uint16(2), m.ClientTick())
}

func TestManager_Interpolation(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	t0 := time.Now()
	m.MarkFrame(t0)

	require.InDelta(t, 0.5, m.Interpolation(t0.Add(5*time.Millisecond)), 0.01)
}

func TestManager_RecordServerTick(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	m.RecordServerTick(100, 40*time.Millisecond, 5*time.Millisecond)

	// half-RTT = 20ms, + jitter 5ms = 25ms -> ceil(25/20) = 2 ticks, + margin 1 = 3
	got, ok := m.ServerTick()
	require.True(t, ok)
	require.Equal(t, uint16(103), got)
}

func TestManager_ServerTickUnsetBeforeFirstSample(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	_, ok := m.ServerTick()
	require.False(t, ok)
}
