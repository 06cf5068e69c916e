package ping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManager_ShouldSendPingRespectsInterval(t *testing.T) {
	m := NewManager(100*time.Millisecond, 19) // alpha 0.1
	t0 := time.Now()
	require.True(t, m.ShouldSendPing(t0))

	_, _ = m.BuildPing(t0)
	require.False(t, m.ShouldSendPing(t0.Add(10*time.Millisecond)))
	require.True(t, m.ShouldSendPing(t0.Add(200*time.Millisecond)))
}

func TestManager_ProcessPongSamplesRTT(t *testing.T) {
	m := NewManager(time.Second, 3) // alpha 0.5
	t0 := time.Now()
	_, payload := m.BuildPing(t0)

	ok := m.ProcessPong(payload, t0.Add(40*time.Millisecond))
	require.True(t, ok)
	require.Equal(t, 40*time.Millisecond, m.RTT())
	require.Equal(t, time.Duration(0), m.Jitter())
	require.Equal(t, 0, m.PendingCount())
}

func TestManager_ZeroSampleSizeDefaults(t *testing.T) {
	m := NewManager(time.Second, 0)
	require.Equal(t, 2.0/(float64(DefaultSampleSize)+1), m.alpha)
}

func TestManager_UnknownPongIgnored(t *testing.T) {
	m := NewManager(time.Second, 3) // alpha 0.5
	payload := make([]byte, 8)
	ok := m.ProcessPong(payload, time.Now())
	require.False(t, ok)
}

func TestManager_JitterTracksDeviation(t *testing.T) {
	m := NewManager(time.Second, 3) // alpha 0.5
	t0 := time.Now()

	_, p1 := m.BuildPing(t0)
	m.ProcessPong(p1, t0.Add(40*time.Millisecond))

	_, p2 := m.BuildPing(t0)
	m.ProcessPong(p2, t0.Add(80*time.Millisecond))

	require.Greater(t, m.Jitter(), time.Duration(0))
}

func TestManager_DuplicatePongRejected(t *testing.T) {
	m := NewManager(time.Second, 3) // alpha 0.5
	t0 := time.Now()
	_, payload := m.BuildPing(t0)

	require.True(t, m.ProcessPong(payload, t0.Add(time.Millisecond)))
	require.False(t, m.ProcessPong(payload, t0.Add(2*time.Millisecond)))
}
