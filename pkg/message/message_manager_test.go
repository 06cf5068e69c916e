package message

import (
	"testing"

	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/wire"
	"github.com/stretchr/testify/require"
)

type chatMsg struct {
	mask *protocol.StateMask
	Text *protocol.Property[string]
}

func newChatMsg() protocol.Replicate {
	mask := protocol.NewStateMask(1)
	return &chatMsg{mask: mask, Text: protocol.NewStringProperty(0, mask, "")}
}

func (c *chatMsg) NaiaId() protocol.NaiaId      { return 0 }
func (c *chatMsg) Guaranteed() bool             { return true }
func (c *chatMsg) Mask() *protocol.StateMask    { return c.mask }
func (c *chatMsg) WriteFull(w *wire.Writer)     { c.Text.WriteFull(w) }
func (c *chatMsg) ReadFull(r *wire.Reader) error { return c.Text.ReadFull(r) }
func (c *chatMsg) WriteUpdate(w *wire.Writer, m *protocol.StateMask) { c.Text.WriteIfDirty(w, m) }
func (c *chatMsg) ReadUpdate(r *wire.Reader, m *protocol.StateMask) error {
	return c.Text.ReadIfDirty(r, m)
}
func (c *chatMsg) Clone() protocol.Replicate {
	cp := newChatMsg().(*chatMsg)
	cp.Text.SetSilent(c.Text.Get())
	return cp
}

func newTestManifest(t *testing.T) *protocol.Manifest {
	b := protocol.NewManifestBuilder()
	_, err := b.Register(newChatMsg)
	require.NoError(t, err)
	return b.Build()
}

func TestManager_UnreliableRoundTrip(t *testing.T) {
	manifest := newTestManifest(t)
	m := NewManager(manifest)

	msg := newChatMsg().(*chatMsg)
	msg.Text.Set("hello")
	m.SendUnreliable(Message{ID: 0, Body: msg})

	var written []byte
	ok := m.WriteNext(1, func(body []byte) bool { written = body; return true })
	require.True(t, ok)
	require.Equal(t, 0, m.PendingReliableCount())

	decoded, err := m.Decode(written)
	require.NoError(t, err)
	require.Equal(t, "hello", decoded.Body.(*chatMsg).Text.Get())
}

func TestManager_ReliableResendsOnDrop(t *testing.T) {
	manifest := newTestManifest(t)
	m := NewManager(manifest)

	msg := newChatMsg().(*chatMsg)
	msg.Text.Set("important")
	m.SendReliable(Message{ID: 0, Body: msg})

	ok := m.WriteNext(5, func([]byte) bool { return true })
	require.True(t, ok)
	require.Equal(t, 1, m.PendingReliableCount())

	m.NotifyPacketDropped(5)
	require.Equal(t, 1, m.PendingReliableCount())

	var secondPayload []byte
	ok = m.WriteNext(6, func(body []byte) bool { secondPayload = body; return true })
	require.True(t, ok)

	m.NotifyPacketDelivered(6)
	require.Equal(t, 0, m.PendingReliableCount())

	decoded, err := m.Decode(secondPayload)
	require.NoError(t, err)
	require.Equal(t, "important", decoded.Body.(*chatMsg).Text.Get())
}

func TestManager_DecodeUnknownIDIsProtocolViolation(t *testing.T) {
	manifest := newTestManifest(t)
	m := NewManager(manifest)

	w := wire.NewWriter()
	w.WriteU16(99)
	w.WriteBytes(nil)

	_, err := m.Decode(w.Bytes())
	require.Error(t, err)
}

func TestManager_WriteNextRespectsReservationPattern(t *testing.T) {
	manifest := newTestManifest(t)
	m := NewManager(manifest)

	msg := newChatMsg().(*chatMsg)
	msg.Text.Set("x")
	m.SendReliable(Message{ID: 0, Body: msg})

	ok := m.WriteNext(1, func([]byte) bool { return false })
	require.False(t, ok)
	require.Equal(t, 1, len(m.reliableOut))
	require.Equal(t, 0, len(m.resendQueue))
}
