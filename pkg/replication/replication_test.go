package replication

import (
	"testing"

	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/wire"
	"github.com/stretchr/testify/require"
)

type counter struct {
	mask *protocol.StateMask
	N    *protocol.Property[int32]
}

func newCounter() protocol.Replicate {
	mask := protocol.NewStateMask(1)
	return &counter{mask: mask, N: protocol.NewI32Property(0, mask, 0)}
}

func (c *counter) NaiaId() protocol.NaiaId   { return 0 }
func (c *counter) Guaranteed() bool          { return true }
func (c *counter) Mask() *protocol.StateMask { return c.mask }
func (c *counter) WriteFull(w *wire.Writer)  { c.N.WriteFull(w) }
func (c *counter) ReadFull(r *wire.Reader) error {
	return c.N.ReadFull(r)
}
func (c *counter) WriteUpdate(w *wire.Writer, m *protocol.StateMask) { c.N.WriteIfDirty(w, m) }
func (c *counter) ReadUpdate(r *wire.Reader, m *protocol.StateMask) error {
	return c.N.ReadIfDirty(r, m)
}
func (c *counter) Clone() protocol.Replicate {
	cp := newCounter().(*counter)
	cp.N.SetSilent(c.N.Get())
	return cp
}

// tally is a second registered variant (NaiaId 1) with counter's layout,
// for tests that need two distinct component types.
type tally struct{ *counter }

func newTally() protocol.Replicate { return &tally{newCounter().(*counter)} }

func (t *tally) NaiaId() protocol.NaiaId { return 1 }

func newManifest(t *testing.T) *protocol.Manifest {
	b := protocol.NewManifestBuilder()
	_, err := b.Register(newCounter)
	require.NoError(t, err)
	_, err = b.Register(newTally)
	require.NoError(t, err)
	return b.Build()
}

// sendOneReliableAction places the sender's head reliable action (if any)
// into a fresh packet and returns the packet index used, or false if there
// was nothing to send.
func sendOneReliableAction(s *Sender, packetIndex uint16) (Action, bool) {
	action, ok := s.NextReliableAction()
	if !ok {
		return Action{}, false
	}
	s.ConfirmPlaced(packetIndex)
	return action, true
}

// Scenario S1 (spec §8): reliable create under 50% loss — every other
// outgoing packet is dropped; the receiver must end up with exactly one
// CreateObject for the identical payload.
func TestScenarioS1_ReliableCreateUnderLoss(t *testing.T) {
	manifest := newManifest(t)
	sender := NewSender(manifest)
	receiver := NewReceiver(manifest)

	obj := newCounter().(*counter)
	obj.N.SetSilent(0x0102)
	key, err := sender.SpawnObject(obj)
	require.NoError(t, err)

	var packetIdx uint16
	delivered := false
	for attempt := 0; attempt < 5 && !delivered; attempt++ {
		action, ok := sendOneReliableAction(sender, packetIdx)
		require.True(t, ok)

		dropped := attempt%2 == 0 // drop every other attempt
		if dropped {
			sender.NotifyActionDropped(packetIdx)
		} else {
			w := wire.NewWriter()
			w.WriteU8(1)
			EncodeAction(w, action)
			require.NoError(t, receiver.DecodeBlock(wire.NewReader(w.Bytes())))
			sender.NotifyActionDelivered(packetIdx)
			delivered = true
		}
		packetIdx++
	}

	require.True(t, delivered)
	ev, ok := receiver.PopEvent()
	require.True(t, ok)
	require.Equal(t, ActionCreateObject, ev.Type)
	require.Equal(t, int32(0x0102), ev.Value.(*counter).N.Get())

	_, more := receiver.PopEvent()
	require.False(t, more)
	_ = key
}

func TestLocality_NeverSkipsStates(t *testing.T) {
	s := LocalityCreating
	require.Equal(t, LocalityCreating, s.MarkDelete()) // can't delete while Creating
	s = s.AdvanceOnCreateAck()
	require.Equal(t, LocalityCreated, s)
	s = s.MarkDelete()
	require.Equal(t, LocalityDeleting, s)
	s = s.AdvanceOnDeleteAck()
	require.Equal(t, LocalityDestroyed, s)
}

func TestKeyAllocator_NoReuseBeforeFree(t *testing.T) {
	a := newKeyAllocator()
	k1, err := a.Allocate()
	require.NoError(t, err)
	k2, err := a.Allocate()
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)

	a.Free(k1)
	k3, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, k1, k3) // only reissued after explicit Free
}

// Scenario S5 (spec §8): entity spawn with components then despawn; no
// AddComponent or update may appear after DeleteEntity, and CreateEntity
// must precede everything else for that entity.
func TestScenarioS5_EntityDeleteOrdering(t *testing.T) {
	manifest := newManifest(t)
	sender := NewSender(manifest)
	receiver := NewReceiver(manifest)

	compA := newCounter().(*counter)
	compA.N.SetSilent(1)
	compB := newTally().(*tally)
	compB.N.SetSilent(2)

	entityKey, err := sender.SpawnEntity(map[protocol.NaiaId]protocol.Replicate{
		0: compA,
		1: compB,
	})
	require.NoError(t, err)

	// Deliver the CreateEntity.
	action, ok := sendOneReliableAction(sender, 0)
	require.True(t, ok)
	w := wire.NewWriter()
	w.WriteU8(1)
	EncodeAction(w, action)
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w.Bytes())))
	sender.NotifyActionDelivered(0)

	sender.DespawnEntity(entityKey)
	action2, ok := sendOneReliableAction(sender, 1)
	require.True(t, ok)
	w2 := wire.NewWriter()
	w2.WriteU8(1)
	EncodeAction(w2, action2)
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w2.Bytes())))
	sender.NotifyActionDelivered(1)

	ev1, ok := receiver.PopEvent()
	require.True(t, ok)
	require.Equal(t, ActionCreateEntity, ev1.Type)
	require.Len(t, ev1.Components, 2)

	ev2, ok := receiver.PopEvent()
	require.True(t, ok)
	require.Equal(t, ActionDeleteEntity, ev2.Type)

	_, more := receiver.PopEvent()
	require.False(t, more)
}

// Spec §4.7/§6: AssignPawn/UnassignPawn must round-trip as both a wire
// action and a receiver-side event, the same as every other action type.
func TestAssignUnassignPawn_RoundTrip(t *testing.T) {
	manifest := newManifest(t)
	sender := NewSender(manifest)
	receiver := NewReceiver(manifest)

	obj := newCounter()
	key, err := sender.SpawnObject(obj)
	require.NoError(t, err)

	action, ok := sendOneReliableAction(sender, 0)
	require.True(t, ok)
	w := wire.NewWriter()
	w.WriteU8(1)
	EncodeAction(w, action)
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w.Bytes())))
	sender.NotifyActionDelivered(0)
	_, _ = receiver.PopEvent() // drain the CreateObject event

	pawn := protocol.ObjectPawnKey(key)
	sender.AssignPawn(pawn)

	action2, ok := sendOneReliableAction(sender, 1)
	require.True(t, ok)
	require.Equal(t, ActionAssignPawn, action2.Type)
	w2 := wire.NewWriter()
	w2.WriteU8(1)
	EncodeAction(w2, action2)
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w2.Bytes())))

	ev, ok := receiver.PopEvent()
	require.True(t, ok)
	require.Equal(t, ActionAssignPawn, ev.Type)
	require.Equal(t, pawn, ev.Pawn)

	sender.NotifyActionDelivered(1)
	sender.UnassignPawn(pawn)
	action3, ok := sendOneReliableAction(sender, 2)
	require.True(t, ok)
	require.Equal(t, ActionUnassignPawn, action3.Type)
	w3 := wire.NewWriter()
	w3.WriteU8(1)
	EncodeAction(w3, action3)
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w3.Bytes())))

	ev2, ok := receiver.PopEvent()
	require.True(t, ok)
	require.Equal(t, ActionUnassignPawn, ev2.Type)
	require.Equal(t, pawn, ev2.Pawn)
}

// AssignPawn targeting an object that was never spawned on this sender must
// not queue anything (spec §4.7: actions only reference live local keys).
func TestAssignPawn_UnknownTargetIsNoop(t *testing.T) {
	manifest := newManifest(t)
	sender := NewSender(manifest)
	sender.AssignPawn(protocol.ObjectPawnKey(99))
	_, ok := sender.NextReliableAction()
	require.False(t, ok)
}

// Finding: a component's post-creation writes were previously silently
// dropped (Sender only ever delta-extracted objects, never components).
// NextComponentUpdate/ConfirmComponentUpdateSent must coalesce and deliver
// a component's dirty fields the same way NextUpdate does for objects.
func TestComponentUpdate_DeliversDirtyFields(t *testing.T) {
	manifest := newManifest(t)
	sender := NewSender(manifest)
	receiver := NewReceiver(manifest)

	comp := newCounter().(*counter)
	_, err := sender.SpawnEntity(map[protocol.NaiaId]protocol.Replicate{0: comp})
	require.NoError(t, err)

	action, ok := sendOneReliableAction(sender, 0)
	require.True(t, ok)
	w := wire.NewWriter()
	w.WriteU8(1)
	EncodeAction(w, action)
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w.Bytes())))
	sender.NotifyActionDelivered(0)

	createEv, ok := receiver.PopEvent()
	require.True(t, ok)
	require.Equal(t, ActionCreateEntity, createEv.Type)
	compKey := createEv.Components[0].LocalKey

	var compKeyOnSender protocol.LocalComponentKey
	for k := range sender.components {
		compKeyOnSender = k
	}
	comp.N.Set(42)
	sender.MarkComponentDirty(compKeyOnSender)

	key, updateAction, ok := sender.NextComponentUpdate()
	require.True(t, ok)
	require.True(t, updateAction.ComponentTarget)

	w2 := wire.NewWriter()
	w2.WriteU8(1)
	EncodeAction(w2, updateAction)
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w2.Bytes())))
	sender.ConfirmComponentUpdateSent(key, updateAction.Mask)

	updateEv, ok := receiver.PopEvent()
	require.True(t, ok)
	require.True(t, updateEv.ComponentTarget)
	require.Equal(t, compKey, updateEv.Component.LocalKey)

	gotValue, ok := receiver.components[compKey]
	require.True(t, ok)
	require.Equal(t, int32(42), gotValue.(*counter).N.Get())

	_, _, pending := sender.NextComponentUpdate()
	require.False(t, pending, "confirmed bits must not resend")
}

// Finding: AddComponent's receiver-side key was fabricated from
// len(rv.components)+1 instead of transmitting the sender's real allocated
// key, which could collide with a still-live component once any
// RemoveComponent had shrunk the map. The wire must now carry and honor the
// sender's real LocalComponentKey.
func TestAddComponent_ReceiverUsesSendersRealKey(t *testing.T) {
	manifest := newManifest(t)
	sender := NewSender(manifest)
	receiver := NewReceiver(manifest)

	entityKey, err := sender.SpawnEntity(nil)
	require.NoError(t, err)
	action, ok := sendOneReliableAction(sender, 0)
	require.True(t, ok)
	w := wire.NewWriter()
	w.WriteU8(1)
	EncodeAction(w, action)
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w.Bytes())))
	sender.NotifyActionDelivered(0)
	_, _ = receiver.PopEvent() // CreateEntity

	require.NoError(t, sender.AddComponent(entityKey, 0, newCounter()))
	addAction, ok := sendOneReliableAction(sender, 1)
	require.True(t, ok)
	require.Equal(t, protocol.LocalComponentKey(0), addAction.CompKey) // first key from a fresh allocator

	w2 := wire.NewWriter()
	w2.WriteU8(1)
	EncodeAction(w2, addAction)
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w2.Bytes())))

	ev, ok := receiver.PopEvent()
	require.True(t, ok)
	require.Equal(t, ActionAddComponent, ev.Type)
	require.Equal(t, addAction.CompKey, ev.Component.LocalKey, "receiver must honor the sender's real allocated key")
}

func TestReceiver_DuplicateCreateIsProtocolViolation(t *testing.T) {
	manifest := newManifest(t)
	receiver := NewReceiver(manifest)

	obj := newCounter().(*counter)
	w := wire.NewWriter()
	w.WriteU8(1)
	EncodeAction(w, Action{Type: ActionCreateObject, ObjectKey: 5, NaiaID: 0, Value: obj})
	require.NoError(t, receiver.DecodeBlock(wire.NewReader(w.Bytes())))

	w2 := wire.NewWriter()
	w2.WriteU8(1)
	EncodeAction(w2, Action{Type: ActionCreateObject, ObjectKey: 5, NaiaID: 0, Value: obj})
	err := receiver.DecodeBlock(wire.NewReader(w2.Bytes()))
	require.Error(t, err)
}
