package replication

import (
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/wire"
)

// objectSlot is the sender's bookkeeping for one replicated object: its
// current value, locality status, and the mask of fields pending an update
// send (spec §4.7 "Delta extraction").
type objectSlot struct {
	value       protocol.Replicate
	status      LocalityStatus
	pending     *protocol.StateMask
	wantsDelete bool // despawn requested while still Creating; deferred (spec §3)
}

// componentSlot is the sender's bookkeeping for one attached component's
// current value and pending delta mask, mirroring objectSlot (Glossary
// "Component: a replicate attached to an entity"; spec §4.7 step 2 delta
// extraction applies to components the same as objects).
type componentSlot struct {
	value   protocol.Replicate
	pending *protocol.StateMask
}

// Sender is the server-per-connection half of the replication manager. It
// tracks every in-scope object/entity/component, extracts coalesced deltas,
// and keeps exactly one reliable Create/Delete/AddComponent/RemoveComponent
// action in flight per key (spec §4.7).
type Sender struct {
	manifest *protocol.Manifest

	objectKeys keyAllocator
	entityKeys keyAllocator
	compKeys   keyAllocator

	objects    map[protocol.LocalObjectKey]*objectSlot
	entities   *EntityTable
	components map[protocol.LocalComponentKey]*componentSlot

	// reliableQueue holds Create/Delete/AddComponent/RemoveComponent actions
	// not yet placed in a packet.
	reliableQueue []Action
	// inFlight holds, per key, the single reliable action currently awaiting
	// ack (spec §4.7: "a single action is in flight per key at a time").
	inFlight map[pendingKey]Action
}

// NewSender creates an empty sender bound to manifest.
func NewSender(manifest *protocol.Manifest) *Sender {
	return &Sender{
		manifest:   manifest,
		objects:    make(map[protocol.LocalObjectKey]*objectSlot),
		entities:   NewEntityTable(),
		components: make(map[protocol.LocalComponentKey]*componentSlot),
		inFlight:   make(map[pendingKey]Action),
	}
}

// SpawnObject allocates a local key for value and queues a reliable Create
// (spec §4.7 step 1 "Entering scope queues a Create"). Returns
// ErrKeySpaceExhausted if the key space is full.
func (s *Sender) SpawnObject(value protocol.Replicate) (protocol.LocalObjectKey, error) {
	raw, err := s.objectKeys.Allocate()
	if err != nil {
		return 0, err
	}
	key := protocol.LocalObjectKey(raw)
	id, _ := s.manifest.IDOf(value)
	s.objects[key] = &objectSlot{value: value, status: LocalityCreating, pending: protocol.NewStateMask(value.Mask().Size())}

	s.reliableQueue = append(s.reliableQueue, Action{
		Type: ActionCreateObject, ObjectKey: key, NaiaID: id, Value: value,
	})
	return key, nil
}

// DespawnObject queues a Delete, deferring it if the object's Create is
// still unacknowledged (spec §3: "server defers the delete until Created").
func (s *Sender) DespawnObject(key protocol.LocalObjectKey) {
	slot, ok := s.objects[key]
	if !ok {
		return
	}
	if slot.status != LocalityCreated {
		// still Creating: defer until applyDeliveredTransition sees the create ack.
		slot.wantsDelete = true
		return
	}
	slot.status = slot.status.MarkDelete()
	s.reliableQueue = append(s.reliableQueue, Action{
		Type: ActionDeleteObject, ObjectKey: key, Value: slot.value,
	})
}

// SpawnEntity allocates an entity key and queues a reliable CreateEntity
// carrying the given components, which are attached to the entity record up
// front since the component set is frozen once Deleting begins (spec §3,
// §4.7 ordering rule: "CreateEntity -> AddComponent* ... component adds
// never precede the containing CreateEntity").
func (s *Sender) SpawnEntity(components map[protocol.NaiaId]protocol.Replicate) (protocol.LocalEntityKey, error) {
	rawEntity, err := s.entityKeys.Allocate()
	if err != nil {
		return 0, err
	}
	entityKey := protocol.LocalEntityKey(rawEntity)
	rec := s.entities.Insert(entityKey)

	var entries []EntityComponentEntry
	action := Action{Type: ActionCreateEntity, EntityKey: entityKey}
	for naiaID, value := range components {
		rawComp, err := s.compKeys.Allocate()
		if err != nil {
			return 0, err
		}
		compKey := protocol.LocalComponentKey(rawComp)
		rec.AddComponent(naiaID, compKey)
		s.components[compKey] = &componentSlot{value: value, pending: protocol.NewStateMask(value.Mask().Size())}
		entries = append(entries, EntityComponentEntry{LocalKey: compKey, Type: naiaID, Value: value})
	}
	action.ComponentKeys = entries

	s.reliableQueue = append(s.reliableQueue, action)
	return entityKey, nil
}

// DespawnEntity queues a reliable DeleteEntity for an entity whose create
// has been acknowledged (spec §3). For an unknown entity or one still
// Creating it does nothing: unlike DespawnObject, the request is not
// recorded and is not applied once the create is acknowledged.
func (s *Sender) DespawnEntity(key protocol.LocalEntityKey) {
	rec, ok := s.entities.Get(key)
	if !ok || rec.Status != LocalityCreated {
		return
	}
	rec.Status = rec.Status.MarkDelete()
	s.reliableQueue = append(s.reliableQueue, Action{Type: ActionDeleteEntity, EntityKey: key})
}

// AddComponent queues a reliable AddComponent for an already-Created entity
// (spec §6 "AddComponent(entity_key, component_key, variant)"). A no-op if
// the entity isn't in a state that can accept new components (spec §3:
// component set frozen once Deleting).
func (s *Sender) AddComponent(entityKey protocol.LocalEntityKey, naiaID protocol.NaiaId, value protocol.Replicate) error {
	rec, ok := s.entities.Get(entityKey)
	if !ok || rec.Status != LocalityCreated {
		return nil
	}
	rawComp, err := s.compKeys.Allocate()
	if err != nil {
		return err
	}
	compKey := protocol.LocalComponentKey(rawComp)
	rec.AddComponent(naiaID, compKey)
	s.components[compKey] = &componentSlot{value: value, pending: protocol.NewStateMask(value.Mask().Size())}

	s.reliableQueue = append(s.reliableQueue, Action{
		Type:      ActionAddComponent,
		EntityKey: entityKey,
		Component: protocol.ComponentKey{Entity: entityKey, Type: naiaID},
		CompKey:   compKey,
		NaiaID:    naiaID,
		Value:     value,
	})
	return nil
}

// RemoveComponent queues a reliable RemoveComponent.
func (s *Sender) RemoveComponent(entityKey protocol.LocalEntityKey, naiaID protocol.NaiaId) {
	rec, ok := s.entities.Get(entityKey)
	if !ok {
		return
	}
	if compKey, ok := rec.Components[naiaID]; ok {
		delete(s.components, compKey)
	}
	rec.RemoveComponent(naiaID)
	s.reliableQueue = append(s.reliableQueue, Action{
		Type:      ActionRemoveComponent,
		EntityKey: entityKey,
		Component: protocol.ComponentKey{Entity: entityKey, Type: naiaID},
	})
}

// AssignPawn queues a reliable AssignPawn, making pawn's target client
// predicted (spec §4.7/§6 "AssignPawn(key)"). A no-op if pawn's target
// isn't a live, Created object/entity.
func (s *Sender) AssignPawn(pawn protocol.PawnKey) {
	if !s.pawnTargetLive(pawn) {
		return
	}
	s.reliableQueue = append(s.reliableQueue, Action{Type: ActionAssignPawn, Pawn: pawn})
}

// UnassignPawn queues a reliable UnassignPawn, releasing pawn's target from
// client prediction (spec §4.7/§6 "UnassignPawn(key)").
func (s *Sender) UnassignPawn(pawn protocol.PawnKey) {
	if !s.pawnTargetLive(pawn) {
		return
	}
	s.reliableQueue = append(s.reliableQueue, Action{Type: ActionUnassignPawn, Pawn: pawn})
}

func (s *Sender) pawnTargetLive(pawn protocol.PawnKey) bool {
	switch pawn.Kind {
	case protocol.PawnKindObject:
		slot, ok := s.objects[pawn.Object]
		return ok && slot.status == LocalityCreated
	case protocol.PawnKindEntity:
		rec, ok := s.entities.Get(pawn.Entity)
		return ok && rec.Status == LocalityCreated
	default:
		return false
	}
}

// MarkDirty should be called whenever the application mutates an in-scope
// object's properties; it folds the object's current mask into the pending
// coalesced mask (spec §4.7 step 2).
func (s *Sender) MarkDirty(key protocol.LocalObjectKey) {
	slot, ok := s.objects[key]
	if !ok || slot.status != LocalityCreated {
		return
	}
	slot.pending.Union(slot.value.Mask())
}

// MarkComponentDirty should be called whenever the application mutates an
// attached component's properties; it folds the component's current mask
// into its pending coalesced mask, the same delta-extraction path objects
// get via MarkDirty (spec §4.7 step 2, Glossary "Component").
func (s *Sender) MarkComponentDirty(key protocol.LocalComponentKey) {
	slot, ok := s.components[key]
	if !ok {
		return
	}
	slot.pending.Union(slot.value.Mask())
}

// NextComponentUpdate returns one attached component whose pending mask is
// nonzero, for the caller to place as a component-targeted ActionUpdateObject
// (spec §4.7 step 2). Mirrors NextUpdate/ConfirmUpdateSent's reservation
// pattern: the mask is cleared only once ConfirmComponentUpdateSent confirms
// the send.
func (s *Sender) NextComponentUpdate() (key protocol.LocalComponentKey, action Action, ok bool) {
	for k, slot := range s.components {
		if !slot.pending.IsClean() {
			return k, Action{Type: ActionUpdateObject, ComponentTarget: true, CompKey: k, Value: slot.value, Mask: slot.pending.Clone()}, true
		}
	}
	return 0, Action{}, false
}

// ConfirmComponentUpdateSent clears the bits just placed in a packet for
// component key, preserving any newer dirty bits the same way
// ConfirmUpdateSent does for objects.
func (s *Sender) ConfirmComponentUpdateSent(key protocol.LocalComponentKey, sentMask *protocol.StateMask) {
	slot, ok := s.components[key]
	if !ok {
		return
	}
	cleared := slot.pending.Clone()
	cleared.Subtract(sentMask)
	slot.pending = cleared
}

// NextReliableAction returns the next reliable action not yet placed into a
// packet, without removing it from the queue — call ConfirmPlaced once it
// has actually been written (reservation pattern, spec §4.5/§4.7).
func (s *Sender) NextReliableAction() (Action, bool) {
	if len(s.reliableQueue) == 0 {
		return Action{}, false
	}
	return s.reliableQueue[0], true
}

// ConfirmPlaced removes the head reliable action from the queue and records
// it as in flight under packetIndex.
func (s *Sender) ConfirmPlaced(packetIndex uint16) {
	if len(s.reliableQueue) == 0 {
		return
	}
	action := s.reliableQueue[0]
	s.reliableQueue = s.reliableQueue[1:]
	action.packetIndex = packetIndex
	s.inFlight[keyOf(action)] = action
}

// NextUpdate returns one in-scope object whose pending mask is nonzero, for
// the caller to place as an UpdateObject action. The mask is NOT cleared
// here; call ConfirmUpdateSent on success or leave it untouched on failure
// so drops naturally coalesce (spec §4.7 step 2).
func (s *Sender) NextUpdate() (key protocol.LocalObjectKey, action Action, ok bool) {
	for k, slot := range s.objects {
		if slot.status == LocalityCreated && !slot.pending.IsClean() {
			return k, Action{Type: ActionUpdateObject, ObjectKey: k, Value: slot.value, Mask: slot.pending.Clone()}, true
		}
	}
	return 0, Action{}, false
}

// ConfirmUpdateSent clears the bits that were just placed in a packet. If
// the object was mutated again since NextUpdate was called, only the
// snapshot's bits are cleared, preserving any newer dirty bits.
func (s *Sender) ConfirmUpdateSent(key protocol.LocalObjectKey, sentMask *protocol.StateMask) {
	slot, ok := s.objects[key]
	if !ok {
		return
	}
	cleared := slot.pending.Clone()
	cleared.Subtract(sentMask)
	slot.pending = cleared
}

// NotifyActionDelivered advances the locality state machine for a
// confirmed reliable action (spec §4.7 "delivered -> advance the key's
// locality state").
func (s *Sender) NotifyActionDelivered(packetIndex uint16) {
	for pk, action := range s.inFlight {
		if action.packetIndex != packetIndex {
			continue
		}
		delete(s.inFlight, pk)
		s.applyDeliveredTransition(action)
	}
}

func (s *Sender) applyDeliveredTransition(action Action) {
	switch action.Type {
	case ActionCreateObject:
		if slot, ok := s.objects[action.ObjectKey]; ok {
			slot.status = slot.status.AdvanceOnCreateAck()
			if slot.wantsDelete {
				slot.wantsDelete = false
				s.DespawnObject(action.ObjectKey)
			}
		}
	case ActionDeleteObject:
		if slot, ok := s.objects[action.ObjectKey]; ok {
			slot.status = slot.status.AdvanceOnDeleteAck()
			delete(s.objects, action.ObjectKey)
			s.objectKeys.Free(uint16(action.ObjectKey))
		}
	case ActionCreateEntity:
		if rec, ok := s.entities.Get(action.EntityKey); ok {
			rec.Status = rec.Status.AdvanceOnCreateAck()
		}
	case ActionDeleteEntity:
		if rec, ok := s.entities.Get(action.EntityKey); ok {
			rec.Status = rec.Status.AdvanceOnDeleteAck()
			for _, compKey := range rec.Components {
				s.compKeys.Free(uint16(compKey))
				delete(s.components, compKey)
			}
			s.entities.Remove(action.EntityKey)
			s.entityKeys.Free(uint16(action.EntityKey))
		}
	}
}

// NotifyActionDropped re-queues a reliable action for resend (spec §4.7
// "Dropped -> resend").
func (s *Sender) NotifyActionDropped(packetIndex uint16) {
	for pk, action := range s.inFlight {
		if action.packetIndex != packetIndex {
			continue
		}
		delete(s.inFlight, pk)
		s.reliableQueue = append(s.reliableQueue, action)
	}
}

// EncodeAction serializes one action per the replicate manager block layout
// (spec §6).
func EncodeAction(w *wire.Writer, a Action) {
	w.WriteU8(uint8(a.Type))
	switch a.Type {
	case ActionCreateObject:
		w.WriteU16(uint16(a.ObjectKey))
		w.WriteU16(uint16(a.NaiaID))
		body := wire.NewWriter()
		a.Value.WriteFull(body)
		w.WriteBytes(body.Bytes())
	case ActionUpdateObject:
		w.WriteU8(boolToU8(a.ComponentTarget))
		if a.ComponentTarget {
			w.WriteU16(uint16(a.CompKey))
		} else {
			w.WriteU16(uint16(a.ObjectKey))
		}
		a.Mask.WriteTo(w)
		body := wire.NewWriter()
		a.Value.WriteUpdate(body, a.Mask)
		w.WriteBytes(body.Bytes())
	case ActionDeleteObject:
		w.WriteU16(uint16(a.ObjectKey))
	case ActionAssignPawn, ActionUnassignPawn:
		a.Pawn.WriteTo(w)
	case ActionCreateEntity:
		w.WriteU16(uint16(a.EntityKey))
		w.WriteU8(uint8(len(a.ComponentKeys)))
		for _, entry := range a.ComponentKeys {
			w.WriteU16(uint16(entry.LocalKey))
			w.WriteU16(uint16(entry.Type))
			body := wire.NewWriter()
			entry.Value.WriteFull(body)
			w.WriteBytes(body.Bytes())
		}
	case ActionDeleteEntity:
		w.WriteU16(uint16(a.EntityKey))
	case ActionAddComponent:
		w.WriteU16(uint16(a.Component.Entity))
		w.WriteU16(uint16(a.CompKey))
		w.WriteU16(uint16(a.NaiaID))
		body := wire.NewWriter()
		a.Value.WriteFull(body)
		w.WriteBytes(body.Bytes())
	case ActionRemoveComponent:
		w.WriteU16(uint16(a.Component.Entity))
		w.WriteU16(uint16(a.Component.Type))
	}
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func keyOf(a Action) pendingKey {
	switch a.Type {
	case ActionAssignPawn, ActionUnassignPawn:
		return pendingKey{kind: a.Type, obj: a.Pawn.Object, ent: a.Pawn.Entity}
	default:
		return pendingKey{kind: a.Type, obj: a.ObjectKey, ent: a.EntityKey, comp: a.Component}
	}
}

// LiveObjectKeys reports how many object local keys are currently in use,
// for metrics reporting (spec §4.12).
func (s *Sender) LiveObjectKeys() int { return s.objectKeys.Live() }

// LiveEntityKeys reports how many entity local keys are currently in use.
func (s *Sender) LiveEntityKeys() int { return s.entityKeys.Live() }
