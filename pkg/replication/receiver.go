package replication

import (
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/werrors"
	"github.com/statewire-org/statewire/pkg/wire"
)

// Event is one application-visible replication event, emitted exactly once
// per key transition (spec §6 "Application-visible events", invariant 7).
type Event struct {
	Type ActionType

	ObjectKey protocol.LocalObjectKey
	EntityKey protocol.LocalEntityKey
	Component EntityComponentEntry
	// ComponentTarget marks an ActionUpdateObject event whose Component
	// (not ObjectKey) identifies what changed (spec §4.7 step 2).
	ComponentTarget bool

	Value     protocol.Replicate // decoded full value (Create) or mutated stored value (Update)
	LastValue protocol.Replicate // value at time of delete, for DeleteObject/RemoveComponent

	// Components is populated only on a CreateEntity event, carrying every
	// component attached at creation time (spec §6 "CreateEntity(key,
	// [component_keys])" is a single event, not one AddComponent per
	// component).
	Components []EntityComponentEntry

	// Pawn is populated only on AssignPawn/UnassignPawn events (spec §6
	// "Application-visible events").
	Pawn protocol.PawnKey
}

// Receiver is the client-side half of the replication manager: it parses
// action blocks into incoming_actions, maintains local_key -> replicate
// tables, and rejects protocol violations (spec §4.7 receiver side).
type Receiver struct {
	manifest *protocol.Manifest

	objects  map[protocol.LocalObjectKey]protocol.Replicate
	entities *EntityTable
	// components maps a component's own local key to its decoded value, so
	// RemoveComponent/Update can find it without re-deriving from the entity.
	components map[protocol.LocalComponentKey]protocol.Replicate

	incoming []Event
}

// NewReceiver creates an empty receiver bound to manifest.
func NewReceiver(manifest *protocol.Manifest) *Receiver {
	return &Receiver{
		manifest:   manifest,
		objects:    make(map[protocol.LocalObjectKey]protocol.Replicate),
		entities:   NewEntityTable(),
		components: make(map[protocol.LocalComponentKey]protocol.Replicate),
	}
}

// DecodeBlock parses a full replicate-manager block (spec §6
// "action_count:u8, repeated: ...") in order, applying each action and
// appending the corresponding Event to incoming. Stops on the first
// malformed or rule-violating action (spec §4.7 step 3, §7): a truncated
// block returns the wire.Reader's error, a rule violation a
// *werrors.ProtocolViolation.
func (rv *Receiver) DecodeBlock(r *wire.Reader) error {
	count, err := r.ReadU8()
	if err != nil {
		return err
	}
	for i := uint8(0); i < count; i++ {
		tag, err := r.ReadU8()
		if err != nil {
			return err
		}
		if err := rv.decodeOne(ActionType(tag), r); err != nil {
			return err
		}
	}
	return nil
}

func (rv *Receiver) decodeOne(t ActionType, r *wire.Reader) error {
	switch t {
	case ActionCreateObject:
		return rv.decodeCreateObject(r)
	case ActionUpdateObject:
		return rv.decodeUpdateObject(r)
	case ActionDeleteObject:
		return rv.decodeDeleteObject(r)
	case ActionAssignPawn:
		return rv.decodePawn(ActionAssignPawn, r)
	case ActionUnassignPawn:
		return rv.decodePawn(ActionUnassignPawn, r)
	case ActionCreateEntity:
		return rv.decodeCreateEntity(r)
	case ActionDeleteEntity:
		return rv.decodeDeleteEntity(r)
	case ActionAddComponent:
		return rv.decodeAddComponent(r)
	case ActionRemoveComponent:
		return rv.decodeRemoveComponent(r)
	default:
		return &werrors.ProtocolViolation{Reason: "unknown replicate action type"}
	}
}

func (rv *Receiver) decodeCreateObject(r *wire.Reader) error {
	rawKey, err := r.ReadU16()
	if err != nil {
		return err
	}
	key := protocol.LocalObjectKey(rawKey)
	id, err := r.ReadU16()
	if err != nil {
		return err
	}
	body, err := r.ReadBytes()
	if err != nil {
		return err
	}
	if _, exists := rv.objects[key]; exists {
		return &werrors.ProtocolViolation{Reason: "duplicate Create for live object key"}
	}
	instance, ok := rv.manifest.Create(protocol.NaiaId(id))
	if !ok {
		return &werrors.ProtocolViolation{Reason: "unknown NaiaId in CreateObject"}
	}
	if err := instance.ReadFull(wire.NewReader(body)); err != nil {
		return err
	}
	rv.objects[key] = instance
	rv.incoming = append(rv.incoming, Event{Type: ActionCreateObject, ObjectKey: key, Value: instance})
	return nil
}

func (rv *Receiver) decodeUpdateObject(r *wire.Reader) error {
	isComponent, err := r.ReadU8()
	if err != nil {
		return err
	}
	rawKey, err := r.ReadU16()
	if err != nil {
		return err
	}

	var instance protocol.Replicate
	var objectKey protocol.LocalObjectKey
	var compKey protocol.LocalComponentKey
	if isComponent != 0 {
		compKey = protocol.LocalComponentKey(rawKey)
		var ok bool
		instance, ok = rv.components[compKey]
		if !ok {
			return &werrors.ProtocolViolation{Reason: "Update for unknown component key"}
		}
	} else {
		objectKey = protocol.LocalObjectKey(rawKey)
		var ok bool
		instance, ok = rv.objects[objectKey]
		if !ok {
			return &werrors.ProtocolViolation{Reason: "Update for unknown object key"}
		}
	}

	mask, err := protocol.ReadStateMask(r, instance.Mask().Size())
	if err != nil {
		return err
	}
	body, err := r.ReadBytes()
	if err != nil {
		return err
	}
	if err := instance.ReadUpdate(wire.NewReader(body), mask); err != nil {
		return err
	}

	ev := Event{Type: ActionUpdateObject, Value: instance, ComponentTarget: isComponent != 0}
	if isComponent != 0 {
		ev.Component = EntityComponentEntry{LocalKey: compKey, Value: instance}
	} else {
		ev.ObjectKey = objectKey
	}
	rv.incoming = append(rv.incoming, ev)
	return nil
}

func (rv *Receiver) decodeDeleteObject(r *wire.Reader) error {
	rawKey, err := r.ReadU16()
	if err != nil {
		return err
	}
	key := protocol.LocalObjectKey(rawKey)
	instance, ok := rv.objects[key]
	if !ok {
		return &werrors.ProtocolViolation{Reason: "Delete for unknown object key"}
	}
	delete(rv.objects, key)
	rv.incoming = append(rv.incoming, Event{Type: ActionDeleteObject, ObjectKey: key, LastValue: instance})
	return nil
}

func (rv *Receiver) decodePawn(t ActionType, r *wire.Reader) error {
	pawn, err := protocol.ReadPawnKey(r)
	if err != nil {
		return err
	}
	rv.incoming = append(rv.incoming, Event{Type: t, Pawn: pawn})
	return nil
}

func (rv *Receiver) decodeCreateEntity(r *wire.Reader) error {
	rawEntity, err := r.ReadU16()
	if err != nil {
		return err
	}
	entityKey := protocol.LocalEntityKey(rawEntity)
	if _, exists := rv.entities.Get(entityKey); exists {
		return &werrors.ProtocolViolation{Reason: "duplicate Create for live entity key"}
	}
	count, err := r.ReadU8()
	if err != nil {
		return err
	}
	rec := rv.entities.Insert(entityKey)
	rec.Status = LocalityCreated

	var entries []EntityComponentEntry
	for i := uint8(0); i < count; i++ {
		rawComp, err := r.ReadU16()
		if err != nil {
			return err
		}
		id, err := r.ReadU16()
		if err != nil {
			return err
		}
		body, err := r.ReadBytes()
		if err != nil {
			return err
		}
		instance, ok := rv.manifest.Create(protocol.NaiaId(id))
		if !ok {
			return &werrors.ProtocolViolation{Reason: "unknown NaiaId in CreateEntity component"}
		}
		if err := instance.ReadFull(wire.NewReader(body)); err != nil {
			return err
		}
		compKey := protocol.LocalComponentKey(rawComp)
		rec.AddComponent(protocol.NaiaId(id), compKey)
		rv.components[compKey] = instance
		entries = append(entries, EntityComponentEntry{LocalKey: compKey, Type: protocol.NaiaId(id), Value: instance})
	}

	rv.incoming = append(rv.incoming, Event{Type: ActionCreateEntity, EntityKey: entityKey, Components: entries})
	return nil
}

func (rv *Receiver) decodeDeleteEntity(r *wire.Reader) error {
	rawEntity, err := r.ReadU16()
	if err != nil {
		return err
	}
	entityKey := protocol.LocalEntityKey(rawEntity)
	rec, ok := rv.entities.Get(entityKey)
	if !ok {
		return &werrors.ProtocolViolation{Reason: "Delete for unknown entity key"}
	}
	for _, compKey := range rec.Components {
		delete(rv.components, compKey)
	}
	rv.entities.Remove(entityKey)
	rv.incoming = append(rv.incoming, Event{Type: ActionDeleteEntity, EntityKey: entityKey})
	return nil
}

func (rv *Receiver) decodeAddComponent(r *wire.Reader) error {
	rawEntity, err := r.ReadU16()
	if err != nil {
		return err
	}
	entityKey := protocol.LocalEntityKey(rawEntity)
	rec, ok := rv.entities.Get(entityKey)
	if !ok {
		return &werrors.ProtocolViolation{Reason: "AddComponent for unknown entity key"}
	}
	rawComp, err := r.ReadU16()
	if err != nil {
		return err
	}
	id, err := r.ReadU16()
	if err != nil {
		return err
	}
	body, err := r.ReadBytes()
	if err != nil {
		return err
	}
	instance, ok := rv.manifest.Create(protocol.NaiaId(id))
	if !ok {
		return &werrors.ProtocolViolation{Reason: "unknown NaiaId in AddComponent"}
	}
	if err := instance.ReadFull(wire.NewReader(body)); err != nil {
		return err
	}
	compKey := protocol.LocalComponentKey(rawComp)
	if _, exists := rv.components[compKey]; exists {
		return &werrors.ProtocolViolation{Reason: "duplicate component key in AddComponent"}
	}
	rec.AddComponent(protocol.NaiaId(id), compKey)
	rv.components[compKey] = instance

	entry := EntityComponentEntry{LocalKey: compKey, Type: protocol.NaiaId(id), Value: instance}
	rv.incoming = append(rv.incoming, Event{Type: ActionAddComponent, EntityKey: entityKey, Component: entry})
	return nil
}

func (rv *Receiver) decodeRemoveComponent(r *wire.Reader) error {
	rawEntity, err := r.ReadU16()
	if err != nil {
		return err
	}
	entityKey := protocol.LocalEntityKey(rawEntity)
	id, err := r.ReadU16()
	if err != nil {
		return err
	}
	rec, ok := rv.entities.Get(entityKey)
	if !ok {
		return &werrors.ProtocolViolation{Reason: "RemoveComponent for unknown entity key"}
	}
	compKey, ok := rec.Components[protocol.NaiaId(id)]
	if !ok {
		return &werrors.ProtocolViolation{Reason: "RemoveComponent for unattached component type"}
	}
	last := rv.components[compKey]
	delete(rv.components, compKey)
	rec.RemoveComponent(protocol.NaiaId(id))

	entry := EntityComponentEntry{LocalKey: compKey, Type: protocol.NaiaId(id)}
	rv.incoming = append(rv.incoming, Event{Type: ActionRemoveComponent, EntityKey: entityKey, Component: entry, LastValue: last})
	return nil
}

// PopEvent drains one incoming event in the order the sender emitted it
// (spec §4.7 receiver step 1, invariant 7 "exactly once per key
// transition").
func (rv *Receiver) PopEvent() (Event, bool) {
	if len(rv.incoming) == 0 {
		return Event{}, false
	}
	e := rv.incoming[0]
	rv.incoming = rv.incoming[1:]
	return e, true
}

// Object looks up the current decoded value for a live local object key.
func (rv *Receiver) Object(key protocol.LocalObjectKey) (protocol.Replicate, bool) {
	v, ok := rv.objects[key]
	return v, ok
}
