// Package protocol defines the user-registered protocol variant set (spec
// §3): NaiaId-tagged replicate kinds, their dirty-tracked properties, and the
// Manifest that reconstructs instances from wire bytes.
package protocol

import "github.com/statewire-org/statewire/pkg/wire"

// NaiaId is the stable 16-bit identifier assigned to a protocol variant in
// registration order (spec §3 "Protocol variant set").
type NaiaId uint16

// LocalObjectKey, LocalEntityKey, and LocalComponentKey are the three
// disjoint 16-bit key spaces allocated per connection direction (spec §3
// "Local keys"). Keys are allocated monotonically by the sender and freed
// only after the peer confirms the corresponding delete action.
type LocalObjectKey uint16
type LocalEntityKey uint16
type LocalComponentKey uint16

// ComponentKey pairs an entity with the NaiaId of the component variant
// attached to it (spec §3 "Component: keyed by (entity, type)").
type ComponentKey struct {
	Entity LocalEntityKey
	Type   NaiaId
}

// PawnKind discriminates the two members of the PawnKey tagged union.
type PawnKind uint8

const (
	PawnKindObject PawnKind = iota
	PawnKindEntity
)

// PawnKey identifies a client-owned controllable: a tagged union of
// {Object(LocalObjectKey), Entity(LocalEntityKey)} (spec §3 "PawnKey").
type PawnKey struct {
	Kind   PawnKind
	Object LocalObjectKey
	Entity LocalEntityKey
}

// ObjectPawnKey builds a PawnKey for a standalone object pawn.
func ObjectPawnKey(key LocalObjectKey) PawnKey {
	return PawnKey{Kind: PawnKindObject, Object: key}
}

// EntityPawnKey builds a PawnKey for an entity pawn.
func EntityPawnKey(key LocalEntityKey) PawnKey {
	return PawnKey{Kind: PawnKindEntity, Entity: key}
}

// WriteTo encodes the tagged union as {kind:u8, object:u16, entity:u16},
// writing both branches regardless of Kind so the reader doesn't need a
// variable-length decode (spec §6 command block's PawnKey framing).
func (k PawnKey) WriteTo(w *wire.Writer) {
	w.WriteU8(uint8(k.Kind))
	w.WriteU16(uint16(k.Object))
	w.WriteU16(uint16(k.Entity))
}

// ReadPawnKey decodes a PawnKey written by WriteTo.
func ReadPawnKey(r *wire.Reader) (PawnKey, error) {
	kind, err := r.ReadU8()
	if err != nil {
		return PawnKey{}, err
	}
	obj, err := r.ReadU16()
	if err != nil {
		return PawnKey{}, err
	}
	ent, err := r.ReadU16()
	if err != nil {
		return PawnKey{}, err
	}
	return PawnKey{Kind: PawnKind(kind), Object: LocalObjectKey(obj), Entity: LocalEntityKey(ent)}, nil
}
