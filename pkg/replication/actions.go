package replication

import "github.com/statewire-org/statewire/pkg/protocol"

// ActionType discriminates a replicate manager block entry (spec §6
// "Replicate manager block").
type ActionType uint8

const (
	ActionCreateObject ActionType = iota
	ActionUpdateObject
	ActionDeleteObject
	ActionAssignPawn
	ActionUnassignPawn
	ActionCreateEntity
	ActionDeleteEntity
	ActionAddComponent
	ActionRemoveComponent
)

// Action is the sender's internal representation of one emitted replicate
// action, carrying enough to both encode it on the wire and track its
// delivery (spec §4.7).
type Action struct {
	Type ActionType

	ObjectKey protocol.LocalObjectKey
	EntityKey protocol.LocalEntityKey
	Component protocol.ComponentKey
	CompKey   protocol.LocalComponentKey // AddComponent only: the sender's allocated key

	Pawn protocol.PawnKey // AssignPawn/UnassignPawn only

	// ComponentTarget marks an ActionUpdateObject whose key names a
	// component rather than an object (CompKey instead of ObjectKey), so a
	// component's post-creation writes feed the same wire action an
	// object's do (Glossary "Component: a replicate attached to an entity").
	ComponentTarget bool

	NaiaID protocol.NaiaId
	Value  protocol.Replicate // full value, for Create/Delete/AddComponent/RemoveComponent
	Mask   *protocol.StateMask
	Update protocol.Replicate // holder used to encode WriteUpdate against Mask

	ComponentKeys []EntityComponentEntry // CreateEntity only

	packetIndex uint16 // set once placed into a packet, for in-flight tracking
}

// EntityComponentEntry pairs a component's locally allocated key with its
// variant id, for the component list carried by a CreateEntity action (spec
// §6 "CreateEntity: {entity_key, component_count, [component_key,
// naia_id, body]*}").
type EntityComponentEntry struct {
	LocalKey protocol.LocalComponentKey
	Type     protocol.NaiaId
	Value    protocol.Replicate
}

// pendingKey identifies the single "one action in flight" slot that a
// reliable Create/Delete/AddComponent/RemoveComponent occupies while
// awaiting ack (spec §4.7 "a single action is in flight per key at a time").
type pendingKey struct {
	kind ActionType
	obj  protocol.LocalObjectKey
	ent  protocol.LocalEntityKey
	comp protocol.ComponentKey
}
