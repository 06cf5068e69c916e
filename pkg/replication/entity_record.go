package replication

import "github.com/statewire-org/statewire/pkg/protocol"

// EntityRecord is the server-side bookkeeping for one replicated entity:
// its local key, locality status, and the set of components attached to it
// (spec §3 "Entity record"). Per the arena+stable-index redesign (spec §9),
// the component set lives here as the single owning copy; anything else
// that needs to know an entity's components holds its LocalEntityKey and
// looks it up through the owning EntityTable, rather than sharing a pointer
// to this struct's set.
type EntityRecord struct {
	LocalKey   protocol.LocalEntityKey
	Status     LocalityStatus
	Components map[protocol.NaiaId]protocol.LocalComponentKey
}

// EntityTable is the arena owning every EntityRecord for a connection,
// indexed by stable LocalEntityKey (spec §9: "arena + stable index
// (EntityId -> ComponentSet), with both call sites holding the index, not a
// pointer").
type EntityTable struct {
	records map[protocol.LocalEntityKey]*EntityRecord
}

// NewEntityTable creates an empty entity arena.
func NewEntityTable() *EntityTable {
	return &EntityTable{records: make(map[protocol.LocalEntityKey]*EntityRecord)}
}

// Insert adds a freshly allocated entity record.
func (t *EntityTable) Insert(key protocol.LocalEntityKey) *EntityRecord {
	rec := &EntityRecord{
		LocalKey:   key,
		Status:     LocalityCreating,
		Components: make(map[protocol.NaiaId]protocol.LocalComponentKey),
	}
	t.records[key] = rec
	return rec
}

// Get returns the record for key, if it still exists in the arena.
func (t *EntityTable) Get(key protocol.LocalEntityKey) (*EntityRecord, bool) {
	rec, ok := t.records[key]
	return rec, ok
}

// Remove deletes the record for key, called once the delete is acked and
// the key is freed.
func (t *EntityTable) Remove(key protocol.LocalEntityKey) {
	delete(t.records, key)
}

// AddComponent attaches a component type to an entity's frozen-until-delete
// component set (spec §3: "component set of an entity is frozen once the
// entity enters Deleting" — callers must not call this once Status is
// LocalityDeleting or later).
func (r *EntityRecord) AddComponent(componentType protocol.NaiaId, key protocol.LocalComponentKey) {
	r.Components[componentType] = key
}

// RemoveComponent detaches a component type from the entity.
func (r *EntityRecord) RemoveComponent(componentType protocol.NaiaId) {
	delete(r.Components, componentType)
}
