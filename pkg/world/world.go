// Package world defines the small interface for whatever entity-component
// framework the application embeds the replication core in (spec §1 Out of
// scope: "Any entity-component framework ... the core talks to it through a
// small WorldMut interface"; SPEC_FULL.md §6 expansion). No package in this
// repository calls Mut; Bindings is held by each Connection.
package world

import "github.com/statewire-org/statewire/pkg/protocol"

// Mut is borrowed mutably only during spawn/despawn/update operations,
// serialized by the single-threaded driver (spec §5 "Shared resources").
type Mut interface {
	// SpawnEntity creates an application-side entity and returns the handle
	// the caller should associate with a LocalEntityKey.
	SpawnEntity() (id uint64, err error)
	// DespawnEntity destroys the application-side entity for id.
	DespawnEntity(id uint64)
	// HasEntity reports whether id is still live.
	HasEntity(id uint64) bool
}

// Bindings tracks the LocalEntityKey <-> World-id association for one
// connection, keeping the replication core's wire-level keys distinct from
// the World's own entity identifiers.
type Bindings struct {
	byKey map[protocol.LocalEntityKey]uint64
	byID  map[uint64]protocol.LocalEntityKey
}

// NewBindings creates an empty key<->id table.
func NewBindings() *Bindings {
	return &Bindings{byKey: make(map[protocol.LocalEntityKey]uint64), byID: make(map[uint64]protocol.LocalEntityKey)}
}

// Bind associates a LocalEntityKey with a World entity id.
func (b *Bindings) Bind(key protocol.LocalEntityKey, id uint64) {
	b.byKey[key] = id
	b.byID[id] = key
}

// Unbind removes the association for key, if any.
func (b *Bindings) Unbind(key protocol.LocalEntityKey) {
	if id, ok := b.byKey[key]; ok {
		delete(b.byID, id)
	}
	delete(b.byKey, key)
}

// IDFor returns the World id bound to key.
func (b *Bindings) IDFor(key protocol.LocalEntityKey) (uint64, bool) {
	id, ok := b.byKey[key]
	return id, ok
}

// KeyFor returns the LocalEntityKey bound to a World id.
func (b *Bindings) KeyFor(id uint64) (protocol.LocalEntityKey, bool) {
	key, ok := b.byID[id]
	return key, ok
}
