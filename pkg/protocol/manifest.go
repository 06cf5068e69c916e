package protocol

import (
	"fmt"
	"reflect"

	"github.com/statewire-org/statewire/pkg/werrors"
)

// Manifest is the immutable, process-wide NaiaId<->constructor registry
// (spec §3 "Manifest", §9 "Global protocol registry": "the manifest is the
// only process-wide state; it is immutable after build and shared by
// reference. No other singletons."). Built once via ManifestBuilder, then
// handed by reference to every Connection.
type Manifest struct {
	byID   map[NaiaId]Constructor
	idByGo map[reflect.Type]NaiaId
}

// ManifestBuilder accumulates variant registrations in the order the caller
// presents them; each gets the next NaiaId, starting at 0 (spec §3: "NaiaId
// assigned in registration order").
type ManifestBuilder struct {
	order  []Constructor
	idByGo map[reflect.Type]NaiaId
}

// NewManifestBuilder starts an empty builder.
func NewManifestBuilder() *ManifestBuilder {
	return &ManifestBuilder{idByGo: make(map[reflect.Type]NaiaId)}
}

// Register adds a variant constructor, returning the NaiaId it was assigned.
// Registering the same Go type twice is a configuration error.
func (b *ManifestBuilder) Register(ctor Constructor) (NaiaId, error) {
	sample := ctor()
	t := reflect.TypeOf(sample)
	if _, exists := b.idByGo[t]; exists {
		return 0, &werrors.ConfigError{Field: "manifest", Reason: fmt.Sprintf("type %s already registered", t)}
	}
	id := NaiaId(len(b.order))
	b.order = append(b.order, ctor)
	b.idByGo[t] = id
	return id, nil
}

// Build finalizes the manifest. The returned Manifest never mutates again
// and is safe to share by reference across every connection (spec §5
// "Shared resources").
func (b *ManifestBuilder) Build() *Manifest {
	byID := make(map[NaiaId]Constructor, len(b.order))
	for i, ctor := range b.order {
		byID[NaiaId(i)] = ctor
	}
	idByGo := make(map[reflect.Type]NaiaId, len(b.idByGo))
	for t, id := range b.idByGo {
		idByGo[t] = id
	}
	return &Manifest{byID: byID, idByGo: idByGo}
}

// Create instantiates a fresh, zero-valued Replicate for id. Returns false
// for an id never registered, which the caller treats as a protocol
// violation (spec §7: "unknown NaiaId ... fatal for the connection").
func (m *Manifest) Create(id NaiaId) (Replicate, bool) {
	ctor, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// IDOf returns the NaiaId a Go value was registered under.
func (m *Manifest) IDOf(v Replicate) (NaiaId, bool) {
	id, ok := m.idByGo[reflect.TypeOf(v)]
	return id, ok
}

// Len returns the number of registered variants.
func (m *Manifest) Len() int { return len(m.byID) }
