package protocol

import "github.com/statewire-org/statewire/pkg/wire"

// Replicate is the behavior every registered protocol variant (object,
// component, message, or command payload) implements (spec §3). It is data
// with a uniform wire codec, not a behavior subtype: user types compose
// Property[T] fields and forward these methods to them, the way a struct
// embeds Properties rather than inheriting from a base Replicate class
// (spec §9 "Polymorphic protocol variants").
type Replicate interface {
	// NaiaId returns the variant's stable registration-order id.
	NaiaId() NaiaId

	// Guaranteed reports whether this variant carries the reliable-delivery
	// bit (spec §3: "a guaranteed-delivery boolean").
	Guaranteed() bool

	// Mask returns the variant instance's state mask.
	Mask() *StateMask

	// WriteFull serializes every property, used for Create actions and for
	// full message/command bodies.
	WriteFull(w *wire.Writer)

	// ReadFull deserializes every property in place.
	ReadFull(r *wire.Reader) error

	// WriteUpdate serializes only the properties mask marks dirty, used for
	// UpdateObject/AddComponent deltas.
	WriteUpdate(w *wire.Writer, mask *StateMask)

	// ReadUpdate deserializes only the properties mask marks dirty, leaving
	// the rest at their prior value (spec §4.7 receiver step 2).
	ReadUpdate(r *wire.Reader, mask *StateMask) error

	// Clone returns an independent deep copy, used to snapshot "last_value"
	// for DeleteObject/RemoveComponent events and for update coalescing.
	Clone() Replicate
}

// Constructor builds a zero-value instance of a registered variant, used by
// the Manifest to reconstruct instances from a wire NaiaId (spec §3, §4.6
// "The manifest reconstructs an instance from NaiaId + body").
type Constructor func() Replicate
