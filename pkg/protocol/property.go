package protocol

import "github.com/statewire-org/statewire/pkg/wire"

// Property is an observable cell holding a wire-serializable value plus the
// bit index it owns in its variant's state mask (spec §3 "Property").
// Writing through Set marks the corresponding mask bit via the injected
// MaskHandle rather than holding a pointer back to the container, so the
// property and its container can be constructed in either order without a
// reference cycle (spec §9).
type Property[T comparable] struct {
	bitIndex int
	mask     MaskHandle
	value    T
	write    func(*wire.Writer, T)
	read     func(*wire.Reader) (T, error)
}

// NewProperty constructs a property bound to bitIndex in mask, with initial
// value v and the wire codec functions for T.
func NewProperty[T comparable](bitIndex int, mask MaskHandle, v T, write func(*wire.Writer, T), read func(*wire.Reader) (T, error)) *Property[T] {
	return &Property[T]{bitIndex: bitIndex, mask: mask, value: v, write: write, read: read}
}

// Get returns the current value.
func (p *Property[T]) Get() T { return p.value }

// Set assigns a new value, marking the property's mask bit only if the
// value actually changed.
func (p *Property[T]) Set(v T) {
	if v == p.value {
		return
	}
	p.value = v
	if p.mask != nil {
		p.mask.MarkDirty(p.bitIndex)
	}
}

// SetSilent assigns a new value without touching the mask, used by the
// receiver when applying an incoming update (the mask there tracks which
// fields the wire payload touched, not local dirtiness).
func (p *Property[T]) SetSilent(v T) { p.value = v }

// BitIndex returns the property's bit position in its variant's state mask.
func (p *Property[T]) BitIndex() int { return p.bitIndex }

// WriteFull always serializes the value.
func (p *Property[T]) WriteFull(w *wire.Writer) { p.write(w, p.value) }

// ReadFull always deserializes and assigns the value.
func (p *Property[T]) ReadFull(r *wire.Reader) error {
	v, err := p.read(r)
	if err != nil {
		return err
	}
	p.value = v
	return nil
}

// WriteIfDirty serializes the value only when mask has this property's bit
// set, implementing the per-field delta in UpdateObject (spec §4.7 step 2).
func (p *Property[T]) WriteIfDirty(w *wire.Writer, mask *StateMask) {
	if mask.IsSet(p.bitIndex) {
		p.write(w, p.value)
	}
}

// ReadIfDirty deserializes and assigns the value only when mask has this
// property's bit set; an unset bit leaves the prior value untouched (spec
// §4.7 receiver step 2).
func (p *Property[T]) ReadIfDirty(r *wire.Reader, mask *StateMask) error {
	if !mask.IsSet(p.bitIndex) {
		return nil
	}
	v, err := p.read(r)
	if err != nil {
		return err
	}
	p.value = v
	return nil
}

// U8Property, U16Property, ... are the concrete scalar property codecs wired
// through the generic Property[T].

func NewU8Property(bit int, mask MaskHandle, v uint8) *Property[uint8] {
	return NewProperty(bit, mask, v,
		func(w *wire.Writer, v uint8) { w.WriteU8(v) },
		func(r *wire.Reader) (uint8, error) { return r.ReadU8() })
}

func NewU16Property(bit int, mask MaskHandle, v uint16) *Property[uint16] {
	return NewProperty(bit, mask, v,
		func(w *wire.Writer, v uint16) { w.WriteU16(v) },
		func(r *wire.Reader) (uint16, error) { return r.ReadU16() })
}

func NewU32Property(bit int, mask MaskHandle, v uint32) *Property[uint32] {
	return NewProperty(bit, mask, v,
		func(w *wire.Writer, v uint32) { w.WriteU32(v) },
		func(r *wire.Reader) (uint32, error) { return r.ReadU32() })
}

func NewI32Property(bit int, mask MaskHandle, v int32) *Property[int32] {
	return NewProperty(bit, mask, v,
		func(w *wire.Writer, v int32) { w.WriteU32(uint32(v)) },
		func(r *wire.Reader) (int32, error) { u, err := r.ReadU32(); return int32(u), err })
}

func NewF32Property(bit int, mask MaskHandle, v float32) *Property[float32] {
	return NewProperty(bit, mask, v,
		func(w *wire.Writer, v float32) { w.WriteF32(v) },
		func(r *wire.Reader) (float32, error) { return r.ReadF32() })
}

func NewBoolProperty(bit int, mask MaskHandle, v bool) *Property[bool] {
	return NewProperty(bit, mask, v,
		func(w *wire.Writer, v bool) { w.WriteBool(v) },
		func(r *wire.Reader) (bool, error) { return r.ReadBool() })
}

func NewStringProperty(bit int, mask MaskHandle, v string) *Property[string] {
	return NewProperty(bit, mask, v,
		func(w *wire.Writer, v string) { w.WriteString(v) },
		func(r *wire.Reader) (string, error) { return r.ReadString() })
}
