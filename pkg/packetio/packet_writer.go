// Package packetio implements the MTU-bounded packet writer/reader that
// accumulates manager-prefixed sub-blocks (spec §4.5), grounded on the
// teacher's fragmentation/MTU handling style in
// internal/transport/fragmentation.go generalized from byte-stream framing
// to the reservation-pattern sub-block layout the spec requires.
package packetio

import "github.com/statewire-org/statewire/pkg/wire"

// ManagerType tags which manager a sub-block within a packet belongs to
// (spec §4.5).
type ManagerType uint8

const (
	ManagerMessage ManagerType = iota
	ManagerReplicate
	ManagerCommand
)

// DefaultMTU matches a conservative UDP payload size safe from IP
// fragmentation on typical internet paths.
const DefaultMTU = 1200

// Writer accumulates manager-tagged sub-blocks into a single MTU-bounded
// buffer. Every write is atomic under the reservation pattern: if appending
// a block would overflow the MTU, the writer's state is left untouched and
// the caller is expected to push the item back onto its sender queue (spec
// §4.5: "required for correctness of the 'at most once in flight'
// invariant").
type Writer struct {
	mtu int
	buf *wire.Writer
}

// NewWriter creates a packet writer bounded to mtu bytes. mtu <= 0 defaults
// to DefaultMTU.
func NewWriter(mtu int) *Writer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Writer{mtu: mtu, buf: wire.NewWriter()}
}

// TryWriteBlock attempts to append a sub-block {ManagerType byte, body} to
// the packet. It returns false without mutating the writer if doing so
// would exceed the MTU — the reservation pattern (spec §4.5).
func (w *Writer) TryWriteBlock(manager ManagerType, body []byte) bool {
	blockSize := 1 + 2 + len(body) // tag + u16 length prefix + body
	if w.buf.Len()+blockSize > w.mtu {
		return false
	}
	w.buf.WriteU8(uint8(manager))
	w.buf.WriteU16(uint16(len(body)))
	w.buf.WriteRaw(body)
	return true
}

// Remaining returns how many more bytes can be written before hitting the
// MTU bound.
func (w *Writer) Remaining() int {
	r := w.mtu - w.buf.Len()
	if r < 0 {
		return 0
	}
	return r
}

// Len returns the number of bytes accumulated so far.
func (w *Writer) Len() int { return w.buf.Len() }

// Bytes returns the packet's accumulated contents.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Block pairs a decoded sub-block with the manager it targets.
type Block struct {
	Manager ManagerType
	Body    []byte
}

// ReadBlocks decodes every manager-tagged sub-block out of a packet payload
// produced by Writer.
func ReadBlocks(payload []byte) ([]Block, error) {
	r := wire.NewReader(payload)
	var blocks []Block
	for r.HasMore() {
		tag, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		n, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		body, err := r.ReadRaw(int(n))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, Block{Manager: ManagerType(tag), Body: body})
	}
	return blocks, nil
}
