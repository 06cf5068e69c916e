// Package header implements the standard packet header and the selective
// acknowledgment engine built on top of it (spec §4.2).
package header

import "github.com/statewire-org/statewire/pkg/wire"

// PacketType discriminates the kind of packet a StandardHeader fronts.
type PacketType uint8

const (
	PacketData PacketType = iota
	PacketHeartbeat
	PacketPing
	PacketPong
	PacketClientHandshake
	PacketServerHandshake
	PacketDisconnect
)

// StandardHeader is carried by every outgoing packet (spec §4.2):
//
//	{packet_type:u8, packet_index:u16, last_received_index:u16,
//	 ack_bitfield:u32, host_tick:u16}
type StandardHeader struct {
	Type              PacketType
	PacketIndex       uint16
	LastReceivedIndex uint16
	AckBitfield       uint32
	HostTick          uint16
}

// Size is the fixed on-wire size of a StandardHeader, in bytes.
const Size = 1 + 2 + 2 + 4 + 2

// WriteTo serializes the header onto w.
func (h StandardHeader) WriteTo(w *wire.Writer) {
	w.WriteU8(uint8(h.Type))
	w.WriteU16(h.PacketIndex)
	w.WriteU16(h.LastReceivedIndex)
	w.WriteU32(h.AckBitfield)
	w.WriteU16(h.HostTick)
}

// ReadStandardHeader parses a StandardHeader from r.
func ReadStandardHeader(r *wire.Reader) (StandardHeader, error) {
	var h StandardHeader
	t, err := r.ReadU8()
	if err != nil {
		return h, err
	}
	h.Type = PacketType(t)
	if h.PacketIndex, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.LastReceivedIndex, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.AckBitfield, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.HostTick, err = r.ReadU16(); err != nil {
		return h, err
	}
	return h, nil
}
