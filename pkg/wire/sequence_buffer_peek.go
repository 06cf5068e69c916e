package wire

// OccupantAt returns whatever currently occupies the ring slot that index
// maps to, regardless of whether that occupant's own sequence number
// matches index. The ack engine uses this to detect — and report as a drop
// — the packet an outgoing insert is about to evict from the window (spec
// §4.2/§4.7: "indices that fall out of the window unacknowledged").
func (b *SequenceBuffer) OccupantAt(index uint16) (sequence uint16, value any, ok bool) {
	s := b.slots[b.index(index)]
	if !s.occupied {
		return 0, nil, false
	}
	return s.sequence, s.value, true
}
