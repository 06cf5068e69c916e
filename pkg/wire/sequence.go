// Package wire provides the low-level building blocks shared by every
// manager in the replication core: wrapping 16-bit sequence arithmetic, the
// sequence-keyed ring buffer, and the tick-ordered priority queue.
package wire

// SequenceGreaterThan implements the wrapping comparison required by every
// tick, packet index, and local key comparison in the engine (spec §4.1):
//
//	greater_than(a,b) ⇔ ((a>b) ∧ (a−b ≤ 2^15)) ∨ ((a<b) ∧ (b−a > 2^15))
func SequenceGreaterThan(a, b uint16) bool {
	if a > b {
		return a-b <= 32768
	}
	return b-a > 32768
}

// SequenceLessThan is the mirror of SequenceGreaterThan, useful for sorting.
func SequenceLessThan(a, b uint16) bool {
	return a != b && !SequenceGreaterThan(a, b)
}

// SequenceDiff returns how far ahead a is of b in wrapping sequence space,
// as a signed tick/index delta (a - b, wrapping).
func SequenceDiff(a, b uint16) int16 {
	return int16(a - b)
}
