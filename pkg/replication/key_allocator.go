package replication

// keyAllocator hands out monotonically increasing 16-bit keys from a single
// key space, reusing a key only after the caller explicitly frees it (spec
// §3 "Local keys": "allocated monotonically by the sender and freed only
// after the peer confirms the corresponding delete action"; invariant 2
// "Key reuse discipline"). Freed keys go onto a free list so long-lived
// connections don't exhaust the 16-bit space under steady churn, but a freed
// key is never handed out again until explicitly returned via Free — it is
// the caller's job to only call Free once a delete is acknowledged.
type keyAllocator struct {
	next uint16
	free []uint16
	live int
}

const maxLiveKeys = 65535

func newKeyAllocator() *keyAllocator {
	return &keyAllocator{}
}

// Allocate returns a fresh key, or ErrKeySpaceExhausted if 65535 keys are
// already live (spec §7, §9 Open Questions: refuse rather than evict).
func (a *keyAllocator) Allocate() (uint16, error) {
	if a.live >= maxLiveKeys {
		return 0, ErrKeySpaceExhausted
	}
	var key uint16
	if n := len(a.free); n > 0 {
		key = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		key = a.next
		a.next++
	}
	a.live++
	return key, nil
}

// Free returns key to the pool, callable only once the peer has
// acknowledged the corresponding delete.
func (a *keyAllocator) Free(key uint16) {
	a.free = append(a.free, key)
	a.live--
}

// Live reports the number of keys currently allocated and not yet freed.
func (a *keyAllocator) Live() int { return a.live }
