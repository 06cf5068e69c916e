package wire

import "container/heap"

// TickQueue is a min-heap of (tick, payload) pairs ordered by wrapping tick
// comparison (spec §3 "TickQueue"). It backs the client's jitter buffer
// (§4.9): the server tags every data packet with the tick it describes, and
// the client drains this queue in non-decreasing tick order regardless of
// arrival order.
type TickQueue struct {
	items tickHeap
}

// NewTickQueue creates an empty tick queue.
func NewTickQueue() *TickQueue {
	q := &TickQueue{}
	heap.Init(&q.items)
	return q
}

// AddItem enqueues payload to be popped once the queue's notion of "current"
// tick reaches or passes tick.
func (q *TickQueue) AddItem(tick uint16, payload any) {
	heap.Push(&q.items, tickEntry{tick: tick, payload: payload})
}

// PopItem returns any item whose tick is not greater (in wrapping order)
// than current, removing it from the queue. Returns ok=false when the
// queue is empty or its earliest item is still in the future.
func (q *TickQueue) PopItem(current uint16) (tick uint16, payload any, ok bool) {
	if q.items.Len() == 0 {
		return 0, nil, false
	}
	top := q.items[0]
	if SequenceGreaterThan(top.tick, current) {
		return 0, nil, false
	}
	heap.Pop(&q.items)
	return top.tick, top.payload, true
}

// Len reports the number of items currently queued.
func (q *TickQueue) Len() int {
	return q.items.Len()
}

type tickEntry struct {
	tick    uint16
	payload any
}

type tickHeap []tickEntry

func (h tickHeap) Len() int { return len(h) }
func (h tickHeap) Less(i, j int) bool {
	return SequenceLessThan(h[i].tick, h[j].tick)
}
func (h tickHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *tickHeap) Push(x any) {
	*h = append(*h, x.(tickEntry))
}

func (h *tickHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
