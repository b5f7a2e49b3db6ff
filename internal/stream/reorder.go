package stream

// reorderBuffer restores session order over elements completed out of order
// by the recognition workers. Elements are keyed by Seq; Add returns the run
// of elements that became deliverable, in order.
//
// Not safe for concurrent use; owned by the collector goroutine.
type reorderBuffer struct {
	next    uint64
	pending map[uint64]Element
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{pending: make(map[uint64]Element)}
}

// Add inserts e and returns every element now contiguous from the delivery
// cursor. Returns nil when e is still blocked behind an incomplete seq.
func (b *reorderBuffer) Add(e Element) []Element {
	b.pending[e.Seq] = e
	var ready []Element
	for {
		e, ok := b.pending[b.next]
		if !ok {
			return ready
		}
		delete(b.pending, b.next)
		ready = append(ready, e)
		b.next++
	}
}

// Len reports how many elements are parked waiting for earlier seqs.
func (b *reorderBuffer) Len() int { return len(b.pending) }
