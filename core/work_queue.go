package core

import (
	"sync"
	"sync/atomic"
)

// =============================================================================
// workQueue: per-worker, per-priority task queues
// =============================================================================

// workQueue holds one Chase-Lev deque per priority for the owning worker and
// its fibers, plus a locked inbox that any goroutine may push to.
//
// Pop order: priorities high to low; within a priority the deque (LIFO) is
// tried before the inbox (FIFO). Steal order is the same, FIFO on both.
type workQueue struct {
	deques [NumPriorities]*Deque[taskInstance]
	inbox  inbox
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	for i := range q.deques {
		q.deques[i] = NewDeque[taskInstance](64)
	}
	return q
}

// pushLocal is only valid from the owning worker or the fiber it runs.
func (q *workQueue) pushLocal(inst *taskInstance) {
	q.deques[inst.traits.Priority].PushBottom(inst)
}

// pushShared may be called from any goroutine.
func (q *workQueue) pushShared(inst *taskInstance) {
	q.inbox.pushBatch([]*taskInstance{inst})
}

// pushBatch makes the whole batch visible to the owner at once.
func (q *workQueue) pushBatch(batch []*taskInstance) {
	q.inbox.pushBatch(batch)
}

// pop is owner only.
func (q *workQueue) pop() *taskInstance {
	for p := 0; p < NumPriorities; p++ {
		if inst := q.deques[p].PopBottom(); inst != nil {
			return inst
		}
		if inst := q.inbox.popHighest(p); inst != nil {
			return inst
		}
	}
	return nil
}

// steal takes the oldest task of exactly priority p.
func (q *workQueue) steal(p int) *taskInstance {
	if inst := q.deques[p].Steal(); inst != nil {
		return inst
	}
	return q.inbox.popTier(p)
}

func (q *workQueue) len() int {
	n := int(q.inbox.size.Load())
	for _, d := range q.deques {
		n += d.Len()
	}
	return n
}

func (q *workQueue) lenByPriority() [NumPriorities]int {
	var out [NumPriorities]int
	inboxLens := q.inbox.lens()
	for p := range out {
		out[p] = q.deques[p].Len() + inboxLens[p]
	}
	return out
}

// =============================================================================
// inbox: mutex-guarded multi-producer queue
// =============================================================================

type inbox struct {
	mu    sync.Mutex
	tiers [NumPriorities]instanceFIFO
	size  atomic.Int64
}

func (b *inbox) pushBatch(batch []*taskInstance) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	for _, inst := range batch {
		b.tiers[inst.traits.Priority].push(inst)
	}
	b.size.Add(int64(len(batch)))
	b.mu.Unlock()
}

// popHighest returns the highest-priority item at or above priority limit.
// Anything above limit can only have arrived after the caller scanned it, and
// still has to win.
func (b *inbox) popHighest(limit int) *taskInstance {
	if b.size.Load() == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := 0; p <= limit; p++ {
		if inst := b.tiers[p].pop(); inst != nil {
			b.size.Add(-1)
			return inst
		}
	}
	return nil
}

func (b *inbox) popTier(p int) *taskInstance {
	if b.size.Load() == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if inst := b.tiers[p].pop(); inst != nil {
		b.size.Add(-1)
		return inst
	}
	return nil
}

func (b *inbox) lens() [NumPriorities]int {
	var out [NumPriorities]int
	b.mu.Lock()
	for p := range b.tiers {
		out[p] = b.tiers[p].len()
	}
	b.mu.Unlock()
	return out
}

// =============================================================================
// instanceFIFO
// =============================================================================

type instanceFIFO struct {
	items []*taskInstance
	head  int
}

func (q *instanceFIFO) push(inst *taskInstance) {
	q.items = append(q.items, inst)
}

func (q *instanceFIFO) pop() *taskInstance {
	if q.head == len(q.items) {
		return nil
	}
	inst := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > 64 && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return inst
}

func (q *instanceFIFO) len() int {
	return len(q.items) - q.head
}
