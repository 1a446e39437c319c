package core

import (
	"sync/atomic"

	"github.com/Swind/go-fiber-scheduler/internal/syncx"
)

// Deque is a lock-free Chase-Lev work-stealing deque.
//
// The owner pushes and pops at the bottom (LIFO); any number of thieves
// steal from the top (FIFO). Only one goroutine may act as owner at a time.
// A fiber running on a worker counts as that worker's owner because the
// worker loop is parked while the fiber runs.
type Deque[T any] struct {
	_      syncx.CacheLinePad
	top    atomic.Int64
	_      syncx.CacheLinePad
	bottom atomic.Int64
	_      syncx.CacheLinePad
	array  atomic.Pointer[ring[T]]
}

// ring is immutable in size; growing replaces it.
type ring[T any] struct {
	mask int64
	buf  []atomic.Pointer[T]
}

func newRing[T any](capacity int64) *ring[T] {
	return &ring[T]{mask: capacity - 1, buf: make([]atomic.Pointer[T], capacity)}
}

func (r *ring[T]) capacity() int64   { return r.mask + 1 }
func (r *ring[T]) get(i int64) *T    { return r.buf[i&r.mask].Load() }
func (r *ring[T]) put(i int64, v *T) { r.buf[i&r.mask].Store(v) }

func (r *ring[T]) grow(bottom, top int64) *ring[T] {
	next := newRing[T](r.capacity() * 2)
	for i := top; i < bottom; i++ {
		next.put(i, r.get(i))
	}
	return next
}

// NewDeque creates a deque. capacity is rounded up to a power of two.
func NewDeque[T any](capacity int) *Deque[T] {
	c := int64(16)
	for c < int64(capacity) {
		c <<= 1
	}
	d := &Deque[T]{}
	d.array.Store(newRing[T](c))
	return d
}

// PushBottom adds v at the owner end. Owner only.
func (d *Deque[T]) PushBottom(v *T) {
	invariant(v != nil, "deque: push nil")

	b := d.bottom.Load()
	t := d.top.Load()
	a := d.array.Load()

	// one slot stays empty so full and empty are distinguishable
	if b-t >= a.capacity()-1 {
		a = a.grow(b, t)
		d.array.Store(a)
	}
	a.put(b, v)
	d.bottom.Store(b + 1)
}

// PopBottom removes the most recently pushed element. Owner only. Returns
// nil when empty or when a thief won the race for the last element.
func (d *Deque[T]) PopBottom() *T {
	b := d.bottom.Load() - 1
	a := d.array.Load()
	d.bottom.Store(b)

	t := d.top.Load()
	if t > b {
		d.bottom.Store(b + 1)
		return nil
	}

	v := a.get(b)
	if t == b {
		// last element: race against Steal
		if !d.top.CompareAndSwap(t, t+1) {
			v = nil
		}
		d.bottom.Store(b + 1)
	}
	return v
}

// Steal removes the oldest element. Safe from any goroutine. Returns nil
// when empty or when the race for the element was lost.
func (d *Deque[T]) Steal() *T {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		return nil
	}

	a := d.array.Load()
	v := a.get(t)
	if !d.top.CompareAndSwap(t, t+1) {
		return nil
	}
	return v
}

// Len returns an estimate of the number of elements.
func (d *Deque[T]) Len() int {
	n := d.bottom.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Capacity returns the current ring size.
func (d *Deque[T]) Capacity() int {
	return int(d.array.Load().capacity())
}
