package syncx

import "sync/atomic"

// CacheLinePad keeps hot atomics on separate cache lines.
type CacheLinePad struct {
	_ [64]byte
}

// Counter is an atomic int64 padded against false sharing.
type Counter struct {
	_ CacheLinePad
	v atomic.Int64
	_ CacheLinePad
}

// Add adds delta and returns the new value.
func (c *Counter) Add(delta int64) int64 { return c.v.Add(delta) }

// Inc adds one and returns the new value.
func (c *Counter) Inc() int64 { return c.v.Add(1) }

// Dec subtracts one and returns the new value.
func (c *Counter) Dec() int64 { return c.v.Add(-1) }

// Load returns the current value.
func (c *Counter) Load() int64 { return c.v.Load() }

// Store sets the value.
func (c *Counter) Store(v int64) { c.v.Store(v) }
