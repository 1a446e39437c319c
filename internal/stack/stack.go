// Package stack provides fixed-size stack regions for pooled fibers.
//
// Memory is reserved per tier in one arena. Each slot is preceded by a guard
// page where the platform allows it, and slots are addressed by their pool
// index rather than by pointer.
package stack

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Class selects the stack tier a fiber is drawn from.
type Class int

const (
	// Small is for leaf tasks that do little more than arithmetic.
	Small Class = iota
	// Standard is the default tier.
	Standard
	// Extended is for tasks with deep call chains or large scratch buffers.
	Extended

	numClasses
)

// NumClasses is the number of stack tiers.
const NumClasses = int(numClasses)

const (
	SmallSize    = 16 << 10
	StandardSize = 32 << 10
	ExtendedSize = 1 << 20
)

// Size returns the usable slot size of the tier in bytes.
func (c Class) Size() int {
	switch c {
	case Small:
		return SmallSize
	case Standard:
		return StandardSize
	case Extended:
		return ExtendedSize
	default:
		return 0
	}
}

// Valid reports whether c names a known tier.
func (c Class) Valid() bool {
	return c >= Small && c < numClasses
}

func (c Class) String() string {
	switch c {
	case Small:
		return "small"
	case Standard:
		return "standard"
	case Extended:
		return "extended"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ErrAllocation is returned when the arena memory cannot be reserved.
var ErrAllocation = errors.New("stack: allocation failed")

// mappedBytes tracks every live arena region in the process.
var mappedBytes atomic.Int64

// MappedBytes returns the number of bytes currently reserved by live arenas,
// guard pages included.
func MappedBytes() int64 {
	return mappedBytes.Load()
}

// Arena is a contiguous reservation of equally sized stack slots.
type Arena struct {
	class    Class
	slotSize int
	stride   int
	guard    int
	count    int
	region   []byte
	released atomic.Bool
}

// NewArena reserves count slots of the given tier.
func NewArena(class Class, count int) (*Arena, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: unknown class %v", ErrAllocation, class)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative slot count %d", ErrAllocation, count)
	}

	page := pageSize()
	slot := roundUp(class.Size(), page)
	a := &Arena{
		class:    class,
		slotSize: class.Size(),
		stride:   slot + page,
		guard:    page,
		count:    count,
	}
	if count == 0 {
		return a, nil
	}

	region, err := reserve(a.stride*count, a.stride, a.guard)
	if err != nil {
		return nil, fmt.Errorf("%w: %d x %s: %v", ErrAllocation, count, class, err)
	}
	a.region = region
	mappedBytes.Add(int64(len(region)))
	return a, nil
}

// Class returns the tier of the arena.
func (a *Arena) Class() Class { return a.class }

// Len returns the number of slots.
func (a *Arena) Len() int { return a.count }

// SlotSize returns the usable size of one slot.
func (a *Arena) SlotSize() int { return a.slotSize }

// Bytes returns the reserved size of the arena, guard pages included.
func (a *Arena) Bytes() int { return len(a.region) }

// Slot returns the memory of slot i. The returned slice has its capacity
// capped at the slot size so appends cannot spill into the next guard page.
func (a *Arena) Slot(i int) []byte {
	if i < 0 || i >= a.count {
		panic(fmt.Sprintf("stack: slot index %d out of range [0,%d)", i, a.count))
	}
	if a.released.Load() {
		panic("stack: slot requested from released arena")
	}
	lo := i*a.stride + a.guard
	hi := lo + a.slotSize
	return a.region[lo:hi:hi]
}

// Release returns the arena memory to the system. Slots must not be used
// afterwards. Calling Release more than once is a no-op.
func (a *Arena) Release() error {
	if !a.released.CompareAndSwap(false, true) {
		return nil
	}
	if a.region == nil {
		return nil
	}
	size := len(a.region)
	err := free(a.region)
	a.region = nil
	mappedBytes.Add(-int64(size))
	return err
}

func roundUp(n, align int) int {
	return (n + align - 1) / align * align
}
