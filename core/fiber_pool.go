package core

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Swind/go-fiber-scheduler/internal/fiber"
	"github.com/Swind/go-fiber-scheduler/internal/stack"
)

type fiberState int32

const (
	fiberIdle fiberState = iota
	fiberRunning
	fiberSuspended
)

// pooledFiber is one slot of the fiber pool. index is global across tiers
// and is what listeners see as the fiber index.
type pooledFiber struct {
	index int
	class StackClass
	fiber *fiber.Fiber
	state atomic.Int32

	// inst is written by the worker before switching in and read by the
	// fiber after it wakes.
	inst *taskInstance
	exit bool
	pool *fiberPool

	// thread is the worker whose settings the fiber's locked OS thread
	// carries. Only the fiber goroutine touches it.
	thread *worker
}

func (f *pooledFiber) transition(from, to fiberState) {
	ok := f.state.CompareAndSwap(int32(from), int32(to))
	invariant(ok, "fiber %d: transition %d -> %d from state %d", f.index, from, to, f.state.Load())
}

// run is the entry point of every pooled fiber. Each iteration executes one
// bound task and hands the fiber back to the worker that finished it.
func (f *pooledFiber) run(self *fiber.Fiber) {
	for {
		if f.exit {
			return
		}
		inst := f.inst
		invariant(inst != nil, "fiber %d woken without a task", f.index)

		f.adopt(inst.worker)
		f.pool.exec(inst)

		inst.wait = waitNone
		fiber.SwitchTo(self, inst.worker.schedFiber)
	}
}

// adopt gives the fiber's OS thread the name, core and priority of w when
// workers are pinned. It runs on the fiber goroutine each time the fiber is
// switched in, and only issues syscalls when the worker changed.
func (f *pooledFiber) adopt(w *worker) {
	if f.thread == w || !w.sched.cfg.pinned() {
		return
	}
	if f.thread == nil {
		runtime.LockOSThread()
	}
	f.thread = w
	w.configureThread(w.sched.logger.Debug)
}

// fiberTier is the part of the pool backed by one stack arena.
type fiberTier struct {
	class  StackClass
	arena  *stack.Arena
	fibers []*pooledFiber

	mu      sync.Mutex
	free    []*pooledFiber
	starved instanceFIFO
}

type fiberPool struct {
	tiers     [stack.NumClasses]*fiberTier
	all       []*pooledFiber
	byID      map[uint64]*pooledFiber // goroutine id -> fiber, fixed after construction
	exec      func(inst *taskInstance)
	bound     atomic.Int64
	highWater atomic.Int64
}

// newFiberPool reserves one arena per tier and starts a parked goroutine per
// fiber. On failure everything reserved so far is released.
func newFiberPool(counts FiberCounts, exec func(inst *taskInstance)) (*fiberPool, error) {
	p := &fiberPool{exec: exec, byID: make(map[uint64]*pooledFiber)}
	byClass := counts.byClass()

	for c := range byClass {
		class := StackClass(c)
		arena, err := stack.NewArena(class, byClass[c])
		if err != nil {
			p.shutdown()
			return nil, newSchedulerError(ErrStackAllocation, "%s tier: %v", class, err)
		}
		tier := &fiberTier{class: class, arena: arena}
		for i := 0; i < byClass[c]; i++ {
			pf := &pooledFiber{index: len(p.all), class: class, pool: p}
			pf.fiber = fiber.Create("fiber-"+strconv.Itoa(pf.index), arena.Slot(i), pf.run, pf)
			tier.fibers = append(tier.fibers, pf)
			p.all = append(p.all, pf)
			p.byID[pf.fiber.ID()] = pf
		}
		tier.free = append(tier.free, tier.fibers...)
		p.tiers[c] = tier
	}
	return p, nil
}

func (p *fiberPool) size() int { return len(p.all) }

// current returns the pooled fiber running on the calling goroutine, or nil.
func (p *fiberPool) current() *pooledFiber {
	return p.byID[fiber.CurrentID()]
}

// acquire binds an idle fiber of class or any larger class. When none is
// available inst is parked on its home tier and nil is returned; release
// hands it back later.
func (p *fiberPool) acquire(inst *taskInstance) *pooledFiber {
	class := inst.traits.Stack
	for c := int(class); c < stack.NumClasses; c++ {
		if pf := p.tiers[c].take(); pf != nil {
			p.markBound(pf)
			return pf
		}
	}

	// re-check the home tier under the lock so a concurrent release cannot
	// miss the parked task
	tier := p.home(class)
	invariant(tier != nil, "no fiber tier can host stack class %s", class)
	tier.mu.Lock()
	defer tier.mu.Unlock()
	if n := len(tier.free); n > 0 {
		pf := tier.free[n-1]
		tier.free = tier.free[:n-1]
		p.markBound(pf)
		return pf
	}
	tier.starved.push(inst)
	return nil
}

// release returns pf to its tier and hands back a task that was waiting for
// a fiber of that tier, if any.
func (p *fiberPool) release(pf *pooledFiber) *taskInstance {
	pf.inst = nil
	p.bound.Add(-1)

	tier := p.tiers[pf.class]
	tier.mu.Lock()
	defer tier.mu.Unlock()
	tier.free = append(tier.free, pf)
	return tier.starved.pop()
}

// home is the smallest non-empty tier that fits class. Tasks that find no
// free fiber wait there.
func (p *fiberPool) home(class StackClass) *fiberTier {
	for c := int(class); c < stack.NumClasses; c++ {
		if t := p.tiers[c]; len(t.fibers) > 0 {
			return t
		}
	}
	return nil
}

// hosts reports whether some tier can run tasks of class.
func (p *fiberPool) hosts(class StackClass) bool {
	return p.home(class) != nil
}

func (p *fiberPool) markBound(pf *pooledFiber) {
	n := p.bound.Add(1)
	for {
		hw := p.highWater.Load()
		if n <= hw || p.highWater.CompareAndSwap(hw, n) {
			return
		}
	}
}

func (t *fiberTier) take() *pooledFiber {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.free)
	if n == 0 {
		return nil
	}
	pf := t.free[n-1]
	t.free = t.free[:n-1]
	return pf
}

func (p *fiberPool) stats() []FiberPoolStats {
	out := make([]FiberPoolStats, 0, stack.NumClasses)
	for _, t := range p.tiers {
		if t == nil {
			continue
		}
		t.mu.Lock()
		out = append(out, FiberPoolStats{
			Class:     t.class,
			Total:     len(t.fibers),
			Idle:      len(t.free),
			Starved:   t.starved.len(),
			SlotBytes: t.arena.SlotSize(),
		})
		t.mu.Unlock()
	}
	return out
}

// shutdown ends every fiber goroutine and releases the arenas. All fibers
// must be idle.
func (p *fiberPool) shutdown() {
	for _, t := range p.tiers {
		if t == nil {
			continue
		}
		for _, pf := range t.fibers {
			invariant(fiberState(pf.state.Load()) == fiberIdle, "fiber %d shut down while busy", pf.index)
			pf.exit = true
			fiber.Terminate(pf.fiber)
		}
		_ = t.arena.Release()
	}
}
