package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-fiber-scheduler/internal/syncx"
)

// Infinite waits without a timeout.
const Infinite = syncx.Infinite

// TaskGroup tracks how many submitted tasks are still outstanding.
//
// The count only moves through atomic adds: up by the batch size before a
// batch is queued, down by one as each task completes. Goroutines outside the
// scheduler wait on a manual-reset event; suspended fibers wait in a list
// that is drained when the count reaches zero.
type TaskGroup struct {
	name  string
	count atomic.Int64

	mu      sync.Mutex
	zero    *syncx.Event
	waiters []*groupWaiter
}

// groupWaiter is a suspended fiber waiting for a group. fired makes the
// zero-count wakeup and the timeout mutually exclusive.
type groupWaiter struct {
	inst     *taskInstance
	deadline *Deadline
	fired    atomic.Bool
}

// NewTaskGroup creates an empty group.
func NewTaskGroup(name string) *TaskGroup {
	return &TaskGroup{
		name: name,
		zero: syncx.NewEvent(syncx.ManualReset, true),
	}
}

// Name returns the debug name of the group.
func (g *TaskGroup) Name() string { return g.name }

// Count returns the number of tasks submitted to the group that have not
// completed.
func (g *TaskGroup) Count() int64 { return g.count.Load() }

func (g *TaskGroup) add(n int64) {
	if g.count.Add(n) != n {
		return
	}
	// left zero
	g.mu.Lock()
	if g.count.Load() > 0 {
		g.zero.Reset()
	}
	g.mu.Unlock()
}

// done records one completion and returns the fibers to wake when the count
// reached zero.
func (g *TaskGroup) done() []*groupWaiter {
	n := g.count.Add(-1)
	invariant(n >= 0, "group %q count went negative", g.name)
	if n != 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count.Load() != 0 {
		return nil
	}
	g.zero.Signal()
	ws := g.waiters
	g.waiters = nil
	return ws
}

// register queues w unless the count is already zero, in which case it
// reports true and w is not kept.
func (g *TaskGroup) register(w *groupWaiter) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count.Load() == 0 {
		return true
	}
	if w.fired.Load() {
		return false
	}
	g.waiters = append(g.waiters, w)
	return false
}

func (g *TaskGroup) unregister(w *groupWaiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, x := range g.waiters {
		if x == w {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
}

// wait blocks the calling goroutine until the count reaches zero or the
// timeout elapses.
func (g *TaskGroup) wait(timeout time.Duration) bool {
	if g.count.Load() == 0 {
		return true
	}
	return g.zero.Wait(timeout)
}
