package core

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Swind/go-fiber-scheduler/internal/fiber"
	"github.com/Swind/go-fiber-scheduler/internal/syncx"
)

// worker owns one goroutine running the scheduling loop, its queues and the
// scheduler fiber that pooled fibers switch back to.
type worker struct {
	index int
	name  string
	core  int
	sched *TaskScheduler
	queue *workQueue

	schedFiber *fiber.Fiber
	wake       *syncx.Event
	parked     atomic.Bool
	rng        uint64

	executed atomic.Uint64
	stolen   atomic.Uint64
	parks    atomic.Uint64
}

func newWorker(s *TaskScheduler, index int) *worker {
	return &worker{
		index: index,
		name:  "worker-" + strconv.Itoa(index),
		core:  s.cfg.coreFor(index),
		sched: s,
		queue: newWorkQueue(),
		wake:  syncx.NewEvent(syncx.AutoReset, false),
		rng:   uint64(index)*0x9E3779B97F4A7C15 + 1,
	}
}

// loop is the worker goroutine.
func (w *worker) loop() {
	s := w.sched
	defer s.wg.Done()

	w.setupThread()
	w.schedFiber = fiber.FromCurrentThread()

	s.listener.OnThreadCreated(w.index)
	s.listener.OnThreadStarted(w.index)

	for {
		if inst := w.findWork(); inst != nil {
			w.run(inst)
			continue
		}
		if s.drained() {
			break
		}
		w.idle()
	}

	s.listener.OnThreadStopped(w.index)
	// a locked thread is discarded when the goroutine exits, which is what we
	// want after changing its affinity or priority
}

func (w *worker) setupThread() {
	if !w.sched.cfg.pinned() {
		return
	}
	runtime.LockOSThread()
	w.configureThread(w.sched.logger.Warn)
}

// configureThread applies w's thread name, core and priority to the calling
// OS thread, which must be locked. Failures go to report and are ignored.
func (w *worker) configureThread(report func(msg string, fields ...Field)) {
	cfg := &w.sched.cfg
	if err := setThreadName(cfg.ThreadNamePrefix + strconv.Itoa(w.index)); err != nil {
		report("set thread name failed", F("worker", w.index), F("error", err))
	}
	if w.core >= 0 {
		if err := setThreadAffinity(w.core); err != nil {
			report("set thread affinity failed", F("worker", w.index), F("core", w.core), F("error", err))
		}
	}
	if cfg.ThreadPriority != ThreadPriorityDefault {
		if err := setThreadPriority(cfg.ThreadPriority); err != nil {
			report("set thread priority failed", F("worker", w.index), F("priority", cfg.ThreadPriority), F("error", err))
		}
	}
}

// findWork pops local work first, then steals.
func (w *worker) findWork() *taskInstance {
	if inst := w.queue.pop(); inst != nil {
		return inst
	}
	return w.steal()
}

// steal scans priorities high to low. For each priority every other worker
// is tried once, starting from a random victim.
func (w *worker) steal() *taskInstance {
	workers := w.sched.workers
	n := len(workers)
	if n < 2 {
		return nil
	}
	start := int(w.nextRandom() % uint64(n))
	for p := 0; p < NumPriorities; p++ {
		for k := 0; k < n; k++ {
			victim := workers[(start+k)%n]
			if victim == w {
				continue
			}
			if inst := victim.queue.steal(p); inst != nil {
				w.stolen.Add(1)
				return inst
			}
		}
	}
	return nil
}

// nextRandom is xorshift64.
func (w *worker) nextRandom() uint64 {
	x := w.rng
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	w.rng = x
	return x
}

// idle spins briefly and then parks until signaled or MaxParkTime passes.
func (w *worker) idle() {
	s := w.sched
	for i := 0; i < s.cfg.SpinCount; i++ {
		runtime.Gosched()
		if s.hasQueuedWork() {
			return
		}
	}

	w.parked.Store(true)
	s.idleWorkers.Add(1)
	defer func() {
		s.idleWorkers.Add(-1)
		w.parked.Store(false)
	}()

	// re-check after publishing parked so a concurrent push either sees us
	// parked or we see its work
	if s.hasQueuedWork() || s.drained() {
		return
	}

	w.parks.Add(1)
	s.listener.OnThreadIdleStarted(w.index)
	w.wake.Wait(s.cfg.MaxParkTime)
	s.listener.OnThreadIdleFinished(w.index)
}

func (w *worker) signal() {
	w.wake.Signal()
}

// run executes one slice of inst: from START or RESUME up to the next
// SUSPEND or STOP.
func (w *worker) run(inst *taskInstance) {
	s := w.sched
	pf := inst.fiber

	if pf == nil {
		pf = s.pool.acquire(inst)
		if pf == nil {
			s.logger.Debug("fiber pool exhausted, task parked", F("task", inst.debugID), F("stack", inst.traits.Stack))
			return
		}
		pf.transition(fiberIdle, fiberRunning)
		pf.inst = inst
		inst.fiber = pf
		inst.transition(stateQueued, stateRunning)
		inst.startedAt = time.Now()
		s.listener.OnTaskExecuteStateChanged(inst.traits.Color, inst.debugID, TaskStart, pf.index)
	} else {
		pf.transition(fiberSuspended, fiberRunning)
		inst.transition(stateSuspended, stateRunning)
		s.listener.OnTaskExecuteStateChanged(inst.traits.Color, inst.debugID, TaskResume, pf.index)
	}

	inst.worker = w
	w.executed.Add(1)
	fiber.SwitchTo(w.schedFiber, pf.fiber)

	if inst.wait == waitNone {
		w.complete(inst, pf)
		return
	}

	inst.transition(stateRunning, stateSuspended)
	pf.transition(fiberRunning, fiberSuspended)
	inst.suspensions++
	s.listener.OnTaskExecuteStateChanged(inst.traits.Color, inst.debugID, TaskSuspend, pf.index)

	// From here on another worker may resume inst; only the wait bookkeeping
	// below may touch it.
	switch inst.wait {
	case waitYield:
		w.queue.pushShared(inst)
		s.wakeIdle()
	case waitChildren:
		// drop the hold taken by RunSubtasksAndYield
		if inst.children.Add(-1) == 0 {
			w.makeReady(inst)
		}
	case waitGroup:
		w.waitGroup(inst)
	default:
		invariant(false, "task %s: unknown wait reason %d", inst.debugID, inst.wait)
	}
}

// complete handles RUNNING -> COMPLETED.
func (w *worker) complete(inst *taskInstance, pf *pooledFiber) {
	s := w.sched

	inst.transition(stateRunning, stateCompleted)
	s.listener.OnTaskExecuteStateChanged(inst.traits.Color, inst.debugID, TaskStop, pf.index)

	finishedAt := time.Now()
	duration := finishedAt.Sub(inst.startedAt)
	s.metrics.RecordTaskDuration(w.name, inst.traits.Priority, duration)
	s.history.Add(TaskExecutionRecord{
		TaskID:      inst.id,
		DebugID:     inst.debugID,
		Priority:    inst.traits.Priority,
		Stack:       inst.traits.Stack,
		FiberStack:  pf.class,
		FiberIndex:  pf.index,
		Worker:      w.index,
		Suspensions: inst.suspensions,
		StartedAt:   inst.startedAt,
		FinishedAt:  finishedAt,
		Duration:    duration,
		Panicked:    inst.panicked,
	})

	pf.transition(fiberRunning, fiberIdle)
	inst.fiber = nil
	if starved := s.pool.release(pf); starved != nil {
		w.queue.pushLocal(starved)
	}

	s.completed.Inc()
	if parent := inst.parent; parent != nil {
		if parent.children.Add(-1) == 0 {
			w.makeReady(parent)
		}
	}
	for _, gw := range inst.group.done() {
		w.wakeWaiter(gw)
	}
	inst.task = nil

	for _, gw := range s.all.done() {
		w.wakeWaiter(gw)
	}
	if s.closing.Load() && s.all.Count() == 0 {
		s.signalAll()
	}
}

// waitGroup parks inst on its group, or requeues it at once when the group
// is already empty.
func (w *worker) waitGroup(inst *taskInstance) {
	s := w.sched
	g := inst.waitGroup
	gw := &groupWaiter{inst: inst}

	if inst.waitTimeout >= 0 {
		gw.deadline = s.deadlines.Add(inst.waitTimeout, func() {
			if !gw.fired.CompareAndSwap(false, true) {
				return
			}
			g.unregister(gw)
			inst.waitResult = false
			s.requeueShared(inst)
		})
	}

	if g.register(gw) {
		w.wakeWaiter(gw)
	}
}

func (w *worker) wakeWaiter(gw *groupWaiter) {
	if !gw.fired.CompareAndSwap(false, true) {
		return
	}
	w.sched.deadlines.Cancel(gw.deadline)
	gw.inst.waitResult = true
	w.makeReady(gw.inst)
}

// makeReady queues a suspended task on this worker. Only the worker's own
// goroutine may call it.
func (w *worker) makeReady(inst *taskInstance) {
	w.queue.pushLocal(inst)
	w.sched.wakeIdle()
}

// exec runs the task body on the current fiber. Panics are reported and
// swallowed; assertion failures are re-raised.
func (s *TaskScheduler) exec(inst *taskInstance) {
	var pc panics.Catcher
	pc.Try(func() { inst.task.Do(&inst.ctx) })

	r := pc.Recovered()
	if r == nil {
		return
	}
	if _, ok := r.Value.(*AssertionError); ok {
		pc.Repanic()
	}

	inst.panicked = true
	s.panicked.Inc()
	s.panicHandler.HandlePanic(inst.debugID, inst.worker.index, r.Value, r.Stack)
	s.metrics.RecordTaskPanic(inst.worker.name, r.Value)
}
