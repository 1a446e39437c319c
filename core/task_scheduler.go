package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-fiber-scheduler/internal/stack"
	"github.com/Swind/go-fiber-scheduler/internal/syncx"
)

const rejectReasonClosed = "scheduler closed"

// TaskScheduler runs tasks on pooled fibers multiplexed over a fixed set of
// workers.
type TaskScheduler struct {
	cfg SchedulerConfig

	listener            Listener
	logger              Logger
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	workers   []*worker
	pool      *fiberPool
	deadlines *DeadlineManager
	history   executionHistory

	defaultGroup *TaskGroup
	all          *TaskGroup // every task not yet completed

	next        atomic.Uint64
	idleWorkers syncx.Counter
	completed   syncx.Counter
	panicked    syncx.Counter
	rejected    syncx.Counter

	// submitMu orders external submissions against Close so no batch lands
	// after the workers decided to exit.
	submitMu  sync.RWMutex
	closing   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewTaskScheduler starts workerCount workers (0 means one less than the
// number of CPUs) with default pool sizes. A non-zero affinityMask pins
// workers to the cores whose bits are set.
func NewTaskScheduler(workerCount int, affinityMask uint64, listener Listener) (*TaskScheduler, error) {
	cfg := DefaultSchedulerConfig()
	cfg.WorkerCount = workerCount
	cfg.AffinityMask = affinityMask
	cfg.Listener = listener
	return NewTaskSchedulerWithConfig(cfg)
}

// NewTaskSchedulerWithConfig validates cfg, reserves the fiber pool and
// starts the workers. A nil cfg means DefaultSchedulerConfig.
func NewTaskSchedulerWithConfig(cfg *SchedulerConfig) (*TaskScheduler, error) {
	if cfg == nil {
		cfg = DefaultSchedulerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &TaskScheduler{cfg: cfg.resolved()}
	s.listener = s.cfg.Listener
	s.logger = s.cfg.Logger
	s.panicHandler = s.cfg.PanicHandler
	s.metrics = s.cfg.Metrics
	s.rejectedTaskHandler = s.cfg.RejectedTaskHandler
	s.history = newExecutionHistory(s.cfg.HistoryCapacity)
	s.defaultGroup = NewTaskGroup("default")
	s.all = NewTaskGroup("all")

	pool, err := newFiberPool(s.cfg.FiberCounts, s.exec)
	if err != nil {
		return nil, err
	}
	s.pool = pool
	s.deadlines = NewDeadlineManager()

	s.workers = make([]*worker, s.cfg.WorkerCount)
	for i := range s.workers {
		s.workers[i] = newWorker(s, i)
	}

	s.listener.OnThreadsCreated(len(s.workers))
	s.listener.OnFibersCreated(pool.size())

	s.wg.Add(len(s.workers))
	for _, w := range s.workers {
		go w.loop()
	}

	s.logger.Info("scheduler started",
		F("name", s.cfg.Name),
		F("workers", len(s.workers)),
		F("fibers", pool.size()),
		F("affinity_mask", s.cfg.AffinityMask),
		F("arena_bytes", stack.MappedBytes()),
	)
	return s, nil
}

// Name returns the configured scheduler name.
func (s *TaskScheduler) Name() string { return s.cfg.Name }

// WorkerCount returns the number of workers.
func (s *TaskScheduler) WorkerCount() int { return len(s.workers) }

// FiberCount returns the number of pooled fibers across all stack tiers.
func (s *TaskScheduler) FiberCount() int { return s.pool.size() }

// DefaultGroup returns the group used when a nil group is passed.
func (s *TaskScheduler) DefaultGroup() *TaskGroup { return s.defaultGroup }

// NewGroup creates a task group. Groups are not tied to a scheduler, the
// method exists for symmetry with DefaultGroup.
func (s *TaskScheduler) NewGroup(name string) *TaskGroup { return NewTaskGroup(name) }

// IsClosed reports whether Close has been called.
func (s *TaskScheduler) IsClosed() bool { return s.closing.Load() }

// RunAsync submits tasks from outside the scheduler. The group count is
// raised by len(tasks) before any of them can run. Tasks are spread
// round-robin over the workers. A nil group means the default group.
//
// Inside a task use FiberContext.RunAsync instead.
func (s *TaskScheduler) RunAsync(group *TaskGroup, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}

	s.submitMu.RLock()
	defer s.submitMu.RUnlock()

	if s.closing.Load() {
		s.rejected.Inc()
		s.rejectedTaskHandler.HandleRejectedTask(s.cfg.Name, rejectReasonClosed, len(tasks))
		s.metrics.RecordTaskRejected(s.cfg.Name, rejectReasonClosed)
		return ErrSchedulerClosed
	}

	insts, err := s.prepare(group, nil, tasks)
	if err != nil {
		return err
	}
	s.submitExternal(insts)
	return nil
}

// prepare validates the batch and counts it in its group and in the global
// pending count. Nothing is counted when any task is invalid.
func (s *TaskScheduler) prepare(group *TaskGroup, parent *taskInstance, tasks []Task) ([]*taskInstance, error) {
	if group == nil {
		group = s.defaultGroup
	}

	insts := make([]*taskInstance, 0, len(tasks))
	for i, task := range tasks {
		if task == nil {
			return nil, newSchedulerError(ErrNilTask, "task %d of %d", i, len(tasks))
		}
		traits := task.Traits()
		if err := traits.validate(); err != nil {
			return nil, err
		}
		if !s.pool.hosts(traits.Stack) {
			return nil, newSchedulerError(ErrInvalidTask, "no fibers for stack class %s", traits.Stack)
		}
		insts = append(insts, newTaskInstance(s, task, traits, group, parent))
	}

	n := int64(len(insts))
	group.add(n)
	s.all.add(n)
	return insts, nil
}

// submitExternal deals the batch round-robin, one inbox lock per target
// worker.
func (s *TaskScheduler) submitExternal(insts []*taskInstance) {
	n := len(s.workers)
	start := int(s.next.Add(uint64(len(insts))) - uint64(len(insts)))

	buckets := make([][]*taskInstance, n)
	for i, inst := range insts {
		k := (start + i) % n
		buckets[k] = append(buckets[k], inst)
	}

	for k, batch := range buckets {
		if len(batch) == 0 {
			continue
		}
		w := s.workers[k]
		w.queue.pushBatch(batch)
		s.metrics.RecordQueueDepth(w.name, w.queue.len())
		w.signal()
	}
}

// submitLocal queues on w's deques. Only valid from w or a fiber it runs.
func (s *TaskScheduler) submitLocal(w *worker, insts []*taskInstance) {
	for _, inst := range insts {
		w.queue.pushLocal(inst)
	}
	for i := 0; i < len(insts) && s.idleWorkers.Load() > 0; i++ {
		if !s.wakeIdle() {
			break
		}
	}
}

// requeueShared makes a suspended task ready from a goroutine that is not a
// worker.
func (s *TaskScheduler) requeueShared(inst *taskInstance) {
	w := inst.worker
	w.queue.pushShared(inst)
	w.signal()
}

// wakeIdle signals one parked worker and reports whether one was found.
func (s *TaskScheduler) wakeIdle() bool {
	if s.idleWorkers.Load() == 0 {
		return false
	}
	for _, w := range s.workers {
		if w.parked.Load() {
			w.signal()
			return true
		}
	}
	return false
}

func (s *TaskScheduler) signalAll() {
	for _, w := range s.workers {
		w.signal()
	}
}

func (s *TaskScheduler) hasQueuedWork() bool {
	for _, w := range s.workers {
		if w.queue.len() > 0 {
			return true
		}
	}
	return false
}

// drained reports whether workers may exit.
func (s *TaskScheduler) drained() bool {
	return s.closing.Load() && s.all.Count() == 0
}

// WaitAll blocks the calling goroutine until group has no outstanding tasks
// or timeout elapses. Infinite waits forever. A nil group means the default
// group.
//
// It must not be called from a task; use FiberContext.WaitAll there.
func (s *TaskScheduler) WaitAll(group *TaskGroup, timeout time.Duration) bool {
	if group == nil {
		group = s.defaultGroup
	}
	return s.wait(group, timeout)
}

// WaitAllTasks waits for every submitted task regardless of group.
func (s *TaskScheduler) WaitAllTasks(timeout time.Duration) bool {
	return s.wait(s.all, timeout)
}

func (s *TaskScheduler) wait(g *TaskGroup, timeout time.Duration) bool {
	s.assertNotOnFiber("WaitAll")
	if g.Count() == 0 {
		return true
	}
	s.listener.OnThreadWaitStarted()
	ok := g.wait(timeout)
	s.listener.OnThreadWaitFinished()
	return ok
}

// assertNotOnFiber fails when a task calls a blocking scheduler method,
// which would stall the worker running it.
func (s *TaskScheduler) assertNotOnFiber(method string) {
	pf := s.pool.current()
	if pf == nil {
		return
	}
	task := ""
	if pf.inst != nil {
		task = pf.inst.debugID
	}
	invariant(false, "%s called from task %q on fiber %d; use the FiberContext method", method, task, pf.index)
}

// Stats returns a snapshot of queue depths, pool usage and counters. Values
// are read without a global lock and may be mutually inconsistent.
func (s *TaskScheduler) Stats() SchedulerStats {
	st := SchedulerStats{
		Name:            s.cfg.Name,
		Workers:         len(s.workers),
		Fibers:          s.pool.size(),
		FibersBound:     int(s.pool.bound.Load()),
		FibersHighWater: int(s.pool.highWater.Load()),
		Pending:         s.all.Count(),
		Completed:       uint64(s.completed.Load()),
		Panicked:        uint64(s.panicked.Load()),
		Rejected:        uint64(s.rejected.Load()),
		Closed:          s.closed.Load(),
		PerWorker:       make([]WorkerStats, 0, len(s.workers)),
		Pools:           s.pool.stats(),
	}
	for _, w := range s.workers {
		byPriority := w.queue.lenByPriority()
		queued := 0
		for p, n := range byPriority {
			st.QueuedByPriority[p] += n
			queued += n
		}
		st.PerWorker = append(st.PerWorker, WorkerStats{
			Index:    w.index,
			Core:     w.core,
			Queued:   queued,
			Executed: w.executed.Load(),
			Stolen:   w.stolen.Load(),
			Parks:    w.parks.Load(),
			Idle:     w.parked.Load(),
		})
	}
	return st
}

// RecentTasks returns up to limit completed tasks, newest first.
func (s *TaskScheduler) RecentTasks(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

// RecentTasksOnWorker returns up to limit completed tasks whose final slice
// ran on worker, newest first.
func (s *TaskScheduler) RecentTasksOnWorker(worker, limit int) []TaskExecutionRecord {
	return s.history.Matching(limit, func(r *TaskExecutionRecord) bool { return r.Worker == worker })
}

// FiberUsage summarizes the retained history per fiber index.
func (s *TaskScheduler) FiberUsage() []FiberUsage {
	return s.history.FiberUsage()
}

// LastTask returns the most recently completed task.
func (s *TaskScheduler) LastTask() (TaskExecutionRecord, bool) {
	return s.history.Last()
}

// Close stops accepting external submissions, runs every pending task to
// completion (suspended ones included), then joins the workers and releases
// the fiber pool. Tasks may still submit work while the scheduler drains.
// Close is idempotent and must not be called from a task.
func (s *TaskScheduler) Close() {
	s.assertNotOnFiber("Close")
	s.closeOnce.Do(func() {
		start := time.Now()

		s.submitMu.Lock()
		s.closing.Store(true)
		s.submitMu.Unlock()

		s.signalAll()
		s.wg.Wait()

		s.deadlines.Stop()
		s.pool.shutdown()
		s.closed.Store(true)

		s.logger.Info("scheduler closed",
			F("name", s.cfg.Name),
			F("completed", uint64(s.completed.Load())),
			F("panicked", uint64(s.panicked.Load())),
			F("elapsed", time.Since(start)),
		)
	})
}
