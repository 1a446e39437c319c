package core

import "time"

// TaskExecutionRecord captures a completed task.
type TaskExecutionRecord struct {
	TaskID      TaskID
	DebugID     string
	Priority    TaskPriority
	Stack       StackClass // requested by the task
	FiberStack  StackClass // tier of the fiber that ran it
	FiberIndex  int
	Worker      int // worker that ran the final slice
	Suspensions int
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
	Panicked    bool
}

// WorkerStats represents runtime state of one worker.
type WorkerStats struct {
	Index    int
	Core     int // -1 when not pinned
	Queued   int
	Executed uint64 // slices run: starts plus resumes
	Stolen   uint64
	Parks    uint64
	Idle     bool
}

// FiberPoolStats represents the state of one stack tier of the fiber pool.
type FiberPoolStats struct {
	Class     StackClass
	Total     int
	Idle      int
	Starved   int // tasks waiting for a fiber of this tier
	SlotBytes int
}

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Name             string
	Workers          int
	Fibers           int
	FibersBound      int
	FibersHighWater  int
	Pending          int64
	QueuedByPriority [NumPriorities]int
	Completed        uint64
	Panicked         uint64
	Rejected         uint64
	Closed           bool
	PerWorker        []WorkerStats
	Pools            []FiberPoolStats
}

// Queued returns the number of queued tasks across priorities.
func (s SchedulerStats) Queued() int {
	n := 0
	for _, q := range s.QueuedByPriority {
		n += q
	}
	return n
}
