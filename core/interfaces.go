package core

import (
	"fmt"
	"math/bits"
	"runtime"
	"time"

	"github.com/Swind/go-fiber-scheduler/internal/stack"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution. The task is
// then treated as completed, so groups waiting on it are still released.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called on the fiber of the panicked task.
	//
	// Parameters:
	// - debugID: The debug ID of the task
	// - workerID: The index of the worker running the task when it panicked
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(debugID string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics at error level.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information.
func (h *DefaultPanicHandler) HandlePanic(debugID string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("task", debugID),
		F("worker", workerID),
		F("panic", fmt.Sprint(panicInfo)),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records the time from a task's START to its STOP,
	// suspensions included.
	//
	// Parameters:
	// - workerName: The worker that completed the task
	// - priority: The task priority
	// - duration: Wall time from start to stop
	RecordTaskDuration(workerName string, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(workerName string, panicInfo any)

	// RecordQueueDepth records the depth of a worker queue after an external
	// submission landed in it.
	RecordQueueDepth(workerName string, depth int)

	// RecordTaskRejected records that a submission was rejected.
	//
	// Parameters:
	// - schedulerName: The name of the scheduler
	// - reason: Why the task was rejected
	RecordTaskRejected(schedulerName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(workerName string, priority TaskPriority, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(workerName string, panicInfo any) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(workerName string, depth int) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(schedulerName string, reason string) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when an external submission is rejected
// because the scheduler is closing.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(schedulerName string, reason string, count int)
}

// DefaultRejectedTaskHandler logs rejected submissions at warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected submission.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(schedulerName string, reason string, count int) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("tasks rejected", F("scheduler", schedulerName), F("reason", reason), F("count", count))
}

// =============================================================================
// ThreadPriority
// =============================================================================

// ThreadPriority is the OS scheduling class requested for worker threads.
type ThreadPriority int

const (
	ThreadPriorityDefault ThreadPriority = iota
	ThreadPriorityLow
	ThreadPriorityHigh
)

func (p ThreadPriority) String() string {
	switch p {
	case ThreadPriorityDefault:
		return "default"
	case ThreadPriorityLow:
		return "low"
	case ThreadPriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("thread_priority(%d)", int(p))
	}
}

// ParseThreadPriority accepts "default", "low" or "high". The empty string
// means default.
func ParseThreadPriority(s string) (ThreadPriority, error) {
	switch s {
	case "", "default":
		return ThreadPriorityDefault, nil
	case "low":
		return ThreadPriorityLow, nil
	case "high":
		return ThreadPriorityHigh, nil
	default:
		return ThreadPriorityDefault, newSchedulerError(ErrInvalidConfig, "unknown thread priority %q", s)
	}
}

// =============================================================================
// SchedulerConfig: Configuration for TaskScheduler
// =============================================================================

// MaxWorkerCount bounds the number of workers one scheduler may own.
const MaxWorkerCount = 64

// FiberCounts is the number of pooled fibers per stack tier. Every fiber
// reserves one arena slot of its tier size plus a guard page at start-up. The
// slot is the task's scratch memory (FiberContext.Stack); task code itself
// runs on the fiber goroutine's own growable stack. Pages of a slot only
// become resident once the task touches them.
type FiberCounts struct {
	Small    int
	Standard int
	Extended int
}

// Total returns the number of fibers across all tiers.
func (c FiberCounts) Total() int {
	return c.Small + c.Standard + c.Extended
}

func (c FiberCounts) byClass() [stack.NumClasses]int {
	return [stack.NumClasses]int{
		stack.Small:    c.Small,
		stack.Standard: c.Standard,
		stack.Extended: c.Extended,
	}
}

// SchedulerConfig holds configuration options for TaskScheduler.
// All handlers are optional; if not provided, default implementations will be used.
type SchedulerConfig struct {
	// Name labels logs and rejection metrics. Defaults to "fiberscheduler".
	Name string

	// WorkerCount is the number of workers. 0 means runtime.NumCPU()-1, at
	// least one.
	WorkerCount int

	// AffinityMask pins workers to CPU cores. Bit n allows core n. Worker i
	// is pinned to the (i mod popcount)-th allowed core. 0 disables pinning.
	AffinityMask uint64

	// PinWorkerThreads locks each worker goroutine to its own OS thread even
	// without an affinity mask, so thread names and priorities apply. Any of
	// AffinityMask, PinWorkerThreads or ThreadPriority also locks every pooled
	// fiber to an OS thread that takes on the name, core and priority of the
	// worker currently running it.
	PinWorkerThreads bool

	// ThreadPriority is applied to locked worker and fiber threads, best
	// effort.
	ThreadPriority ThreadPriority

	// ThreadNamePrefix names locked threads as prefix+worker index.
	ThreadNamePrefix string

	// FiberCounts sizes the fiber pool per stack tier.
	FiberCounts FiberCounts

	// SpinCount is the number of yield rounds an idle worker spins before
	// parking.
	SpinCount int

	// MaxParkTime bounds a single park so parked workers re-check for work
	// to steal.
	MaxParkTime time.Duration

	// HistoryCapacity is the number of recent task records kept.
	HistoryCapacity int

	// Listener receives instrumentation callbacks. Defaults to NopListener.
	Listener Listener

	// Logger defaults to a zerolog console logger at info level.
	Logger Logger

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a submission is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultSchedulerConfig returns a config with default pool sizes and handlers.
// The default pool maps about 17 MiB of address space (64 small, 256 standard
// and 8 extended slots); lower FiberCounts when tasks make little use of
// FiberContext.Stack.
func DefaultSchedulerConfig() *SchedulerConfig {
	logger := NewDefaultLogger()
	return &SchedulerConfig{
		Name:             "fiberscheduler",
		ThreadNamePrefix: "fiber-worker-",
		FiberCounts: FiberCounts{
			Small:    64,
			Standard: 256,
			Extended: 8,
		},
		SpinCount:           64,
		MaxParkTime:         10 * time.Millisecond,
		HistoryCapacity:     defaultTaskHistoryCapacity,
		Listener:            NopListener{},
		Logger:              logger,
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
	}
}

// Validate reports the first invalid setting. It does not modify c.
func (c *SchedulerConfig) Validate() error {
	if c.WorkerCount < 0 || c.WorkerCount > MaxWorkerCount {
		return newSchedulerError(ErrInvalidConfig, "worker count %d out of range [0,%d]", c.WorkerCount, MaxWorkerCount)
	}
	if c.FiberCounts.Small < 0 || c.FiberCounts.Standard < 0 || c.FiberCounts.Extended < 0 {
		return newSchedulerError(ErrInvalidConfig, "negative fiber count %+v", c.FiberCounts)
	}
	if c.FiberCounts.Total() == 0 {
		return newSchedulerError(ErrInvalidConfig, "fiber pool is empty")
	}
	if c.SpinCount < 0 {
		return newSchedulerError(ErrInvalidConfig, "spin count %d is negative", c.SpinCount)
	}
	if c.MaxParkTime < 0 {
		return newSchedulerError(ErrInvalidConfig, "max park time %v is negative", c.MaxParkTime)
	}
	switch c.ThreadPriority {
	case ThreadPriorityDefault, ThreadPriorityLow, ThreadPriorityHigh:
	default:
		return newSchedulerError(ErrInvalidConfig, "unknown thread priority %d", int(c.ThreadPriority))
	}
	if c.AffinityMask != 0 {
		highest := 63 - bits.LeadingZeros64(c.AffinityMask)
		if highest >= runtime.NumCPU() {
			return newSchedulerError(ErrInvalidCore, "affinity mask %#x names core %d, only %d available", c.AffinityMask, highest, runtime.NumCPU())
		}
	}
	return nil
}

// resolved returns a copy with defaults applied. The receiver must be valid.
func (c *SchedulerConfig) resolved() SchedulerConfig {
	out := *c
	def := DefaultSchedulerConfig()

	if out.Name == "" {
		out.Name = def.Name
	}
	if out.WorkerCount == 0 {
		out.WorkerCount = max(runtime.NumCPU()-1, 1)
	}
	if out.ThreadNamePrefix == "" {
		out.ThreadNamePrefix = def.ThreadNamePrefix
	}
	if out.MaxParkTime == 0 {
		out.MaxParkTime = def.MaxParkTime
	}
	if out.HistoryCapacity <= 0 {
		out.HistoryCapacity = def.HistoryCapacity
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.Listener == nil {
		out.Listener = NopListener{}
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: out.Logger}
	}
	return out
}

// pinned reports whether workers lock their OS thread.
func (c *SchedulerConfig) pinned() bool {
	return c.PinWorkerThreads || c.AffinityMask != 0 || c.ThreadPriority != ThreadPriorityDefault
}

// coreFor returns the core worker i is pinned to, or -1.
func (c *SchedulerConfig) coreFor(i int) int {
	if c.AffinityMask == 0 {
		return -1
	}
	var cores []int
	for m := c.AffinityMask; m != 0; m &= m - 1 {
		cores = append(cores, bits.TrailingZeros64(m))
	}
	return cores[i%len(cores)]
}
