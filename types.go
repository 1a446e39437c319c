package fiberscheduler

import "github.com/Swind/go-fiber-scheduler/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the fiberscheduler package for most use cases.

// Scheduler runs tasks on pooled fibers over a fixed set of workers
type Scheduler = core.TaskScheduler

// Task is the unit of work
type Task = core.Task

// TaskFunc is the body of a closure task
type TaskFunc = core.TaskFunc

// TaskTraits defines task attributes (priority, stack class, debug info)
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for tasks
type TaskPriority = core.TaskPriority

// StackClass selects the fiber stack tier of a task
type StackClass = core.StackClass

// Color is the debug color reported to listeners
type Color = core.Color

// TaskGroup counts outstanding tasks
type TaskGroup = core.TaskGroup

// FiberContext is the handle a running task uses to talk to the scheduler
type FiberContext = core.FiberContext

// Listener receives instrumentation callbacks
type Listener = core.Listener

// NopListener ignores every callback; embed it to implement a subset
type NopListener = core.NopListener

// TaskExecuteState is reported by Listener.OnTaskExecuteStateChanged
type TaskExecuteState = core.TaskExecuteState

// SchedulerConfig holds every scheduler setting
type SchedulerConfig = core.SchedulerConfig

// FiberCounts sizes the fiber pool per stack tier
type FiberCounts = core.FiberCounts

// ThreadPriority is the OS priority requested for worker threads
type ThreadPriority = core.ThreadPriority

// SchedulerStats, WorkerStats, FiberPoolStats, TaskExecutionRecord and
// FiberUsage are observability snapshots
type (
	SchedulerStats      = core.SchedulerStats
	WorkerStats         = core.WorkerStats
	FiberPoolStats      = core.FiberPoolStats
	TaskExecutionRecord = core.TaskExecutionRecord
	FiberUsage          = core.FiberUsage
)

// Logger, PanicHandler, Metrics and RejectedTaskHandler are the pluggable
// handlers of a scheduler
type (
	Logger              = core.Logger
	Field               = core.Field
	PanicHandler        = core.PanicHandler
	Metrics             = core.Metrics
	RejectedTaskHandler = core.RejectedTaskHandler
)

// Priority constants
const (
	TaskPriorityCritical TaskPriority = core.TaskPriorityCritical
	TaskPriorityHigh     TaskPriority = core.TaskPriorityHigh
	TaskPriorityNormal   TaskPriority = core.TaskPriorityNormal
	TaskPriorityLow      TaskPriority = core.TaskPriorityLow
)

// Stack class constants
const (
	StackSmall    StackClass = core.StackSmall
	StackStandard StackClass = core.StackStandard
	StackExtended StackClass = core.StackExtended
)

// Task state constants
const (
	TaskStart   TaskExecuteState = core.TaskStart
	TaskResume  TaskExecuteState = core.TaskResume
	TaskSuspend TaskExecuteState = core.TaskSuspend
	TaskStop    TaskExecuteState = core.TaskStop
)

// Thread priority constants
const (
	ThreadPriorityDefault ThreadPriority = core.ThreadPriorityDefault
	ThreadPriorityLow     ThreadPriority = core.ThreadPriorityLow
	ThreadPriorityHigh    ThreadPriority = core.ThreadPriorityHigh
)

// Infinite disables a WaitAll timeout
const Infinite = core.Infinite

// Errors
var (
	ErrSchedulerClosed = core.ErrSchedulerClosed
	ErrNilTask         = core.ErrNilTask
	ErrInvalidTask     = core.ErrInvalidTask
	ErrInvalidConfig   = core.ErrInvalidConfig
	ErrInvalidCore     = core.ErrInvalidCore
	ErrStackAllocation = core.ErrStackAllocation
)

// Convenience functions for creating tasks and traits
var (
	NewTask           = core.NewTask
	Func              = core.Func
	NewTaskGroup      = core.NewTaskGroup
	DefaultTaskTraits = core.DefaultTaskTraits
	TraitsCritical    = core.TraitsCritical
	TraitsHigh        = core.TraitsHigh
	TraitsLow         = core.TraitsLow
	Listeners         = core.Listeners
	F                 = core.F
)
