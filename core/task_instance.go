package core

import (
	"sync/atomic"
	"time"
)

// taskState is the lifecycle of one submitted task.
//
//	queued -> running -> completed
//	             |  ^
//	             v  |
//	          suspended
type taskState int32

const (
	stateQueued taskState = iota
	stateRunning
	stateSuspended
	stateCompleted
)

func (s taskState) String() string {
	switch s {
	case stateQueued:
		return "queued"
	case stateRunning:
		return "running"
	case stateSuspended:
		return "suspended"
	case stateCompleted:
		return "completed"
	default:
		return "invalid"
	}
}

// waitReason is written by the fiber right before it switches back to its
// worker and tells the worker why control came back.
type waitReason int

const (
	waitNone     waitReason = iota // task returned
	waitYield                      // re-queue immediately
	waitChildren                   // resume when the children counter drains
	waitGroup                      // resume when a group drains or times out
)

type taskInstance struct {
	id      TaskID
	task    Task
	traits  TaskTraits
	debugID string
	group   *TaskGroup
	parent  *taskInstance
	state   atomic.Int32

	fiber  *pooledFiber
	worker *worker // worker running or last running the task
	ctx    FiberContext

	// children holds the number of outstanding children plus one while the
	// parent is switching out. Whoever brings it to zero resumes the parent.
	children atomic.Int32

	wait        waitReason
	waitGroup   *TaskGroup
	waitTimeout time.Duration
	waitResult  bool

	startedAt   time.Time
	suspensions int
	panicked    bool
}

func newTaskInstance(s *TaskScheduler, task Task, traits TaskTraits, group *TaskGroup, parent *taskInstance) *taskInstance {
	inst := &taskInstance{
		id:      GenerateTaskID(),
		task:    task,
		traits:  traits,
		debugID: resolveDebugID(task, traits),
		group:   group,
		parent:  parent,
	}
	inst.ctx = FiberContext{inst: inst, sched: s}
	return inst
}

func (t *taskInstance) loadState() taskState {
	return taskState(t.state.Load())
}

func (t *taskInstance) transition(from, to taskState) {
	ok := t.state.CompareAndSwap(int32(from), int32(to))
	invariant(ok, "task %s: transition %s -> %s from state %s", t.debugID, from, to, t.loadState())
}
