package core

import (
	"time"

	"github.com/Swind/go-fiber-scheduler/internal/fiber"
)

// FiberContext is the handle a running task uses to talk to the scheduler.
// It is only valid inside the Do call it was passed to; using it after Do
// returns, or from another goroutine, is an assertion failure.
type FiberContext struct {
	inst  *taskInstance
	sched *TaskScheduler
}

func (c *FiberContext) check() {
	invariant(c != nil && c.inst != nil, "nil FiberContext")
	invariant(c.inst.loadState() == stateRunning, "FiberContext of task %s used while %s", c.inst.debugID, c.inst.loadState())
}

// Scheduler returns the scheduler running the task.
func (c *FiberContext) Scheduler() *TaskScheduler {
	return c.sched
}

// Group returns the group the task was submitted to.
func (c *FiberContext) Group() *TaskGroup {
	return c.inst.group
}

// WorkerIndex returns the worker currently running the task. It can change
// across suspension points.
func (c *FiberContext) WorkerIndex() int {
	c.check()
	return c.inst.worker.index
}

// FiberIndex returns the pool index of the fiber hosting the task. It is
// stable for the lifetime of the task.
func (c *FiberContext) FiberIndex() int {
	c.check()
	return c.inst.fiber.index
}

// Stack returns the scratch memory of the fiber's stack slot. Contents do
// not survive the task.
func (c *FiberContext) Stack() []byte {
	c.check()
	return c.inst.fiber.fiber.Stack()
}

// TaskID returns the ID of the running task.
func (c *FiberContext) TaskID() TaskID {
	return c.inst.id
}

// Yield suspends the task and queues it behind other ready work of the same
// priority on the current worker.
func (c *FiberContext) Yield() {
	c.check()
	c.suspend(waitYield)
}

// RunAsync submits tasks without waiting. They are queued on the current
// worker, where idle workers can steal them. A nil group means the
// scheduler's default group. Submissions from a fiber are accepted while the
// scheduler is closing.
func (c *FiberContext) RunAsync(group *TaskGroup, tasks ...Task) error {
	c.check()
	insts, err := c.sched.prepare(group, nil, tasks)
	if err != nil {
		return err
	}
	c.sched.submitLocal(c.inst.worker, insts)
	return nil
}

// RunSubtasksAndYield submits children and suspends until all of them have
// completed. The children are counted in group, or in a fresh group when
// group is nil, so WaitAll on that group also covers them.
func (c *FiberContext) RunSubtasksAndYield(group *TaskGroup, children ...Task) error {
	c.check()
	if len(children) == 0 {
		return nil
	}
	if group == nil {
		group = NewTaskGroup(c.inst.debugID + "/children")
	}

	insts, err := c.sched.prepare(group, c.inst, children)
	if err != nil {
		return err
	}
	c.inst.children.Store(int32(len(insts)) + 1)
	c.sched.submitLocal(c.inst.worker, insts)
	c.suspend(waitChildren)
	return nil
}

// WaitAll suspends the task until group has no outstanding tasks or the
// timeout elapses, and reports which happened. The worker keeps running
// other tasks meanwhile. Waiting on a group that contains the calling task
// can only end by timeout.
func (c *FiberContext) WaitAll(group *TaskGroup, timeout time.Duration) bool {
	c.check()
	if group == nil {
		group = c.sched.defaultGroup
	}
	if group.Count() == 0 {
		return true
	}
	if timeout == 0 {
		return false
	}

	c.inst.waitGroup = group
	c.inst.waitTimeout = timeout
	c.suspend(waitGroup)
	c.inst.waitGroup = nil
	return c.inst.waitResult
}

// suspend hands control back to the worker and returns once some worker
// resumes the task.
func (c *FiberContext) suspend(reason waitReason) {
	inst := c.inst
	inst.wait = reason
	pf := inst.fiber
	fiber.SwitchTo(pf.fiber, inst.worker.schedFiber)
	pf.adopt(inst.worker)
}
