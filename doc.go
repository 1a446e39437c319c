// Package fiberscheduler provides a fiber-based M:N task scheduler for Go.
//
// Many short, cooperatively scheduled tasks run on a fixed pool of worker
// goroutines. A task that has to wait for other tasks suspends its fiber
// instead of blocking the worker, and may resume later on any worker.
//
// # Quick Start
//
// Create a scheduler and submit tasks:
//
//	s, err := fiberscheduler.New(fiberscheduler.WithWorkerCount(4))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	group := s.NewGroup("frame")
//	s.RunAsync(group, fiberscheduler.Func(func(ctx *fiberscheduler.FiberContext) {
//		// work
//	}))
//	s.WaitAll(group, fiberscheduler.Infinite)
//
// # Key Concepts
//
// Task: a unit of work with traits (priority, stack class, debug color and
// ID). Use NewTask or Func for closures, or implement the Task interface.
//
// TaskGroup: counts outstanding tasks. WaitAll on a group returns once every
// task submitted to it, including tasks submitted from inside those tasks,
// has completed.
//
// FiberContext: passed to every running task. Through it a task can Yield,
// spawn children and suspend until they finish with RunSubtasksAndYield, or
// wait for a group without blocking its worker.
//
// Listener: synchronous instrumentation hooks called by the workers at
// every task and worker state change. See the trace package for a recorder.
//
// # Priorities
//
// Each worker keeps one queue per priority. Critical work is always taken
// before High, High before Normal and Normal before Low, both when a worker
// pops its own queues and when it steals. Low priority work can starve while
// higher tiers stay saturated.
//
// # Panics
//
// A panicking task is reported to the PanicHandler and Metrics, and then
// completes normally so groups waiting on it are released.
package fiberscheduler
