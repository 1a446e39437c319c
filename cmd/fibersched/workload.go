package main

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/Swind/go-fiber-scheduler/core"
)

// frameWorkload mirrors a game-engine frame: root tasks that fan out into
// yielding children, followed by a batch of high priority tasks, then a
// wait for the default group.
type frameWorkload struct {
	Roots         int
	Children      int
	PriorityTasks int
	Work          int // loop iterations per compute slice
	FrameTimeout  time.Duration
}

type frameResult struct {
	Frame    int
	Tasks    int64
	Duration time.Duration
	TimedOut bool
}

// sink keeps the compute loops from being optimized away.
var sink atomic.Uint64

func spin(n int, f func(float64) float64) {
	v := 0.0
	for i := range n {
		v = (v + f(float64(i))) * 0.5
	}
	sink.Add(math.Float64bits(v) & 1)
}

func (w frameWorkload) validate() error {
	switch {
	case w.Roots < 0, w.Children < 0, w.PriorityTasks < 0, w.Work < 0:
		return fmt.Errorf("workload sizes must be non-negative: %+v", w)
	case w.Roots+w.PriorityTasks == 0:
		return fmt.Errorf("workload has no tasks")
	case w.FrameTimeout <= 0:
		return fmt.Errorf("frame timeout must be positive, got %v", w.FrameTimeout)
	}
	return nil
}

// tasksPerFrame is the number of task completions one frame produces.
func (w frameWorkload) tasksPerFrame() int64 {
	return int64(w.Roots*(1+w.Children) + w.PriorityTasks)
}

func (w frameWorkload) tasks(done *atomic.Int64) (roots, priority []core.Task) {
	child := core.NewTask(func(ctx *core.FiberContext) {
		spin(w.Work, math.Sin)
		ctx.Yield()
		spin(w.Work, math.Cos)
		done.Add(1)
	}, core.DefaultTaskTraits().WithColor(core.ColorLightBlue).WithDebugID("frame.child"))

	children := make([]core.Task, w.Children)
	for i := range children {
		children[i] = child
	}

	root := core.NewTask(func(ctx *core.FiberContext) {
		spin(w.Work/8, math.Sin)
		if len(children) > 0 {
			if err := ctx.RunSubtasksAndYield(nil, children...); err != nil {
				return
			}
		}
		spin(w.Work/8, math.Cos)
		done.Add(1)
	}, core.DefaultTaskTraits().WithColor(core.ColorBurlyWood).WithDebugID("frame.root"))

	prio := core.NewTask(func(ctx *core.FiberContext) {
		spin(w.Work/16, math.Cos)
		done.Add(1)
	}, core.TraitsHigh().WithColor(core.ColorOrange).WithDebugID("frame.priority"))

	roots = make([]core.Task, w.Roots)
	for i := range roots {
		roots[i] = root
	}
	priority = make([]core.Task, w.PriorityTasks)
	for i := range priority {
		priority[i] = prio
	}
	return roots, priority
}

// runFrames runs frames until n are done or ctx is cancelled. report is
// called after every frame.
func runFrames(ctx context.Context, s *core.TaskScheduler, w frameWorkload, n int, report func(frameResult)) error {
	if err := w.validate(); err != nil {
		return err
	}

	var done atomic.Int64
	roots, priority := w.tasks(&done)

	for frame := 0; n <= 0 || frame < n; frame++ {
		if err := ctx.Err(); err != nil {
			return nil
		}

		before := done.Load()
		start := time.Now()
		if len(roots) > 0 {
			if err := s.RunAsync(nil, roots...); err != nil {
				return err
			}
		}
		if len(priority) > 0 {
			if err := s.RunAsync(nil, priority...); err != nil {
				return err
			}
		}
		ok := s.WaitAll(nil, w.FrameTimeout)

		if report != nil {
			report(frameResult{
				Frame:    frame,
				Tasks:    done.Load() - before,
				Duration: time.Since(start),
				TimedOut: !ok,
			})
		}
		if !ok {
			return fmt.Errorf("frame %d did not finish within %v", frame, w.FrameTimeout)
		}
	}
	return nil
}
