package main

import (
	"fmt"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-fiber-scheduler/core"
)

type benchCase struct {
	name  string
	tasks func(n int, done *atomic.Int64) []core.Task
	// windowed cases hold fibers while suspended, so at most half the pool
	// is submitted before waiting.
	windowed bool
}

var benchCases = []benchCase{
	{"empty", func(n int, done *atomic.Int64) []core.Task {
		t := core.Func(func(ctx *core.FiberContext) { done.Add(1) })
		return repeat(t, n)
	}, false},
	{"yield", func(n int, done *atomic.Int64) []core.Task {
		t := core.Func(func(ctx *core.FiberContext) {
			ctx.Yield()
			done.Add(1)
		})
		return repeat(t, n)
	}, false},
	{"subtasks", func(n int, done *atomic.Int64) []core.Task {
		const fanout = 8
		leaf := core.Func(func(ctx *core.FiberContext) { done.Add(1) })
		leaves := repeat(leaf, fanout)
		parent := core.Func(func(ctx *core.FiberContext) {
			if err := ctx.RunSubtasksAndYield(nil, leaves...); err == nil {
				done.Add(1)
			}
		})
		return repeat(parent, max(n/(fanout+1), 1))
	}, true},
}

func repeat(t core.Task, n int) []core.Task {
	out := make([]core.Task, n)
	for i := range out {
		out[i] = t
	}
	return out
}

func (a *app) benchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "measure task throughput for empty, yielding and fan-out tasks",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "tasks", Value: 100000, Usage: "tasks per round"},
			&cli.IntFlag{Name: "batch", Value: 256, Usage: "tasks per RunAsync call"},
			&cli.IntFlag{Name: "rounds", Value: 3, Usage: "rounds per case"},
			&cli.StringSliceFlag{Name: "case", Usage: "cases to run (empty, yield, subtasks); all by default"},
		},
		Action: a.benchAction,
	}
}

func (a *app) benchAction(c *cli.Context) error {
	n, batch, rounds := c.Int("tasks"), c.Int("batch"), c.Int("rounds")
	if n <= 0 || batch <= 0 || rounds <= 0 {
		return cli.Exit("tasks, batch and rounds must be positive", 2)
	}

	selected := map[string]bool{}
	for _, name := range c.StringSlice("case") {
		selected[name] = true
	}

	s, err := a.newScheduler(nil, nil)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer s.Close()

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "case\tround\ttasks\telapsed\ttasks/s")
	for _, bc := range benchCases {
		if len(selected) > 0 && !selected[bc.name] {
			continue
		}
		for r := range rounds {
			if err := c.Context.Err(); err != nil {
				return tw.Flush()
			}

			var done atomic.Int64
			tasks := bc.tasks(n, &done)
			step := batch
			if bc.windowed {
				step = max(min(batch, s.FiberCount()/2), 1)
			}
			start := time.Now()
			for i := 0; i < len(tasks); i += step {
				if err := s.RunAsync(nil, tasks[i:min(i+step, len(tasks))]...); err != nil {
					return err
				}
				if bc.windowed {
					s.WaitAll(nil, core.Infinite)
				}
			}
			s.WaitAll(nil, core.Infinite)
			elapsed := time.Since(start)

			completed := done.Load()
			fmt.Fprintf(tw, "%s\t%d\t%d\t%v\t%.0f\n",
				bc.name, r, completed, elapsed.Round(time.Microsecond), float64(completed)/elapsed.Seconds())
		}
	}
	return tw.Flush()
}
