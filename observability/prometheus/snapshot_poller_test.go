package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-fiber-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type schedulerStub struct {
	stats core.SchedulerStats
}

func (s schedulerStub) Stats() core.SchedulerStats { return s.stats }

func TestSnapshotPoller_CollectsSchedulerStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	stats := core.SchedulerStats{
		Name:            "engine",
		Pending:         3,
		Completed:       40,
		Panicked:        1,
		Rejected:        2,
		Closed:          true,
		FibersBound:     5,
		FibersHighWater: 9,
		PerWorker: []core.WorkerStats{
			{Index: 0, Queued: 4, Executed: 20, Stolen: 2, Idle: true},
			{Index: 1, Queued: 1, Executed: 25},
		},
		Pools: []core.FiberPoolStats{
			{Class: core.StackStandard, Total: 8, Idle: 3, Starved: 6},
		},
	}
	stats.QueuedByPriority[core.TaskPriorityHigh] = 4
	stats.QueuedByPriority[core.TaskPriorityLow] = 1
	poller.AddScheduler("engine", schedulerStub{stats: stats})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.pending.WithLabelValues("engine"))
		starved := testutil.ToFloat64(poller.poolStarved.WithLabelValues("engine", "standard"))
		return pending == 3 && starved == 6
	})

	checks := []struct {
		name  string
		gauge prom.Gauge
		want  float64
	}{
		{"completed", poller.completed.WithLabelValues("engine"), 40},
		{"panicked", poller.panicked.WithLabelValues("engine"), 1},
		{"rejected", poller.rejected.WithLabelValues("engine"), 2},
		{"closed", poller.closed.WithLabelValues("engine"), 1},
		{"fibers bound", poller.fibersBound.WithLabelValues("engine"), 5},
		{"fibers high water", poller.fibersPeak.WithLabelValues("engine"), 9},
		{"queued high", poller.queued.WithLabelValues("engine", "high"), 4},
		{"queued critical", poller.queued.WithLabelValues("engine", "critical"), 0},
		{"worker 0 queued", poller.workerQueued.WithLabelValues("engine", "0"), 4},
		{"worker 1 executed", poller.workerExecuted.WithLabelValues("engine", "1"), 25},
		{"worker 0 stolen", poller.workerStolen.WithLabelValues("engine", "0"), 2},
		{"worker 0 idle", poller.workerIdle.WithLabelValues("engine", "0"), 1},
		{"worker 1 idle", poller.workerIdle.WithLabelValues("engine", "1"), 0},
		{"pool idle", poller.poolIdle.WithLabelValues("engine", "standard"), 3},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.gauge); got != c.want {
			t.Fatalf("%s gauge = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSnapshotPoller_LiveScheduler(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	cfg := core.DefaultSchedulerConfig()
	cfg.WorkerCount = 2
	cfg.FiberCounts = core.FiberCounts{Small: 2, Standard: 4}
	cfg.Logger = core.NewNoOpLogger()
	s, err := core.NewTaskSchedulerWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewTaskSchedulerWithConfig failed: %v", err)
	}
	defer s.Close()

	for range 12 {
		if err := s.RunAsync(nil, core.Func(func(ctx *core.FiberContext) {})); err != nil {
			t.Fatalf("RunAsync failed: %v", err)
		}
	}
	if !s.WaitAll(nil, 5*time.Second) {
		t.Fatal("tasks did not finish")
	}

	poller.AddScheduler(s.Name(), s)
	poller.CollectOnce()

	if got := testutil.ToFloat64(poller.completed.WithLabelValues(s.Name())); got != 12 {
		t.Fatalf("completed gauge = %v, want 12", got)
	}
	if got := testutil.ToFloat64(poller.poolIdle.WithLabelValues(s.Name(), "small")); got != 2 {
		t.Fatalf("small pool idle gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.closed.WithLabelValues(s.Name())); got != 0 {
		t.Fatalf("closed gauge = %v, want 0", got)
	}

	poller.RemoveScheduler(s.Name())
	poller.CollectOnce()
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func TestSnapshotPoller_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewSnapshotPoller(reg, time.Second)
	if err != nil {
		t.Fatalf("first NewSnapshotPoller failed: %v", err)
	}
	second, err := NewSnapshotPoller(reg, time.Second)
	if err != nil {
		t.Fatalf("second NewSnapshotPoller failed: %v", err)
	}
	if first.pending != second.pending {
		t.Fatal("pollers on one registry should share collectors")
	}
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
