package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Swind/go-fiber-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

const snapshotNamespace = "fiberscheduler"

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	pending     *prom.GaugeVec
	completed   *prom.GaugeVec
	panicked    *prom.GaugeVec
	rejected    *prom.GaugeVec
	closed      *prom.GaugeVec
	fibersBound *prom.GaugeVec
	fibersPeak  *prom.GaugeVec
	queued      *prom.GaugeVec

	workerQueued   *prom.GaugeVec
	workerExecuted *prom.GaugeVec
	workerStolen   *prom.GaugeVec
	workerIdle     *prom.GaugeVec

	poolIdle    *prom.GaugeVec
	poolStarved *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newSnapshotGauge(name, help string, labels ...string) *prom.GaugeVec {
	return prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: snapshotNamespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	p := &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]SchedulerSnapshotProvider),

		pending:     newSnapshotGauge("pending_tasks", "Tasks submitted and not yet completed.", "scheduler"),
		completed:   newSnapshotGauge("completed_tasks", "Completed task count snapshot.", "scheduler"),
		panicked:    newSnapshotGauge("panicked_tasks", "Panicked task count snapshot.", "scheduler"),
		rejected:    newSnapshotGauge("rejected_tasks", "Rejected task count snapshot.", "scheduler"),
		closed:      newSnapshotGauge("closed", "Scheduler closed state (1=closed, 0=open).", "scheduler"),
		fibersBound: newSnapshotGauge("fibers_bound", "Fibers currently bound to a task.", "scheduler"),
		fibersPeak:  newSnapshotGauge("fibers_bound_high_water", "Most fibers bound at once.", "scheduler"),
		queued:      newSnapshotGauge("queued_tasks", "Tasks queued across workers per priority.", "scheduler", "priority"),

		workerQueued:   newSnapshotGauge("worker_queued_tasks", "Tasks queued on a worker.", "scheduler", "worker"),
		workerExecuted: newSnapshotGauge("worker_executed_slices", "Task slices run by a worker.", "scheduler", "worker"),
		workerStolen:   newSnapshotGauge("worker_stolen_tasks", "Tasks a worker stole from others.", "scheduler", "worker"),
		workerIdle:     newSnapshotGauge("worker_idle", "Worker parked state (1=parked, 0=active).", "scheduler", "worker"),

		poolIdle:    newSnapshotGauge("fiber_pool_idle", "Idle fibers per stack tier.", "scheduler", "tier"),
		poolStarved: newSnapshotGauge("fiber_pool_starved", "Tasks waiting for a fiber per stack tier.", "scheduler", "tier"),
	}

	for _, g := range []**prom.GaugeVec{
		&p.pending, &p.completed, &p.panicked, &p.rejected, &p.closed,
		&p.fibersBound, &p.fibersPeak, &p.queued,
		&p.workerQueued, &p.workerExecuted, &p.workerStolen, &p.workerIdle,
		&p.poolIdle, &p.poolStarved,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// RemoveScheduler stops polling a provider. Its last exported values stay.
func (p *SnapshotPoller) RemoveScheduler(name string) {
	if p == nil {
		return
	}
	p.schedulersMu.Lock()
	delete(p.schedulers, normalizeLabel(name, "scheduler"))
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce exports one snapshot of every provider.
func (p *SnapshotPoller) CollectOnce() {
	p.schedulersMu.RLock()
	defer p.schedulersMu.RUnlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.pending.WithLabelValues(name).Set(float64(stats.Pending))
		p.completed.WithLabelValues(name).Set(float64(stats.Completed))
		p.panicked.WithLabelValues(name).Set(float64(stats.Panicked))
		p.rejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.closed.WithLabelValues(name).Set(boolGauge(stats.Closed))
		p.fibersBound.WithLabelValues(name).Set(float64(stats.FibersBound))
		p.fibersPeak.WithLabelValues(name).Set(float64(stats.FibersHighWater))

		for prio, n := range stats.QueuedByPriority {
			p.queued.WithLabelValues(name, core.TaskPriority(prio).String()).Set(float64(n))
		}

		for _, w := range stats.PerWorker {
			idx := strconv.Itoa(w.Index)
			p.workerQueued.WithLabelValues(name, idx).Set(float64(w.Queued))
			p.workerExecuted.WithLabelValues(name, idx).Set(float64(w.Executed))
			p.workerStolen.WithLabelValues(name, idx).Set(float64(w.Stolen))
			p.workerIdle.WithLabelValues(name, idx).Set(boolGauge(w.Idle))
		}

		for _, pool := range stats.Pools {
			tier := pool.Class.String()
			p.poolIdle.WithLabelValues(name, tier).Set(float64(pool.Idle))
			p.poolStarved.WithLabelValues(name, tier).Set(float64(pool.Starved))
		}
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
