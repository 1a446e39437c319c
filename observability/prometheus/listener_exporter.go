package prometheus

import (
	"strconv"

	"github.com/Swind/go-fiber-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ListenerExporter is a core.Listener that turns scheduler callbacks into
// Prometheus collectors. Combine it with other listeners through
// core.Listeners.
type ListenerExporter struct {
	scheduler string

	workers      *prom.GaugeVec
	fibers       *prom.GaugeVec
	transitions  *prom.CounterVec
	idleWorkers  *prom.GaugeVec
	parks        *prom.CounterVec
	blockedWaits *prom.GaugeVec
}

var _ core.Listener = (*ListenerExporter)(nil)

// NewListenerExporter creates and registers listener collectors. scheduler
// labels every sample.
func NewListenerExporter(namespace, scheduler string, reg prom.Registerer) (*ListenerExporter, error) {
	if namespace == "" {
		namespace = "fiberscheduler"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	workers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "workers",
		Help:      "Worker count reported at startup.",
	}, []string{"scheduler"})
	fibers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "fibers",
		Help:      "Fiber count reported at startup.",
	}, []string{"scheduler"})
	transitions := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_state_transitions_total",
		Help:      "Task state transitions by state.",
	}, []string{"scheduler", "state"})
	idleWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "idle_workers",
		Help:      "Workers currently parked.",
	}, []string{"scheduler"})
	parks := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "worker_parks_total",
		Help:      "Number of times a worker parked.",
	}, []string{"scheduler", "worker"})
	blockedWaits := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "blocked_waits",
		Help:      "External threads blocked in WaitAll.",
	}, []string{"scheduler"})

	var err error
	if workers, err = registerCollector(reg, workers); err != nil {
		return nil, err
	}
	if fibers, err = registerCollector(reg, fibers); err != nil {
		return nil, err
	}
	if transitions, err = registerCollector(reg, transitions); err != nil {
		return nil, err
	}
	if idleWorkers, err = registerCollector(reg, idleWorkers); err != nil {
		return nil, err
	}
	if parks, err = registerCollector(reg, parks); err != nil {
		return nil, err
	}
	if blockedWaits, err = registerCollector(reg, blockedWaits); err != nil {
		return nil, err
	}

	return &ListenerExporter{
		scheduler:    normalizeLabel(scheduler, "fiberscheduler"),
		workers:      workers,
		fibers:       fibers,
		transitions:  transitions,
		idleWorkers:  idleWorkers,
		parks:        parks,
		blockedWaits: blockedWaits,
	}, nil
}

func (l *ListenerExporter) OnThreadsCreated(count int) {
	l.workers.WithLabelValues(l.scheduler).Set(float64(count))
}

func (l *ListenerExporter) OnFibersCreated(count int) {
	l.fibers.WithLabelValues(l.scheduler).Set(float64(count))
}

func (l *ListenerExporter) OnThreadCreated(workerIndex int) {}
func (l *ListenerExporter) OnThreadStarted(workerIndex int) {}
func (l *ListenerExporter) OnThreadStopped(workerIndex int) {}

func (l *ListenerExporter) OnThreadIdleStarted(workerIndex int) {
	l.idleWorkers.WithLabelValues(l.scheduler).Inc()
	l.parks.WithLabelValues(l.scheduler, strconv.Itoa(workerIndex)).Inc()
}

func (l *ListenerExporter) OnThreadIdleFinished(workerIndex int) {
	l.idleWorkers.WithLabelValues(l.scheduler).Dec()
}

func (l *ListenerExporter) OnThreadWaitStarted() {
	l.blockedWaits.WithLabelValues(l.scheduler).Inc()
}

func (l *ListenerExporter) OnThreadWaitFinished() {
	l.blockedWaits.WithLabelValues(l.scheduler).Dec()
}

func (l *ListenerExporter) OnTaskExecuteStateChanged(color core.Color, debugID string, state core.TaskExecuteState, fiberIndex int) {
	l.transitions.WithLabelValues(l.scheduler, state.String()).Inc()
}
