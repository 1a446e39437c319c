package fiberscheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Swind/go-fiber-scheduler/core"
)

// Option customizes the configuration New builds on top of
// core.DefaultSchedulerConfig.
type Option func(*core.SchedulerConfig)

// New validates the options and starts a scheduler.
func New(opts ...Option) (*Scheduler, error) {
	return core.NewTaskSchedulerWithConfig(NewConfig(opts...))
}

// NewConfig applies opts to the default configuration without starting
// anything.
func NewConfig(opts ...Option) *SchedulerConfig {
	cfg := core.DefaultSchedulerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithName labels logs and rejection metrics.
func WithName(name string) Option {
	return func(c *core.SchedulerConfig) { c.Name = name }
}

// WithWorkerCount sets the number of workers. 0 means one less than the
// number of CPUs.
func WithWorkerCount(n int) Option {
	return func(c *core.SchedulerConfig) { c.WorkerCount = n }
}

// WithAffinityMask pins workers to the cores whose bits are set.
func WithAffinityMask(mask uint64) Option {
	return func(c *core.SchedulerConfig) { c.AffinityMask = mask }
}

// WithPinnedThreads locks every worker to its own OS thread.
func WithPinnedThreads() Option {
	return func(c *core.SchedulerConfig) { c.PinWorkerThreads = true }
}

// WithThreadPriority requests an OS priority for worker threads.
func WithThreadPriority(p ThreadPriority) Option {
	return func(c *core.SchedulerConfig) { c.ThreadPriority = p }
}

// WithThreadNamePrefix names locked worker threads prefix+index.
func WithThreadNamePrefix(prefix string) Option {
	return func(c *core.SchedulerConfig) { c.ThreadNamePrefix = prefix }
}

// WithFiberCounts sizes the fiber pool per stack tier.
func WithFiberCounts(counts FiberCounts) Option {
	return func(c *core.SchedulerConfig) { c.FiberCounts = counts }
}

// WithSpinCount sets how many rounds an idle worker spins before parking.
func WithSpinCount(n int) Option {
	return func(c *core.SchedulerConfig) { c.SpinCount = n }
}

// WithMaxParkTime bounds a single park of an idle worker.
func WithMaxParkTime(d time.Duration) Option {
	return func(c *core.SchedulerConfig) { c.MaxParkTime = d }
}

// WithHistoryCapacity sets how many completed tasks RecentTasks keeps.
func WithHistoryCapacity(n int) Option {
	return func(c *core.SchedulerConfig) { c.HistoryCapacity = n }
}

// WithListener installs listeners. Several listeners are fanned out in
// order.
func WithListener(ls ...Listener) Option {
	return func(c *core.SchedulerConfig) { c.Listener = core.Listeners(ls...) }
}

// WithLogger replaces the logger. The default panic and rejection handlers
// follow it.
func WithLogger(l Logger) Option {
	return func(c *core.SchedulerConfig) {
		c.Logger = l
		if _, ok := c.PanicHandler.(*core.DefaultPanicHandler); ok {
			c.PanicHandler = &core.DefaultPanicHandler{Logger: l}
		}
		if _, ok := c.RejectedTaskHandler.(*core.DefaultRejectedTaskHandler); ok {
			c.RejectedTaskHandler = &core.DefaultRejectedTaskHandler{Logger: l}
		}
	}
}

// WithZerolog logs through zl.
func WithZerolog(zl zerolog.Logger) Option {
	return WithLogger(core.NewZerologLogger(zl))
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *core.SchedulerConfig) { c.Metrics = m }
}

// WithPanicHandler installs a panic handler.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *core.SchedulerConfig) { c.PanicHandler = h }
}

// WithRejectedTaskHandler installs a handler for rejected submissions.
func WithRejectedTaskHandler(h RejectedTaskHandler) Option {
	return func(c *core.SchedulerConfig) { c.RejectedTaskHandler = h }
}
