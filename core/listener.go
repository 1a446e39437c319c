package core

// =============================================================================
// Listener: instrumentation hooks
// =============================================================================

// TaskExecuteState is the transition reported by OnTaskExecuteStateChanged.
type TaskExecuteState int

const (
	// TaskStart: the task was bound to a fiber and is about to run
	TaskStart TaskExecuteState = iota
	// TaskResume: a suspended task is about to continue
	TaskResume
	// TaskSuspend: the task yielded and its fiber was parked
	TaskSuspend
	// TaskStop: the task returned and its fiber went back to the pool
	TaskStop
)

func (s TaskExecuteState) String() string {
	switch s {
	case TaskStart:
		return "start"
	case TaskResume:
		return "resume"
	case TaskSuspend:
		return "suspend"
	case TaskStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Listener observes scheduler lifecycle and task execution.
//
// Worker callbacks run synchronously on the worker at the moment of the
// transition and sit on the scheduling hot path, so implementations must be
// fast, non-blocking and safe for concurrent use. They must not call back
// into the scheduler.
type Listener interface {
	// OnThreadsCreated is called once during construction with the number of
	// workers.
	OnThreadsCreated(count int)

	// OnFibersCreated is called once during construction with the total
	// number of pooled fibers across all stack tiers.
	OnFibersCreated(count int)

	// OnThreadCreated, OnThreadStarted and OnThreadStopped bracket a worker's
	// lifetime and are called from the worker itself.
	OnThreadCreated(workerIndex int)
	OnThreadStarted(workerIndex int)
	OnThreadStopped(workerIndex int)

	// OnThreadIdleStarted and OnThreadIdleFinished bracket a worker parking
	// because it found no work to run or steal.
	OnThreadIdleStarted(workerIndex int)
	OnThreadIdleFinished(workerIndex int)

	// OnThreadWaitStarted and OnThreadWaitFinished bracket a blocking
	// WaitAll from a goroutine that is not a fiber.
	OnThreadWaitStarted()
	OnThreadWaitFinished()

	// OnTaskExecuteStateChanged reports every task state transition along
	// with the pool index of the fiber hosting the task.
	OnTaskExecuteStateChanged(color Color, debugID string, state TaskExecuteState, fiberIndex int)
}

// NopListener ignores every callback. Embed it to implement only a subset of
// Listener.
type NopListener struct{}

func (NopListener) OnThreadsCreated(count int)           {}
func (NopListener) OnFibersCreated(count int)            {}
func (NopListener) OnThreadCreated(workerIndex int)      {}
func (NopListener) OnThreadStarted(workerIndex int)      {}
func (NopListener) OnThreadStopped(workerIndex int)      {}
func (NopListener) OnThreadIdleStarted(workerIndex int)  {}
func (NopListener) OnThreadIdleFinished(workerIndex int) {}
func (NopListener) OnThreadWaitStarted()                 {}
func (NopListener) OnThreadWaitFinished()                {}
func (NopListener) OnTaskExecuteStateChanged(color Color, debugID string, state TaskExecuteState, fiberIndex int) {
}

var _ Listener = NopListener{}

// Listeners fans every callback out to ls in order. Nil entries are
// dropped.
func Listeners(ls ...Listener) Listener {
	out := make(multiListener, 0, len(ls))
	for _, l := range ls {
		if l != nil {
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		return NopListener{}
	case 1:
		return out[0]
	default:
		return out
	}
}

type multiListener []Listener

func (m multiListener) OnThreadsCreated(count int) {
	for _, l := range m {
		l.OnThreadsCreated(count)
	}
}

func (m multiListener) OnFibersCreated(count int) {
	for _, l := range m {
		l.OnFibersCreated(count)
	}
}

func (m multiListener) OnThreadCreated(workerIndex int) {
	for _, l := range m {
		l.OnThreadCreated(workerIndex)
	}
}

func (m multiListener) OnThreadStarted(workerIndex int) {
	for _, l := range m {
		l.OnThreadStarted(workerIndex)
	}
}

func (m multiListener) OnThreadStopped(workerIndex int) {
	for _, l := range m {
		l.OnThreadStopped(workerIndex)
	}
}

func (m multiListener) OnThreadIdleStarted(workerIndex int) {
	for _, l := range m {
		l.OnThreadIdleStarted(workerIndex)
	}
}

func (m multiListener) OnThreadIdleFinished(workerIndex int) {
	for _, l := range m {
		l.OnThreadIdleFinished(workerIndex)
	}
}

func (m multiListener) OnThreadWaitStarted() {
	for _, l := range m {
		l.OnThreadWaitStarted()
	}
}

func (m multiListener) OnThreadWaitFinished() {
	for _, l := range m {
		l.OnThreadWaitFinished()
	}
}

func (m multiListener) OnTaskExecuteStateChanged(color Color, debugID string, state TaskExecuteState, fiberIndex int) {
	for _, l := range m {
		l.OnTaskExecuteStateChanged(color, debugID, state, fiberIndex)
	}
}
