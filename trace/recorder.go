// Package trace records scheduler listener events and turns them into
// per-fiber execution intervals and Chrome trace-event files.
package trace

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Swind/go-fiber-scheduler/core"
)

// ErrOverlap is returned by Intervals when one fiber was entered twice
// without leaving in between.
var ErrOverlap = errors.New("trace: overlapping fiber intervals")

// Kind identifies the listener callback an Event came from.
type Kind int

const (
	KindThreadsCreated Kind = iota
	KindFibersCreated
	KindThreadCreated
	KindThreadStarted
	KindThreadStopped
	KindIdleStarted
	KindIdleFinished
	KindWaitStarted
	KindWaitFinished
	KindTaskState
)

var kindNames = [...]string{
	KindThreadsCreated: "threads_created",
	KindFibersCreated:  "fibers_created",
	KindThreadCreated:  "thread_created",
	KindThreadStarted:  "thread_started",
	KindThreadStopped:  "thread_stopped",
	KindIdleStarted:    "idle_started",
	KindIdleFinished:   "idle_finished",
	KindWaitStarted:    "wait_started",
	KindWaitFinished:   "wait_finished",
	KindTaskState:      "task_state",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Event is one listener callback. Fields that do not apply to Kind are -1
// or zero.
type Event struct {
	Seq     uint64
	At      time.Duration // since the recorder was created
	Kind    Kind
	Worker  int
	Fiber   int
	Count   int
	State   core.TaskExecuteState
	DebugID string
	Color   core.Color
}

// Recorder is a core.Listener that keeps every event in arrival order.
// Sequence numbers are assigned under the recorder lock, so Seq order is a
// valid total order of the callbacks.
type Recorder struct {
	mu      sync.Mutex
	start   time.Time
	events  []Event
	limit   int
	dropped uint64
}

var _ core.Listener = (*Recorder)(nil)

// NewRecorder creates a recorder keeping at most limit events. limit <= 0
// means unbounded. Events past the limit are counted and dropped.
func NewRecorder(limit int) *Recorder {
	return &Recorder{start: time.Now(), limit: limit}
}

func (r *Recorder) add(e Event) {
	at := time.Since(r.start)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.events) >= r.limit {
		r.dropped++
		return
	}
	e.Seq = uint64(len(r.events)) + r.dropped
	e.At = at
	r.events = append(r.events, e)
}

func (r *Recorder) OnThreadsCreated(count int) {
	r.add(Event{Kind: KindThreadsCreated, Worker: -1, Fiber: -1, Count: count})
}

func (r *Recorder) OnFibersCreated(count int) {
	r.add(Event{Kind: KindFibersCreated, Worker: -1, Fiber: -1, Count: count})
}

func (r *Recorder) OnThreadCreated(workerIndex int) {
	r.add(Event{Kind: KindThreadCreated, Worker: workerIndex, Fiber: -1})
}

func (r *Recorder) OnThreadStarted(workerIndex int) {
	r.add(Event{Kind: KindThreadStarted, Worker: workerIndex, Fiber: -1})
}

func (r *Recorder) OnThreadStopped(workerIndex int) {
	r.add(Event{Kind: KindThreadStopped, Worker: workerIndex, Fiber: -1})
}

func (r *Recorder) OnThreadIdleStarted(workerIndex int) {
	r.add(Event{Kind: KindIdleStarted, Worker: workerIndex, Fiber: -1})
}

func (r *Recorder) OnThreadIdleFinished(workerIndex int) {
	r.add(Event{Kind: KindIdleFinished, Worker: workerIndex, Fiber: -1})
}

func (r *Recorder) OnThreadWaitStarted() {
	r.add(Event{Kind: KindWaitStarted, Worker: -1, Fiber: -1})
}

func (r *Recorder) OnThreadWaitFinished() {
	r.add(Event{Kind: KindWaitFinished, Worker: -1, Fiber: -1})
}

func (r *Recorder) OnTaskExecuteStateChanged(color core.Color, debugID string, state core.TaskExecuteState, fiberIndex int) {
	r.add(Event{Kind: KindTaskState, Worker: -1, Fiber: fiberIndex, State: state, DebugID: debugID, Color: color})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Dropped returns the number of events discarded because of the limit.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset discards all events and restarts the clock.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.dropped = 0
	r.start = time.Now()
}

// Interval is one slice of a task on a fiber, from START or RESUME to
// SUSPEND or STOP.
type Interval struct {
	Fiber    int
	DebugID  string
	Color    core.Color
	Start    time.Duration
	End      time.Duration
	StartSeq uint64
	EndSeq   uint64
	Resumed  bool // opened by RESUME rather than START
	Finished bool // closed by STOP rather than SUSPEND
}

// Duration returns the length of the slice.
func (iv Interval) Duration() time.Duration { return iv.End - iv.Start }

// Intervals pairs task events per fiber. Slices still open at the end of
// the recording are left out. Intervals are sorted by StartSeq.
func (r *Recorder) Intervals() ([]Interval, error) {
	return BuildIntervals(r.Events())
}

// BuildIntervals pairs task events per fiber. It fails with ErrOverlap
// when a fiber is entered while already running, or left while not
// running.
func BuildIntervals(events []Event) ([]Interval, error) {
	open := map[int]Interval{}
	var out []Interval

	for _, e := range events {
		if e.Kind != KindTaskState {
			continue
		}
		switch e.State {
		case core.TaskStart, core.TaskResume:
			if cur, busy := open[e.Fiber]; busy {
				return nil, fmt.Errorf("%w: fiber %d entered by %q at seq %d while running %q", ErrOverlap, e.Fiber, e.DebugID, e.Seq, cur.DebugID)
			}
			open[e.Fiber] = Interval{
				Fiber:    e.Fiber,
				DebugID:  e.DebugID,
				Color:    e.Color,
				Start:    e.At,
				StartSeq: e.Seq,
				Resumed:  e.State == core.TaskResume,
			}
		case core.TaskSuspend, core.TaskStop:
			cur, busy := open[e.Fiber]
			if !busy {
				return nil, fmt.Errorf("%w: fiber %d left by %q at seq %d while idle", ErrOverlap, e.Fiber, e.DebugID, e.Seq)
			}
			delete(open, e.Fiber)
			cur.End = e.At
			cur.EndSeq = e.Seq
			cur.Finished = e.State == core.TaskStop
			out = append(out, cur)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartSeq < out[j].StartSeq })
	return out, nil
}

// Summary aggregates a recording.
type Summary struct {
	Workers     int
	Fibers      int
	Tasks       int // STOP events
	Slices      int // closed intervals
	Suspensions int
	IdlePeriods int
	Busy        time.Duration // sum of interval durations
}

// Summarize counts tasks, slices and idle periods of a recording.
func Summarize(events []Event) (Summary, error) {
	var s Summary
	for _, e := range events {
		switch e.Kind {
		case KindThreadsCreated:
			s.Workers = e.Count
		case KindFibersCreated:
			s.Fibers = e.Count
		case KindIdleStarted:
			s.IdlePeriods++
		case KindTaskState:
			switch e.State {
			case core.TaskStop:
				s.Tasks++
			case core.TaskSuspend:
				s.Suspensions++
			}
		}
	}

	ivs, err := BuildIntervals(events)
	if err != nil {
		return s, err
	}
	s.Slices = len(ivs)
	for _, iv := range ivs {
		s.Busy += iv.Duration()
	}
	return s, nil
}
