package core

import (
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/Swind/go-fiber-scheduler/internal/stack"
)

// =============================================================================
// TaskTraits: Define task attributes (priority, stack class, debug info)
// =============================================================================

// TaskPriority selects the queue tier a task is placed in. Lower values are
// drained first.
type TaskPriority int

const (
	// TaskPriorityCritical: always drained first
	TaskPriorityCritical TaskPriority = iota

	// TaskPriorityHigh: latency sensitive work
	TaskPriorityHigh

	// TaskPriorityNormal: default priority
	TaskPriorityNormal

	// TaskPriorityLow: background work. May starve while higher tiers are
	// saturated.
	TaskPriorityLow

	numPriorities
)

// NumPriorities is the number of queue tiers per worker.
const NumPriorities = int(numPriorities)

func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityCritical:
		return "critical"
	case TaskPriorityHigh:
		return "high"
	case TaskPriorityNormal:
		return "normal"
	case TaskPriorityLow:
		return "low"
	default:
		return "priority(" + strconv.Itoa(int(p)) + ")"
	}
}

// Valid reports whether p is a known tier.
func (p TaskPriority) Valid() bool {
	return p >= TaskPriorityCritical && p < numPriorities
}

// StackClass selects the fiber pool tier a task runs on.
type StackClass = stack.Class

const (
	StackSmall    StackClass = stack.Small
	StackStandard StackClass = stack.Standard
	StackExtended StackClass = stack.Extended
)

// Color is a 0xAARRGGBB debug color reported to listeners.
type Color uint32

const (
	ColorDefault   Color = 0
	ColorBlue      Color = 0xFF0000FF
	ColorLightBlue Color = 0xFFADD8E6
	ColorGreen     Color = 0xFF008000
	ColorLime      Color = 0xFF00FF00
	ColorYellow    Color = 0xFFFFFF00
	ColorOrange    Color = 0xFFFFA500
	ColorRed       Color = 0xFFFF0000
	ColorPurple    Color = 0xFF800080
	ColorBurlyWood Color = 0xFFDEB887
	ColorGray      Color = 0xFF808080
)

// Hex returns the color as #RRGGBB.
func (c Color) Hex() string {
	return fmt.Sprintf("#%06X", uint32(c)&0xFFFFFF)
}

type TaskTraits struct {
	Priority TaskPriority
	Stack    StackClass
	Color    Color
	// DebugID names the task in listener events and history records.
	// Empty means the function or type name is used.
	DebugID string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityNormal, Stack: StackStandard}
}

func TraitsCritical() TaskTraits {
	return TaskTraits{Priority: TaskPriorityCritical, Stack: StackStandard}
}

func TraitsHigh() TaskTraits {
	return TaskTraits{Priority: TaskPriorityHigh, Stack: StackStandard}
}

func TraitsLow() TaskTraits {
	return TaskTraits{Priority: TaskPriorityLow, Stack: StackStandard}
}

// WithPriority returns a copy of t using the given priority.
func (t TaskTraits) WithPriority(p TaskPriority) TaskTraits {
	t.Priority = p
	return t
}

// WithStack returns a copy of t using the given stack class.
func (t TaskTraits) WithStack(c StackClass) TaskTraits {
	t.Stack = c
	return t
}

// WithColor returns a copy of t using the given debug color.
func (t TaskTraits) WithColor(c Color) TaskTraits {
	t.Color = c
	return t
}

// WithDebugID returns a copy of t using the given debug ID.
func (t TaskTraits) WithDebugID(id string) TaskTraits {
	t.DebugID = id
	return t
}

func (t TaskTraits) validate() error {
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: priority %d", ErrInvalidTask, int(t.Priority))
	}
	if !t.Stack.Valid() {
		return fmt.Errorf("%w: stack class %d", ErrInvalidTask, int(t.Stack))
	}
	return nil
}

// =============================================================================
// Task: the unit of work
// =============================================================================

// Task is a caller-owned unit of work. The scheduler calls Traits once at
// submission and Do exactly once on a fiber; it keeps no reference to the
// task after Do returns.
type Task interface {
	Traits() TaskTraits
	Do(ctx *FiberContext)
}

// TaskFunc is the body of a closure task.
type TaskFunc func(ctx *FiberContext)

type funcTask struct {
	fn     TaskFunc
	traits TaskTraits
}

func (t *funcTask) Traits() TaskTraits   { return t.traits }
func (t *funcTask) Do(ctx *FiberContext) { t.fn(ctx) }

// NewTask wraps a closure as a Task. When traits carries no DebugID the
// function name is used.
func NewTask(fn TaskFunc, traits TaskTraits) Task {
	if fn == nil {
		return nil
	}
	if traits.DebugID == "" {
		traits.DebugID = resolveFuncName(fn)
	}
	return &funcTask{fn: fn, traits: traits}
}

// Func wraps a closure with DefaultTaskTraits.
func Func(fn TaskFunc) Task {
	return NewTask(fn, DefaultTaskTraits())
}

// TaskID identifies one submitted task instance.
type TaskID uint64

var lastTaskID atomic.Uint64

// GenerateTaskID returns a process-unique task ID.
func GenerateTaskID() TaskID {
	return TaskID(lastTaskID.Add(1))
}

func (id TaskID) String() string {
	return "task-" + strconv.FormatUint(uint64(id), 10)
}

func resolveFuncName(fn TaskFunc) string {
	pc := reflect.ValueOf(fn).Pointer()
	if pc == 0 {
		return "anonymous"
	}
	f := runtime.FuncForPC(pc)
	if f == nil || f.Name() == "" {
		return "anonymous"
	}
	return f.Name()
}

func resolveDebugID(task Task, traits TaskTraits) string {
	if traits.DebugID != "" {
		return traits.DebugID
	}
	return reflect.TypeOf(task).String()
}
