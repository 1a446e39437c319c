// Package fiber implements cooperatively scheduled execution contexts.
//
// A Fiber is backed by its own goroutine, but only runs while it holds the
// hand-off token passed by SwitchTo. The goroutine that calls SwitchTo parks
// until some other fiber switches back to it, so among the fibers that
// exchange control only one makes progress at a time.
package fiber

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
)

// EntryPoint is the body of a fiber. Returning from it ends the fiber and
// is only valid after Terminate has been requested through state the entry
// point observes itself.
type EntryPoint func(f *Fiber)

// Fiber is an execution context that can be switched into and out of.
type Fiber struct {
	wake chan struct{}
	done chan struct{}

	entry       EntryPoint
	userData    any
	stack       []byte
	initialized bool
	gid         uint64
}

// Create returns an initialized fiber that has not started running. The
// first SwitchTo into it calls entry. name is attached as a pprof label so
// profiles can be split per fiber.
func Create(name string, stack []byte, entry EntryPoint, userData any) *Fiber {
	if entry == nil {
		panic("fiber: nil entry point")
	}
	f := &Fiber{
		wake:        make(chan struct{}),
		done:        make(chan struct{}),
		entry:       entry,
		userData:    userData,
		stack:       stack,
		initialized: true,
	}
	started := make(chan uint64)
	go f.run(name, started)
	f.gid = <-started
	return f
}

// FromCurrentThread wraps the calling goroutine as a fiber so it can take
// part in SwitchTo. It owns no stack and has no entry point.
func FromCurrentThread() *Fiber {
	return &Fiber{
		wake:        make(chan struct{}),
		initialized: true,
		gid:         CurrentID(),
	}
}

func (f *Fiber) run(name string, started chan<- uint64) {
	defer close(f.done)
	started <- CurrentID()
	<-f.wake
	pprof.Do(context.Background(), pprof.Labels("fiber", name), func(context.Context) {
		f.entry(f)
	})
}

// SwitchTo transfers control from the running fiber to another one. The
// caller must be the goroutine currently executing from. It returns only when
// some fiber switches back into from.
func SwitchTo(from, to *Fiber) {
	if from == to {
		panic("fiber: switch to self")
	}
	if !to.initialized {
		panic("fiber: switch to uninitialized fiber")
	}
	to.wake <- struct{}{}
	<-from.wake
}

// Terminate resumes a parked fiber whose entry point is expected to return,
// and waits until its goroutine has exited. It must not be called on a
// thread fiber or on the running fiber.
func Terminate(f *Fiber) {
	if f.done == nil {
		panic("fiber: terminate on thread fiber")
	}
	f.wake <- struct{}{}
	<-f.done
	f.initialized = false
}

// ID returns the id of the goroutine backing f.
func (f *Fiber) ID() uint64 { return f.gid }

// CurrentID returns the id of the calling goroutine, as printed in stack
// traces.
func CurrentID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// UserData returns the value passed to Create.
func (f *Fiber) UserData() any { return f.userData }

// Stack returns the stack slot owned by the fiber, or nil for thread fibers.
func (f *Fiber) Stack() []byte { return f.stack }

// OwnsStack reports whether the fiber was created with its own stack slot.
func (f *Fiber) OwnsStack() bool { return f.stack != nil }

// Initialized reports whether the fiber can be switched into.
func (f *Fiber) Initialized() bool { return f.initialized }
