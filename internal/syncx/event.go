// Package syncx holds the small synchronization primitives the scheduler is
// built from: reset events and cache-line padded counters.
package syncx

import (
	"sync"
	"time"
)

// ResetMode selects how an Event returns to the non-signaled state.
type ResetMode int

const (
	// AutoReset releases a single waiter per Signal and clears itself.
	AutoReset ResetMode = iota
	// ManualReset releases every waiter and stays signaled until Reset.
	ManualReset
)

// Infinite disables the timeout of Wait.
const Infinite time.Duration = -1

// Event is a waitable flag.
type Event struct {
	mode ResetMode

	// auto-reset token
	token chan struct{}

	// manual-reset state
	mu       sync.Mutex
	gate     chan struct{}
	signaled bool
}

// NewEvent creates an event in the given mode and initial state.
func NewEvent(mode ResetMode, signaled bool) *Event {
	e := &Event{mode: mode}
	switch mode {
	case AutoReset:
		e.token = make(chan struct{}, 1)
		if signaled {
			e.token <- struct{}{}
		}
	default:
		e.gate = make(chan struct{})
		if signaled {
			close(e.gate)
			e.signaled = true
		}
	}
	return e
}

// Signal sets the event. For an auto-reset event at most one pending
// signal is remembered.
func (e *Event) Signal() {
	if e.mode == AutoReset {
		select {
		case e.token <- struct{}{}:
		default:
		}
		return
	}

	e.mu.Lock()
	if !e.signaled {
		close(e.gate)
		e.signaled = true
	}
	e.mu.Unlock()
}

// Reset clears the event.
func (e *Event) Reset() {
	if e.mode == AutoReset {
		select {
		case <-e.token:
		default:
		}
		return
	}

	e.mu.Lock()
	if e.signaled {
		e.gate = make(chan struct{})
		e.signaled = false
	}
	e.mu.Unlock()
}

// IsSignaled reports the current state without consuming an auto-reset token.
func (e *Event) IsSignaled() bool {
	if e.mode == AutoReset {
		return len(e.token) > 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// Wait blocks until the event is signaled or the timeout elapses. A negative
// timeout waits forever. It reports whether the event was observed signaled.
func (e *Event) Wait(timeout time.Duration) bool {
	ch := e.channel()

	if timeout < 0 {
		<-ch
		return true
	}
	if timeout == 0 {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

func (e *Event) channel() <-chan struct{} {
	if e.mode == AutoReset {
		return e.token
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate
}
