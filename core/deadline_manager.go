package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Deadline is a pending timeout registered with a DeadlineManager.
type Deadline struct {
	At    time.Time
	fire  func()
	index int // for heap interface, -1 once popped or removed
}

// deadlineHeap implements heap.Interface
type deadlineHeap []*Deadline

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	n := len(*h)
	item := x.(*Deadline)
	item.index = n
	*h = append(*h, item)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *deadlineHeap) Peek() *Deadline {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DeadlineManager runs callbacks when their deadline passes, from a single
// timer goroutine. It drives WaitAll timeouts of suspended fibers.
type DeadlineManager struct {
	pq     deadlineHeap
	mu     sync.Mutex
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDeadlineManager() *DeadlineManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DeadlineManager{
		pq:     make(deadlineHeap, 0),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// Add schedules fire to run once timeout has elapsed. fire runs on the
// manager goroutine and must not block.
func (dm *DeadlineManager) Add(timeout time.Duration, fire func()) *Deadline {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := &Deadline{At: time.Now().Add(timeout), fire: fire}
	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
	return item
}

// Cancel removes d if it has not fired yet and reports whether it did.
func (dm *DeadlineManager) Cancel(d *Deadline) bool {
	if d == nil {
		return false
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if d.index < 0 || d.index >= len(dm.pq) || dm.pq[d.index] != d {
		return false
	}
	heap.Remove(&dm.pq, d.index)
	return true
}

func (dm *DeadlineManager) loop() {
	defer close(dm.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		next, ok := dm.nextDelay()
		if !ok {
			next = 1000 * time.Hour
		}
		timer.Reset(next)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.fireExpired()
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextDelay reports how long until the earliest deadline; ok is false when
// nothing is pending.
func (dm *DeadlineManager) nextDelay() (time.Duration, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0, false
	}
	d := time.Until(item.At)
	if d < 0 {
		d = 0
	}
	return d, true
}

func (dm *DeadlineManager) fireExpired() {
	dm.mu.Lock()

	now := time.Now()
	var expired []*Deadline
	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.At.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	for _, item := range expired {
		item.fire()
	}
}

// Stop ends the timer goroutine. Pending deadlines are dropped without
// firing.
func (dm *DeadlineManager) Stop() {
	dm.cancel()
	<-dm.done

	dm.mu.Lock()
	dm.pq = make(deadlineHeap, 0)
	dm.mu.Unlock()
}

// Len returns the number of pending deadlines.
func (dm *DeadlineManager) Len() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
