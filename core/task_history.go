package core

import (
	"slices"
	"sync"
	"time"
)

const defaultTaskHistoryCapacity = 100

// FiberUsage aggregates the retained history of one pooled fiber.
type FiberUsage struct {
	FiberIndex  int
	Stack       StackClass
	Tasks       int
	Suspensions int
	Panicked    int
	// Busy sums start-to-finish durations, so time spent suspended counts.
	Busy        time.Duration
	LastDebugID string
}

// executionHistory keeps the most recently completed tasks. It fills up by
// appending, then overwrites the oldest slot.
type executionHistory struct {
	mu      sync.Mutex
	records []TaskExecutionRecord
	next    int // oldest slot once records is full
}

func newExecutionHistory(capacity int) executionHistory {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return executionHistory{records: make([]TaskExecutionRecord, 0, capacity)}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) < cap(h.records) {
		h.records = append(h.records, record)
		return
	}
	h.records[h.next] = record
	h.next = (h.next + 1) % len(h.records)
}

// each visits records newest first until fn returns false. h.mu must be held.
func (h *executionHistory) each(fn func(r *TaskExecutionRecord) bool) {
	n := len(h.records)
	newest := n - 1
	if n == cap(h.records) {
		newest = (h.next - 1 + n) % n
	}
	for i := range n {
		if !fn(&h.records[(newest-i+n)%n]) {
			return
		}
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	return h.Matching(limit, nil)
}

// Matching returns up to limit records accepted by keep, newest first. A nil
// keep accepts every record.
func (h *executionHistory) Matching(limit int, keep func(r *TaskExecutionRecord) bool) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []TaskExecutionRecord
	h.each(func(r *TaskExecutionRecord) bool {
		if keep == nil || keep(r) {
			out = append(out, *r)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

func (h *executionHistory) Last() (TaskExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var last TaskExecutionRecord
	found := false
	h.each(func(r *TaskExecutionRecord) bool {
		last, found = *r, true
		return false
	})
	return last, found
}

// FiberUsage folds the retained records per fiber index, ordered by index.
// Fibers with no retained record are left out.
func (h *executionHistory) FiberUsage() []FiberUsage {
	h.mu.Lock()
	defer h.mu.Unlock()

	byFiber := make(map[int]*FiberUsage)
	h.each(func(r *TaskExecutionRecord) bool {
		u := byFiber[r.FiberIndex]
		if u == nil {
			// newest first, so the first record seen is the fiber's last task
			u = &FiberUsage{FiberIndex: r.FiberIndex, Stack: r.FiberStack, LastDebugID: r.DebugID}
			byFiber[r.FiberIndex] = u
		}
		u.Tasks++
		u.Suspensions += r.Suspensions
		u.Busy += r.Duration
		if r.Panicked {
			u.Panicked++
		}
		return true
	})

	out := make([]FiberUsage, 0, len(byFiber))
	for _, u := range byFiber {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b FiberUsage) int { return a.FiberIndex - b.FiberIndex })
	return out
}
