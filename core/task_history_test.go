package core

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func historyIDs(records []TaskExecutionRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.DebugID)
	}
	return ids
}

// TestExecutionHistory_Ring verifies the ring keeps the newest records
// Main test items:
// 1. Empty history returns nothing
// 2. Recent is newest first and honors the limit
// 3. Older records are overwritten once capacity is reached
func TestExecutionHistory_Ring(t *testing.T) {
	h := newExecutionHistory(3)

	_, ok := h.Last()
	assert.False(t, ok)
	assert.Nil(t, h.Recent(0))

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		h.Add(TaskExecutionRecord{DebugID: id})
	}

	if diff := cmp.Diff([]string{"e", "d", "c"}, historyIDs(h.Recent(0))); diff != "" {
		t.Errorf("recent mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"e", "d"}, historyIDs(h.Recent(2))); diff != "" {
		t.Errorf("limited recent mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, h.Recent(10), 3)

	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, "e", last.DebugID)
}

func TestExecutionHistory_DefaultCapacity(t *testing.T) {
	h := newExecutionHistory(0)
	for range defaultTaskHistoryCapacity + 5 {
		h.Add(TaskExecutionRecord{})
	}
	assert.Len(t, h.Recent(0), defaultTaskHistoryCapacity)
}

// TestExecutionHistory_Matching verifies filtered queries over the ring
// Main test items:
// 1. Only accepted records are returned, newest first
// 2. The limit counts accepted records
// 3. Records overwritten by the ring are not visible
func TestExecutionHistory_Matching(t *testing.T) {
	h := newExecutionHistory(4)
	for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
		h.Add(TaskExecutionRecord{DebugID: id, Worker: i % 2})
	}

	onWorker := func(w int) func(r *TaskExecutionRecord) bool {
		return func(r *TaskExecutionRecord) bool { return r.Worker == w }
	}

	if diff := cmp.Diff([]string{"e", "c"}, historyIDs(h.Matching(0, onWorker(0)))); diff != "" {
		t.Errorf("worker 0 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"f"}, historyIDs(h.Matching(1, onWorker(1)))); diff != "" {
		t.Errorf("limited worker 1 mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, h.Matching(0, onWorker(7)))
}

// TestExecutionHistory_FiberUsage verifies per-fiber aggregation
// Given: Records spread over two fibers, one of them panicked
// When: FiberUsage folds the history
// Then: Counts, suspensions and busy time add up per fiber, ordered by index
func TestExecutionHistory_FiberUsage(t *testing.T) {
	// Arrange
	h := newExecutionHistory(8)
	h.Add(TaskExecutionRecord{DebugID: "a", FiberIndex: 3, FiberStack: StackStandard, Suspensions: 2, Duration: 3 * time.Millisecond})
	h.Add(TaskExecutionRecord{DebugID: "b", FiberIndex: 1, FiberStack: StackSmall, Duration: time.Millisecond})
	h.Add(TaskExecutionRecord{DebugID: "c", FiberIndex: 3, FiberStack: StackStandard, Suspensions: 1, Duration: 2 * time.Millisecond, Panicked: true})

	// Act
	usage := h.FiberUsage()

	// Assert
	want := []FiberUsage{
		{FiberIndex: 1, Stack: StackSmall, Tasks: 1, Busy: time.Millisecond, LastDebugID: "b"},
		{FiberIndex: 3, Stack: StackStandard, Tasks: 2, Suspensions: 3, Panicked: 1, Busy: 5 * time.Millisecond, LastDebugID: "c"},
	}
	if diff := cmp.Diff(want, usage); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}
	empty := newExecutionHistory(2)
	assert.Empty(t, empty.FiberUsage())
}
