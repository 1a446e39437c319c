package fiber

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSwitchTo_PingPong verifies symmetric transfer of control
// Main test items:
// 1. The entry point runs on the first switch
// 2. Each side resumes exactly after its own switch call
// 3. Terminate lets the entry return and joins the goroutine
func TestSwitchTo_PingPong(t *testing.T) {
	var trace []string
	main := FromCurrentThread()
	stop := false

	var worker *Fiber
	worker = Create("ping", make([]byte, 64), func(f *Fiber) {
		for !stop {
			trace = append(trace, "fiber")
			SwitchTo(f, main)
		}
		trace = append(trace, "exit")
	}, "payload")

	for i := 0; i < 3; i++ {
		trace = append(trace, "main")
		SwitchTo(main, worker)
	}
	stop = true
	Terminate(worker)

	want := []string{"main", "fiber", "main", "fiber", "main", "fiber", "exit"}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Fatalf("switch order mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, worker.Initialized())
	assert.Equal(t, "payload", worker.UserData())
}

// TestTerminate_NeverStarted verifies a fiber that never ran can be torn down
func TestTerminate_NeverStarted(t *testing.T) {
	ran := false
	f := Create("idle", nil, func(*Fiber) { ran = true }, nil)

	Terminate(f)

	require.True(t, ran, "entry should observe the exit request")
	assert.False(t, f.OwnsStack())
}

func TestFromCurrentThread_Properties(t *testing.T) {
	f := FromCurrentThread()

	assert.True(t, f.Initialized())
	assert.False(t, f.OwnsStack())
	assert.Nil(t, f.Stack())
	assert.Panics(t, func() { Terminate(f) })
	assert.Panics(t, func() { SwitchTo(f, f) })
}

func TestCreate_NilEntryPanics(t *testing.T) {
	assert.Panics(t, func() { Create("nil", nil, nil, nil) })
}

// TestID_MatchesRunningGoroutine verifies fiber ids identify the goroutine
// executing the fiber
func TestID_MatchesRunningGoroutine(t *testing.T) {
	main := FromCurrentThread()
	var inside uint64
	f := Create("id", nil, func(f *Fiber) {
		inside = CurrentID()
		SwitchTo(f, main)
	}, nil)

	SwitchTo(main, f)
	Terminate(f)

	assert.NotZero(t, f.ID())
	assert.Equal(t, f.ID(), inside)
	assert.Equal(t, CurrentID(), main.ID())
	assert.NotEqual(t, main.ID(), f.ID())
}
