package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	chromePIDFibers  = 1
	chromePIDWorkers = 2
)

// chromeEvent is one entry of the Chrome trace-event format, as read by
// chrome://tracing and Perfetto.
type chromeEvent struct {
	Name string         `json:"name"`
	Cat  string         `json:"cat,omitempty"`
	Ph   string         `json:"ph"`
	TS   float64        `json:"ts"`
	Dur  float64        `json:"dur,omitempty"`
	PID  int            `json:"pid"`
	TID  int            `json:"tid"`
	Args map[string]any `json:"args,omitempty"`
}

type chromeFile struct {
	TraceEvents     []chromeEvent `json:"traceEvents"`
	DisplayTimeUnit string        `json:"displayTimeUnit"`
}

func micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}

// WriteChrome writes events as Chrome trace-event JSON. Fiber slices are
// complete events on a "fibers" process with one track per fiber index;
// worker idle periods go to a "workers" process.
func WriteChrome(w io.Writer, events []Event) error {
	ivs, err := BuildIntervals(events)
	if err != nil {
		return err
	}

	out := chromeFile{DisplayTimeUnit: "ms"}
	out.TraceEvents = append(out.TraceEvents,
		chromeEvent{Name: "process_name", Ph: "M", PID: chromePIDFibers, Args: map[string]any{"name": "fibers"}},
		chromeEvent{Name: "process_name", Ph: "M", PID: chromePIDWorkers, Args: map[string]any{"name": "workers"}},
	)

	named := map[int]bool{}
	for _, iv := range ivs {
		if !named[iv.Fiber] {
			named[iv.Fiber] = true
			out.TraceEvents = append(out.TraceEvents, chromeEvent{
				Name: "thread_name", Ph: "M", PID: chromePIDFibers, TID: iv.Fiber,
				Args: map[string]any{"name": fmt.Sprintf("fiber %d", iv.Fiber)},
			})
		}
		out.TraceEvents = append(out.TraceEvents, chromeEvent{
			Name: iv.DebugID,
			Cat:  "task",
			Ph:   "X",
			TS:   micros(iv.Start),
			Dur:  micros(iv.Duration()),
			PID:  chromePIDFibers,
			TID:  iv.Fiber,
			Args: map[string]any{
				"color":    iv.Color.Hex(),
				"resumed":  iv.Resumed,
				"finished": iv.Finished,
			},
		})
	}

	idleSince := map[int]time.Duration{}
	for _, e := range events {
		switch e.Kind {
		case KindThreadStarted:
			out.TraceEvents = append(out.TraceEvents, chromeEvent{
				Name: "thread_name", Ph: "M", PID: chromePIDWorkers, TID: e.Worker,
				Args: map[string]any{"name": fmt.Sprintf("worker %d", e.Worker)},
			})
		case KindIdleStarted:
			idleSince[e.Worker] = e.At
		case KindIdleFinished:
			start, ok := idleSince[e.Worker]
			if !ok {
				continue
			}
			delete(idleSince, e.Worker)
			out.TraceEvents = append(out.TraceEvents, chromeEvent{
				Name: "idle",
				Cat:  "worker",
				Ph:   "X",
				TS:   micros(start),
				Dur:  micros(e.At - start),
				PID:  chromePIDWorkers,
				TID:  e.Worker,
			})
		}
	}

	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

// WriteChromeFile writes the recording to path.
func (r *Recorder) WriteChromeFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteChrome(f, r.Events())
}
