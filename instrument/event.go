package instrument

import (
	"slices"
	"strings"
)

// Event is one complete ("X" phase) Chrome trace event. Times are in
// microseconds.
type Event struct {
	Cat  string `json:"cat"`
	Dur  int64  `json:"dur"`
	Name string `json:"name"`
	Ph   string `json:"ph"`
	Pid  int    `json:"pid"`
	Tid  int    `json:"tid"`
	Ts   int64  `json:"ts"`
}

// PhaseComplete is the Chrome trace phase for events with a duration.
const PhaseComplete = "X"

// CategoryFunction is the default event category.
const CategoryFunction = "function"

// Trace is the JSON object format understood by trace viewers.
type Trace struct {
	TraceEvents []Event `json:"traceEvents"`
}

// SortEvents orders events by start time, then process and thread.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		switch {
		case a.Ts != b.Ts:
			return cmpInt64(a.Ts, b.Ts)
		case a.Pid != b.Pid:
			return a.Pid - b.Pid
		case a.Tid != b.Tid:
			return a.Tid - b.Tid
		default:
			return strings.Compare(a.Name, b.Name)
		}
	})
}

func cmpInt64(a, b int64) int {
	if a < b {
		return -1
	}
	return 1
}
