package model

import "time"

// Window is the finished flow set of one reporting interval, handed from the
// window manager to the reporter. Flows are owned by the window once detached
// from the flow table.
type Window struct {
	ID    string
	Start string // display label of the window start
	End   string // display label of the window end
	// EndTime is the wall-clock time the window was closed; file names and
	// database rows are derived from it.
	EndTime time.Time
	Flows   []*FlowRecord
}

// TotalSize returns the number of bytes over all flows in the window.
func (w *Window) TotalSize() int64 {
	var total int64
	for _, f := range w.Flows {
		total += f.TotalSize()
	}
	return total
}

// TotalCount returns the number of packets over all flows in the window.
func (w *Window) TotalCount() int64 {
	var total int64
	for _, f := range w.Flows {
		total += f.TotalCount()
	}
	return total
}

// Writer defines a generic interface for emitting a finished window to an
// output sink (console, file, database).
type Writer interface {
	// Write emits the window. Flows are already ranked.
	Write(w *Window) error

	// Name identifies the writer in logs and metrics.
	Name() string
}
