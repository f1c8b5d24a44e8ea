// Package replay drives the aggregation pipeline from a finished capture,
// using packet timestamps instead of the wall clock.
package replay

import (
	"encoding/json"
	"log"
	"time"

	"spintraffic/internal/model"
	"spintraffic/internal/probe"
)

// WindowFlusher closes windows at a given time.
type WindowFlusher interface {
	SetWindowStart(t time.Time)
	Flush(now time.Time) *model.Window
}

// Replayer feeds captured packets through the collector and the bus message
// handler and closes windows as capture time passes their end.
type Replayer struct {
	collector      *probe.Collector
	handle         probe.MessageHandler
	windows        WindowFlusher
	reportInterval time.Duration
	windowInterval time.Duration
}

// NewReplayer creates a replayer publishing a traffic message every
// reportInterval and closing a window every windowInterval of capture time.
func NewReplayer(collector *probe.Collector, handle probe.MessageHandler, windows WindowFlusher, reportInterval, windowInterval time.Duration) *Replayer {
	return &Replayer{
		collector:      collector,
		handle:         handle,
		windows:        windows,
		reportInterval: reportInterval,
		windowInterval: windowInterval,
	}
}

// Run consumes packets until the channel is closed and returns the number of
// windows emitted. The last, partial window is closed at the time of the
// last packet.
func (r *Replayer) Run(packets <-chan *probe.PacketInfo) int {
	var (
		reportEnd, windowEnd, last time.Time
		emitted                    int
	)

	for info := range packets {
		ts := info.Timestamp
		if reportEnd.IsZero() {
			r.windows.SetWindowStart(ts)
			reportEnd = ts.Add(r.reportInterval)
			windowEnd = ts.Add(r.windowInterval)
		}

		// Reports due at a window end belong to that window.
		for !ts.Before(reportEnd) || !ts.Before(windowEnd) {
			if !reportEnd.After(windowEnd) {
				r.publish(reportEnd)
				reportEnd = reportEnd.Add(r.reportInterval)
			} else {
				if r.windows.Flush(windowEnd) != nil {
					emitted++
				}
				windowEnd = windowEnd.Add(r.windowInterval)
			}
		}

		r.collector.Add(info)
		last = ts
	}

	if last.IsZero() {
		log.Println("Replay finished without packets.")
		return 0
	}
	r.publish(last)
	if r.windows.Flush(last) != nil {
		emitted++
	}
	log.Printf("Replay finished: %d windows emitted.", emitted)
	return emitted
}

func (r *Replayer) publish(at time.Time) {
	msg := r.collector.Flush(at)
	if msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error encoding traffic message: %v", err)
		return
	}
	r.handle(data)
}
