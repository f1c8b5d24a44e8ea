package report

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"spintraffic/internal/metrics"
	"spintraffic/internal/model"
)

// Rank sorts flows by total bytes, largest first. Flows of equal size keep
// their table order.
func Rank(flows []*model.FlowRecord) {
	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].TotalSize() > flows[j].TotalSize()
	})
}

// Reporter ranks finished windows and hands them to every configured writer.
// The last window is kept in memory regardless of writer failures.
type Reporter struct {
	writers []model.Writer
	metrics *metrics.Metrics

	mu     sync.RWMutex
	latest *model.Window
}

// NewReporter creates a reporter emitting to the given writers.
func NewReporter(writers []model.Writer, m *metrics.Metrics) *Reporter {
	return &Reporter{writers: writers, metrics: m}
}

// Emit ranks the window and writes it to all writers. A failing writer does
// not stop the others; all failures are logged and returned joined.
func (r *Reporter) Emit(w *model.Window) error {
	Rank(w.Flows)

	r.mu.Lock()
	r.latest = w
	r.mu.Unlock()

	r.metrics.WindowsFlushed.Inc()
	r.metrics.LastWindowFlows.Set(float64(len(w.Flows)))
	r.metrics.LastWindowBytes.Set(float64(w.TotalSize()))

	var errs []error
	for _, writer := range r.writers {
		if err := writer.Write(w); err != nil {
			log.Printf("Error writing window %s with writer '%s': %v", w.ID, writer.Name(), err)
			r.metrics.SinkErrors.WithLabelValues(writer.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", writer.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Latest returns the last emitted window, or nil if none was emitted yet.
// The returned window must not be modified.
func (r *Reporter) Latest() *model.Window {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}
