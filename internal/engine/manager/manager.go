package manager

import (
	"fmt"
	"log"
	"sync"
	"time"

	"spintraffic/internal/config"
	"spintraffic/internal/engine/flowtable"
	"spintraffic/internal/model"
	"spintraffic/internal/report"

	"github.com/google/uuid"
)

// Emitter receives every window the manager closes.
type Emitter interface {
	Emit(w *model.Window) error
}

// Manager owns the reporting window. Every interval it detaches the flow
// table and hands the detached flows, labelled with the window bounds, to
// the emitter.
type Manager struct {
	table       *flowtable.Table
	emitter     Emitter
	interval    time.Duration
	flushOnStop bool

	// flushMu serializes flushes so window bounds never overlap.
	flushMu sync.Mutex
	start   string

	done      chan struct{}
	flusherWg sync.WaitGroup
	stopOnce  sync.Once
}

// NewManager creates a new Manager.
func NewManager(cfg *config.Config, table *flowtable.Table, emitter Emitter) (*Manager, error) {
	interval, err := cfg.WindowInterval()
	if err != nil {
		return nil, fmt.Errorf("invalid window interval: %w", err)
	}

	return &Manager{
		table:       table,
		emitter:     emitter,
		interval:    interval,
		flushOnStop: cfg.Window.FlushOnStop,
		start:       time.Now().Format(report.LabelLayout),
		done:        make(chan struct{}),
	}, nil
}

// Start begins the flush loop.
func (m *Manager) Start() {
	m.flusherWg.Add(1)
	go m.runFlusher()
	log.Printf("Started window flusher with interval %s", m.interval)
}

// runFlusher closes a window on every tick until the manager is stopped.
func (m *Manager) runFlusher() {
	defer m.flusherWg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.Flush(now)
		case <-m.done:
			if m.flushOnStop {
				m.Flush(time.Now())
			}
			log.Println("Window flusher shutting down.")
			return
		}
	}
}

// Flush closes the current window at now. When the table holds no flows
// nothing is emitted and the window keeps its start label, so the next
// report covers the whole quiet period. It returns the emitted window, or
// nil if there was nothing to emit.
func (m *Manager) Flush(now time.Time) *model.Window {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	flows := m.table.Detach()
	if flows == nil {
		return nil
	}

	w := &model.Window{
		ID:      uuid.NewString(),
		Start:   m.start,
		End:     now.Format(report.LabelLayout),
		EndTime: now,
		Flows:   flows,
	}
	m.start = w.End

	log.Printf("Closing window %s (%s - %s) with %d flows", w.ID, w.Start, w.End, len(flows))
	if err := m.emitter.Emit(w); err != nil {
		log.Printf("Error emitting window %s: %v", w.ID, err)
	}
	return w
}

// SetWindowStart relabels the start of the window currently accumulating.
// Offline replays use it to label windows with capture time.
func (m *Manager) SetWindowStart(t time.Time) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	m.start = t.Format(report.LabelLayout)
}

// WindowStart returns the start label of the window currently accumulating.
func (m *Manager) WindowStart() string {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	return m.start
}

// Stop gracefully shuts down the manager, flushing the open window first
// when configured to.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		log.Println("Manager stopping...")
		close(m.done)
		m.flusherWg.Wait()
		log.Println("Manager stopped.")
	})
}
