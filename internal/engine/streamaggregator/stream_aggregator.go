package streamaggregator

import (
	"context"
	"fmt"
	"log"
	"time"

	"spintraffic/internal/api"
	"spintraffic/internal/config"
	"spintraffic/internal/engine/flowtable"
	"spintraffic/internal/engine/manager"
	"spintraffic/internal/factory"
	"spintraffic/internal/metrics"
	"spintraffic/internal/probe"
	"spintraffic/internal/query"
	"spintraffic/internal/report" // Registers the console, file and ClickHouse writers
)

const shutdownTimeout = 5 * time.Second

// StreamAggregator consumes traffic messages from the bus, merges them into
// the flow table and reports one window per interval.
type StreamAggregator struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	table      *flowtable.Table
	reporter   *report.Reporter
	manager    *manager.Manager
	subscriber *probe.Subscriber
	api        *api.Server
}

// NewStreamAggregator wires the flow table, writers and window manager.
// Nothing connects to the bus before Start.
func NewStreamAggregator(cfg *config.Config) (*StreamAggregator, error) {
	m := metrics.New()
	table := flowtable.New()
	reporter := report.NewReporter(factory.Create(cfg), m)

	mgr, err := manager.NewManager(cfg, table, reporter)
	if err != nil {
		return nil, err
	}

	sa := &StreamAggregator{
		cfg:      cfg,
		metrics:  m,
		table:    table,
		reporter: reporter,
		manager:  mgr,
	}
	if cfg.API.Enabled {
		var history query.Querier
		if cfg.Output.ClickHouse.Enabled {
			history, err = query.NewClickHouseQuerier(cfg.Output.ClickHouse)
			if err != nil {
				log.Printf("Warning: history queries disabled: %v", err)
			}
		}
		sa.api = api.NewServer(cfg.API, reporter, table, history, m)
	}
	return sa, nil
}

// Start connects to the bus, starts the window manager and begins
// processing messages.
func (sa *StreamAggregator) Start() error {
	if sa.api != nil {
		if err := sa.api.Start(); err != nil {
			return err
		}
	}

	var status probe.StatusFunc
	if sa.api != nil {
		status = sa.api.SetBusStatus
	}
	log.Println("StreamAggregator starting for nats: ", sa.cfg.Bus.URL())
	sub, err := probe.NewSubscriber(sa.cfg.Bus, sa.metrics, status)
	if err != nil {
		return fmt.Errorf("StreamAggregator failed to connect to the bus: %w", err)
	}
	sa.subscriber = sub

	sa.manager.Start()

	if err := sa.subscriber.Start(probe.TrafficHandler(sa.table, sa.metrics)); err != nil {
		return fmt.Errorf("StreamAggregator failed to subscribe: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the aggregator. The bus is closed first so no
// flow arrives after the final window.
func (sa *StreamAggregator) Stop() {
	log.Println("StreamAggregator stopping...")
	if sa.subscriber != nil {
		sa.subscriber.Close()
	}
	sa.manager.Stop()

	if sa.api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sa.api.Shutdown(ctx); err != nil {
			log.Printf("Error stopping API server: %v", err)
		}
	}
	log.Println("StreamAggregator stopped.")
}
