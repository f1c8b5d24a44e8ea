package report

import (
	"context"
	"fmt"
	"log"
	"time"

	"spintraffic/internal/config"
	"spintraffic/internal/factory"
	"spintraffic/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS traffic_windows (
    WindowID    String,
    WindowStart String,
    WindowEnd   DateTime,
    Rank        UInt32,
    Timestamp   DateTime,
    FromMAC     String,
    FromIPs     Array(String),
    FromDomains Array(String),
    ToMAC       String,
    ToIPs       Array(String),
    ToDomains   Array(String),
    FromPort    UInt16,
    ToPort      UInt16,
    CountIn     UInt64,
    SizeIn      UInt64,
    CountOut    UInt64,
    SizeOut     UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(WindowEnd)
ORDER BY (WindowEnd, Rank);
`

const writeTimeout = 30 * time.Second

func init() {
	factory.RegisterWriter("clickhouse", func(cfg *config.Config) (model.Writer, error) {
		if !cfg.Output.ClickHouse.Enabled {
			return nil, nil
		}
		return NewClickHouseWriter(cfg.Output.ClickHouse)
	})
}

// flowBatch is the part of driver.Batch the writer uses.
type flowBatch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

type batchConn interface {
	PrepareBatch(ctx context.Context, query string) (flowBatch, error)
}

type driverConn struct {
	conn driver.Conn
}

func (c driverConn) PrepareBatch(ctx context.Context, query string) (flowBatch, error) {
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
// Each window becomes one row per flow in the traffic_windows table.
type ClickHouseWriter struct {
	conn batchConn
}

// NewClickHouseWriter connects to ClickHouse and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (model.Writer, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{conn: driverConn{conn: conn}}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Name returns the writer name.
func (w *ClickHouseWriter) Name() string {
	return "clickhouse"
}

// Write inserts the flows of a window into the traffic_windows table.
func (w *ClickHouseWriter) Write(window *model.Window) error {
	if len(window.Flows) == 0 {
		return nil // Nothing to write
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO traffic_windows")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for i, flow := range window.Flows {
		err = batch.Append(
			window.ID,
			window.Start,
			window.EndTime,
			uint32(i+1),
			time.Unix(flow.Timestamp, 0),
			flow.From.MAC,
			nonNil(flow.From.IPs),
			nonNil(flow.From.Domains),
			flow.To.MAC,
			nonNil(flow.To.IPs),
			nonNil(flow.To.Domains),
			uint16(flow.FromPort),
			uint16(flow.ToPort),
			uint64(flow.CountIn),
			uint64(flow.SizeIn),
			uint64(flow.CountOut),
			uint64(flow.SizeOut),
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append flow to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d flows to ClickHouse for window %s", len(window.Flows), window.ID)
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
