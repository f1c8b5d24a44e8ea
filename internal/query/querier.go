package query

import (
	"context"
	"fmt"
	"time"

	"spintraffic/internal/config"
	"spintraffic/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const topTalkersQuery = `
	SELECT
		FromMAC,
		uniqExact(WindowID) AS Windows,
		SUM(SizeIn + SizeOut) AS TotalBytes,
		SUM(CountIn + CountOut) AS TotalPackets
	FROM traffic_windows
	WHERE WindowEnd >= ? AND FromMAC != ''
	GROUP BY FromMAC
	ORDER BY TotalBytes DESC
	LIMIT ?
`

const windowFlowsQuery = `
	SELECT
		Timestamp, FromMAC, FromIPs, FromDomains, ToMAC, ToIPs, ToDomains,
		FromPort, ToPort, CountIn, SizeIn, CountOut, SizeOut
	FROM traffic_windows
	WHERE WindowID = ?
	ORDER BY Rank
`

// Talker is the traffic of one LAN device summed over the reported windows.
type Talker struct {
	MAC          string `json:"mac"`
	Windows      uint64 `json:"windows"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
}

// Querier defines the interface for querying reported windows.
type Querier interface {
	TopTalkers(ctx context.Context, since time.Time, limit int) ([]Talker, error)
	WindowFlows(ctx context.Context, windowID string) ([]*model.FlowRecord, error)
}

type resultRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type rowsConn interface {
	Query(ctx context.Context, query string, args ...any) (resultRows, error)
}

type driverConn struct {
	conn driver.Conn
}

func (c driverConn) Query(ctx context.Context, query string, args ...any) (resultRows, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn rowsConn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: driverConn{conn: conn}}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
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

// TopTalkers returns the LAN devices with the most traffic in windows ending
// at or after since.
func (q *clickhouseQuerier) TopTalkers(ctx context.Context, since time.Time, limit int) ([]Talker, error) {
	rows, err := q.conn.Query(ctx, topTalkersQuery, since, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	talkers := []Talker{}
	for rows.Next() {
		var t Talker
		if err := rows.Scan(&t.MAC, &t.Windows, &t.TotalBytes, &t.TotalPackets); err != nil {
			return nil, fmt.Errorf("failed to scan talker: %w", err)
		}
		talkers = append(talkers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read talkers: %w", err)
	}
	return talkers, nil
}

// WindowFlows returns the flows of a reported window in rank order.
func (q *clickhouseQuerier) WindowFlows(ctx context.Context, windowID string) ([]*model.FlowRecord, error) {
	rows, err := q.conn.Query(ctx, windowFlowsQuery, windowID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var flows []*model.FlowRecord
	for rows.Next() {
		var (
			ts                                 time.Time
			fromPort, toPort                   uint16
			countIn, sizeIn, countOut, sizeOut uint64
			f                                  model.FlowRecord
		)
		err := rows.Scan(
			&ts,
			&f.From.MAC, &f.From.IPs, &f.From.Domains,
			&f.To.MAC, &f.To.IPs, &f.To.Domains,
			&fromPort, &toPort,
			&countIn, &sizeIn, &countOut, &sizeOut,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		f.Timestamp = ts.Unix()
		f.FromPort, f.ToPort = int(fromPort), int(toPort)
		f.CountIn, f.SizeIn = int64(countIn), int64(sizeIn)
		f.CountOut, f.SizeOut = int64(countOut), int64(sizeOut)
		flows = append(flows, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read flows: %w", err)
	}
	return flows, nil
}
