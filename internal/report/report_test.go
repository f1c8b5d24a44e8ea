package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spintraffic/internal/config"
	"spintraffic/internal/factory"
	"spintraffic/internal/metrics"
	"spintraffic/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWindow() *model.Window {
	return &model.Window{
		ID:      "6f1c3a52-1b7e-4d1e-9c55-2e0c7f3b8a10",
		Start:   "2024-05-01 12:00:00",
		End:     "2024-05-01 12:01:00",
		EndTime: time.Date(2024, 5, 1, 12, 1, 0, 0, time.Local),
		Flows: []*model.FlowRecord{
			{
				Timestamp: 1714564850,
				From:      model.Endpoint{MAC: "AA:BB", IPs: []string{"192.168.1.10", "fe80::1"}},
				To:        model.Endpoint{IPs: []string{"10.0.0.5"}},
				FromPort:  443,
				ToPort:    80,
				CountOut:  5,
				SizeOut:   2000,
				CountIn:   3,
				SizeIn:    1500,
			},
			{
				Timestamp: 1714564855,
				From:      model.Endpoint{MAC: "AA:BB", IPs: []string{"192.168.1.10"}},
				To:        model.Endpoint{IPs: []string{"93.184.216.34"}, Domains: []string{"example.com", "www.example.com"}},
				FromPort:  51000,
				ToPort:    443,
				CountOut:  900,
				SizeOut:   90000,
				CountIn:   2100,
				SizeIn:    2500000,
			},
		},
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0b"},
		{500, "500b"},
		{999, "999b"},
		{1000, "1kb"},
		{1500, "1kb"},
		{999999, "999kb"},
		{1000000, "1Mb"},
		{2500000, "2Mb"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in), "FormatBytes(%d)", tt.in)
	}
}

func TestCSVLine(t *testing.T) {
	w := sampleWindow()
	assert.Equal(t,
		"1714564850,AA:BB,192.168.1.10|fe80::1,,,10.0.0.5,,443,80,3,1500,5,2000",
		CSVLine(w.Flows[0]))
	assert.Equal(t,
		"1714564855,AA:BB,192.168.1.10,,,93.184.216.34,example.com|www.example.com,51000,443,2100,2500000,900,90000",
		CSVLine(w.Flows[1]))
}

func TestSimplifiedLine(t *testing.T) {
	w := sampleWindow()
	assert.Equal(t, "AA:BB:443  10.0.0.5:80  in: 1kb  out: 2kb packets: 8", SimplifiedLine(w.Flows[0]))
	assert.Equal(t, "AA:BB:51000  example.com:443  in: 2Mb  out: 90kb packets: 3000", SimplifiedLine(w.Flows[1]))
}

func TestRank(t *testing.T) {
	flows := []*model.FlowRecord{
		{FromPort: 1, SizeOut: 10},
		{FromPort: 2, SizeOut: 5, SizeIn: 100},
		{FromPort: 3, SizeIn: 10},
		{FromPort: 4, SizeOut: 50},
	}
	Rank(flows)

	var order []int
	for _, f := range flows {
		order = append(order, f.FromPort)
	}
	assert.Equal(t, []int{2, 4, 1, 3}, order, "ties keep table order")
}

func TestConsoleWriter(t *testing.T) {
	w := sampleWindow()

	t.Run("simplified", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewConsoleWriter(&buf, false, false).Write(w))
		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "Traffic summary 2024-05-01 12:00:00 - 2024-05-01 12:01:00:", lines[0])
		assert.Equal(t, SimplifiedLine(w.Flows[0]), lines[1])
	})

	t.Run("csv with clear screen", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewConsoleWriter(&buf, true, true).Write(w))
		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "\033[2J\033[H"))
		assert.Contains(t, out, CSVLine(w.Flows[1])+"\n")
	})
}

func TestFileWriters(t *testing.T) {
	dir := t.TempDir()
	w := sampleWindow()

	// 1. CSV file
	csvPrefix := filepath.Join(dir, "traffic")
	require.NoError(t, NewCSVWriter(csvPrefix).Write(w))
	csvPath := csvPrefix + "_2024-05-01_12:01:00.csv"
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, CSVLine(w.Flows[0])+"\n"+CSVLine(w.Flows[1])+"\n", string(data))

	// 2. Simplified text file starts with the header
	txtPrefix := filepath.Join(dir, "summary")
	require.NoError(t, NewTextWriter(txtPrefix).Write(w))
	data, err = os.ReadFile(txtPrefix + "_2024-05-01_12:01:00.txt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, Header(w), lines[0])
	assert.Equal(t, SimplifiedLine(w.Flows[1]), lines[2])

	// 3. Unwritable location surfaces an error
	err = NewCSVWriter(filepath.Join(dir, "missing", "traffic")).Write(w)
	assert.Error(t, err)
}

func TestJSONWriter(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "window")
	w := sampleWindow()
	require.NoError(t, NewJSONWriter(prefix).Write(w))

	data, err := os.ReadFile(prefix + "_2024-05-01_12:01:00.json")
	require.NoError(t, err)

	var summary WindowSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, w.ID, summary.ID)
	assert.Equal(t, 2, summary.TotalFlows)
	assert.Equal(t, int64(2593500), summary.TotalSize)
	assert.Equal(t, int64(3008), summary.TotalCount)
	require.Len(t, summary.Flows, 2)
	assert.Equal(t, "AA:BB", summary.Flows[0].From.MAC)
	assert.Equal(t, int64(2500000), summary.Flows[1].SizeIn)
}

type fakeWriter struct {
	name    string
	err     error
	windows []*model.Window
}

func (f *fakeWriter) Name() string { return f.name }

func (f *fakeWriter) Write(w *model.Window) error {
	f.windows = append(f.windows, w)
	return f.err
}

func TestReporter_Emit(t *testing.T) {
	m := metrics.New()
	broken := &fakeWriter{name: "broken", err: errors.New("disk full")}
	healthy := &fakeWriter{name: "healthy"}
	reporter := NewReporter([]model.Writer{broken, healthy}, m)

	w := sampleWindow()
	err := reporter.Emit(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// The failing writer does not keep the others from running.
	require.Len(t, healthy.windows, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("broken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WindowsFlushed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LastWindowFlows))

	// Flows are ranked before writing and the window stays available.
	assert.Equal(t, 51000, healthy.windows[0].Flows[0].FromPort)
	assert.Same(t, w, reporter.Latest())
}

func TestReporter_LatestBeforeEmit(t *testing.T) {
	assert.Nil(t, NewReporter(nil, metrics.New()).Latest())
}

func TestRegisteredWriters(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.Quiet = true
	cfg.Output.WriteCSV = filepath.Join(dir, "traffic")

	writers := factory.Create(cfg)
	require.Len(t, writers, 1)
	assert.Equal(t, "csv", writers[0].Name())

	cfg.Output.Quiet = false
	cfg.Output.WriteSimplified = filepath.Join(dir, "summary")
	var names []string
	for _, w := range factory.Create(cfg) {
		names = append(names, w.Name())
	}
	assert.Equal(t, []string{"console", "csv", "simplified"}, names)

	cfg.Output.WriteJSON = filepath.Join(dir, "window")
	assert.Len(t, factory.Create(cfg), 4)
}

type fakeBatch struct {
	rows    [][]any
	sent    bool
	aborted bool
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

type fakeConn struct {
	batch *fakeBatch
	query string
	err   error
}

func (c *fakeConn) PrepareBatch(ctx context.Context, query string) (flowBatch, error) {
	c.query = query
	if c.err != nil {
		return nil, c.err
	}
	return c.batch, nil
}

func TestClickHouseWriter_Write(t *testing.T) {
	conn := &fakeConn{batch: &fakeBatch{}}
	writer := &ClickHouseWriter{conn: conn}

	w := sampleWindow()
	require.NoError(t, writer.Write(w))
	assert.Equal(t, "INSERT INTO traffic_windows", conn.query)
	assert.True(t, conn.batch.sent)
	require.Len(t, conn.batch.rows, 2)

	row := conn.batch.rows[1]
	require.Len(t, row, 17)
	assert.Equal(t, w.ID, row[0])
	assert.Equal(t, uint32(2), row[3])
	assert.Equal(t, []string{"example.com", "www.example.com"}, row[10])
	assert.Equal(t, []string{}, row[7])
	assert.Equal(t, uint16(51000), row[11])
	assert.Equal(t, uint64(2500000), row[14])
}

func TestClickHouseWriter_Errors(t *testing.T) {
	writer := &ClickHouseWriter{conn: &fakeConn{err: errors.New("connection reset")}}
	assert.Error(t, writer.Write(sampleWindow()))

	// Empty windows never reach the database.
	writer = &ClickHouseWriter{conn: &fakeConn{err: errors.New("unused")}}
	assert.NoError(t, writer.Write(&model.Window{}))
}
