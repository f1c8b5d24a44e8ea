package report

import (
	"fmt"
	"strconv"
	"strings"

	"spintraffic/internal/model"
)

const (
	// LabelLayout formats the window start and end labels.
	LabelLayout = "2006-01-02 15:04:05"
	// FileTimeLayout formats the window end time in output file names.
	FileTimeLayout = "2006-01-02_15:04:05"
)

// FormatBytes renders a byte count with a unit suffix. Values are truncated,
// not rounded: 1500 is "1kb".
func FormatBytes(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%db", n)
	case n < 1000000:
		return fmt.Sprintf("%dkb", n/1000)
	default:
		return fmt.Sprintf("%dMb", n/1000000)
	}
}

// Header returns the summary line that precedes a window's flows.
func Header(w *model.Window) string {
	return fmt.Sprintf("Traffic summary %s - %s:", w.Start, w.End)
}

// CSVFields returns the full view of a flow in the fixed column order:
// timestamp, from_mac, from_ips, from_domains, to_mac, to_ips, to_domains,
// from_port, to_port, count_in, size_in, count_out, size_out.
func CSVFields(f *model.FlowRecord) []string {
	return []string{
		strconv.FormatInt(f.Timestamp, 10),
		f.From.MAC,
		strings.Join(f.From.IPs, "|"),
		strings.Join(f.From.Domains, "|"),
		f.To.MAC,
		strings.Join(f.To.IPs, "|"),
		strings.Join(f.To.Domains, "|"),
		strconv.Itoa(f.FromPort),
		strconv.Itoa(f.ToPort),
		strconv.FormatInt(f.CountIn, 10),
		strconv.FormatInt(f.SizeIn, 10),
		strconv.FormatInt(f.CountOut, 10),
		strconv.FormatInt(f.SizeOut, 10),
	}
}

// CSVLine returns the full view of a flow as one comma separated line.
func CSVLine(f *model.FlowRecord) string {
	return strings.Join(CSVFields(f), ",")
}

// SimplifiedLine returns the one-line human readable view of a flow.
func SimplifiedLine(f *model.FlowRecord) string {
	return fmt.Sprintf("%s:%d  %s:%d  in: %s  out: %s packets: %d",
		f.From.Label(), f.FromPort,
		f.To.Label(), f.ToPort,
		FormatBytes(f.SizeIn), FormatBytes(f.SizeOut),
		f.TotalCount(),
	)
}
