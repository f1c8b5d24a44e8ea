package model

// Endpoint is one side of an observed flow. None of its fields identify the
// endpoint on their own, they are hints used when matching flows.
type Endpoint struct {
	MAC     string   `json:"mac"` // empty when the hardware address is unknown
	IPs     []string `json:"ips"`
	Domains []string `json:"domains"`
}

// HasMAC reports whether a hardware address was observed for the endpoint.
func (e Endpoint) HasMAC() bool {
	return e.MAC != ""
}

// Names returns the IPs and domains of the endpoint as one list.
func (e Endpoint) Names() []string {
	names := make([]string, 0, len(e.IPs)+len(e.Domains))
	names = append(names, e.IPs...)
	return append(names, e.Domains...)
}

// Label picks the name shown for the endpoint in simplified output:
// the first domain, else the MAC, else the first IP.
func (e Endpoint) Label() string {
	switch {
	case len(e.Domains) > 0:
		return e.Domains[0]
	case e.MAC != "":
		return e.MAC
	case len(e.IPs) > 0:
		return e.IPs[0]
	default:
		return ""
	}
}

// FlowRecord is one directional transfer observed within a reporting tick.
// The Out counters hold traffic in the From -> To direction; the In counters
// only receive values when a reverse-direction record is merged in.
type FlowRecord struct {
	Timestamp int64    `json:"timestamp"`
	From      Endpoint `json:"from"`
	To        Endpoint `json:"to"`
	FromPort  int      `json:"from_port"`
	ToPort    int      `json:"to_port"`
	CountOut  int64    `json:"count_out"`
	SizeOut   int64    `json:"size_out"`
	CountIn   int64    `json:"count_in"`
	SizeIn    int64    `json:"size_in"`
}

// NewFlowRecord builds a record from one decoded flow event.
// The returned record is not normalized; see Normalize.
func NewFlowRecord(ev FlowEvent, timestamp int64) *FlowRecord {
	return &FlowRecord{
		Timestamp: timestamp,
		From:      ev.From.endpoint(),
		To:        ev.To.endpoint(),
		FromPort:  *ev.FromPort,
		ToPort:    *ev.ToPort,
		CountOut:  *ev.Count,
		SizeOut:   *ev.Size,
	}
}

// ToHasMAC reports whether only the destination side carries a MAC.
func (f *FlowRecord) ToHasMAC() bool {
	return f.From.MAC == "" && f.To.MAC != ""
}

// Flip reverses the direction of the record: endpoints, ports and both
// counter pairs are swapped.
func (f *FlowRecord) Flip() {
	f.From, f.To = f.To, f.From
	f.FromPort, f.ToPort = f.ToPort, f.FromPort
	f.CountIn, f.CountOut = f.CountOut, f.CountIn
	f.SizeIn, f.SizeOut = f.SizeOut, f.SizeIn
}

// Normalize orients the record so the side with a known hardware address
// (the LAN side) is the From endpoint.
func (f *FlowRecord) Normalize() {
	if f.ToHasMAC() {
		f.Flip()
	}
}

// Add merges the counters of other into f. The timestamp is taken from other.
func (f *FlowRecord) Add(other *FlowRecord) {
	f.Timestamp = other.Timestamp
	f.CountOut += other.CountOut
	f.SizeOut += other.SizeOut
	f.CountIn += other.CountIn
	f.SizeIn += other.SizeIn
}

// TotalSize is the number of bytes seen in both directions.
func (f *FlowRecord) TotalSize() int64 {
	return f.SizeIn + f.SizeOut
}

// TotalCount is the number of packets seen in both directions.
func (f *FlowRecord) TotalCount() int64 {
	return f.CountIn + f.CountOut
}

// Clone returns a deep copy of the record.
func (f *FlowRecord) Clone() *FlowRecord {
	c := *f
	c.From = f.From.clone()
	c.To = f.To.clone()
	return &c
}

func (e Endpoint) clone() Endpoint {
	return Endpoint{
		MAC:     e.MAC,
		IPs:     append([]string(nil), e.IPs...),
		Domains: append([]string(nil), e.Domains...),
	}
}
