package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TrafficCommand is the only command value processed from the bus.
const TrafficCommand = "traffic"

// ErrMalformedMessage is returned for messages that are not valid JSON or lack
// a required field.
var ErrMalformedMessage = errors.New("malformed traffic message")

// TrafficMessage is the envelope published on the traffic subject.
type TrafficMessage struct {
	Command  string         `json:"command"`
	Argument string         `json:"argument"`
	Result   *TrafficReport `json:"result,omitempty"`
}

// TrafficReport is the result of a traffic command: all flows seen during one
// tick of the publisher.
type TrafficReport struct {
	Timestamp  *int64      `json:"timestamp"`
	TotalSize  int64       `json:"total_size"`
	TotalCount int64       `json:"total_count"`
	Flows      []FlowEvent `json:"flows"`
}

// FlowEvent is a single flow inside a traffic report. Pointer fields are
// required; a nil value after decoding means the field was missing.
type FlowEvent struct {
	From     *NodeEvent `json:"from"`
	To       *NodeEvent `json:"to"`
	Protocol int        `json:"protocol,omitempty"`
	FromPort *int       `json:"from_port"`
	ToPort   *int       `json:"to_port"`
	Count    *int64     `json:"count"`
	Size     *int64     `json:"size"`
}

// NodeEvent describes an endpoint as published by the traffic source.
// Fields other than mac, ips and domains are accepted and ignored.
type NodeEvent struct {
	ID       int       `json:"id,omitempty"`
	Name     string    `json:"name,omitempty"`
	MAC      string    `json:"mac,omitempty"`
	LastSeen int64     `json:"lastseen,omitempty"`
	IPs      *[]string `json:"ips"`
	Domains  *[]string `json:"domains"`
}

// NewNodeEvent describes an endpoint for publishing. Nil slices are sent as
// empty arrays.
func NewNodeEvent(mac string, ips, domains []string) *NodeEvent {
	if ips == nil {
		ips = []string{}
	}
	if domains == nil {
		domains = []string{}
	}
	return &NodeEvent{MAC: mac, IPs: &ips, Domains: &domains}
}

// NewFlowEvent builds a complete flow event for publishing.
func NewFlowEvent(from, to *NodeEvent, protocol, fromPort, toPort int, count, size int64) FlowEvent {
	return FlowEvent{
		From:     from,
		To:       to,
		Protocol: protocol,
		FromPort: &fromPort,
		ToPort:   &toPort,
		Count:    &count,
		Size:     &size,
	}
}

// NewTrafficMessage wraps flows into a traffic command, filling in the totals.
func NewTrafficMessage(timestamp int64, flows []FlowEvent) *TrafficMessage {
	report := &TrafficReport{Timestamp: &timestamp, Flows: flows}
	for _, f := range flows {
		report.TotalSize += *f.Size
		report.TotalCount += *f.Count
	}
	return &TrafficMessage{Command: TrafficCommand, Result: report}
}

func (n *NodeEvent) endpoint() Endpoint {
	return Endpoint{
		MAC:     n.MAC,
		IPs:     append([]string(nil), (*n.IPs)...),
		Domains: append([]string(nil), (*n.Domains)...),
	}
}

func (n *NodeEvent) validate(side string) error {
	if n == nil {
		return fmt.Errorf("%w: missing %s endpoint", ErrMalformedMessage, side)
	}
	if n.IPs == nil {
		return fmt.Errorf("%w: %s endpoint has no ips", ErrMalformedMessage, side)
	}
	if n.Domains == nil {
		return fmt.Errorf("%w: %s endpoint has no domains", ErrMalformedMessage, side)
	}
	return nil
}

func (ev *FlowEvent) validate() error {
	if err := ev.From.validate("from"); err != nil {
		return err
	}
	if err := ev.To.validate("to"); err != nil {
		return err
	}
	switch {
	case ev.FromPort == nil:
		return fmt.Errorf("%w: missing from_port", ErrMalformedMessage)
	case ev.ToPort == nil:
		return fmt.Errorf("%w: missing to_port", ErrMalformedMessage)
	case ev.Count == nil:
		return fmt.Errorf("%w: missing count", ErrMalformedMessage)
	case ev.Size == nil:
		return fmt.Errorf("%w: missing size", ErrMalformedMessage)
	}
	return nil
}

// DecodeTraffic parses a bus payload into normalized flow records.
// ok is false, with a nil error, for well-formed messages carrying another
// command. Any missing field fails the whole message so that a bad payload
// never partially reaches the flow table.
func DecodeTraffic(data []byte) (records []*FlowRecord, ok bool, err error) {
	var msg TrafficMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Command != TrafficCommand {
		return nil, false, nil
	}
	if msg.Result == nil {
		return nil, false, fmt.Errorf("%w: missing result", ErrMalformedMessage)
	}
	if msg.Result.Timestamp == nil {
		return nil, false, fmt.Errorf("%w: missing timestamp", ErrMalformedMessage)
	}

	records = make([]*FlowRecord, 0, len(msg.Result.Flows))
	for i := range msg.Result.Flows {
		ev := msg.Result.Flows[i]
		if err := ev.validate(); err != nil {
			return nil, false, fmt.Errorf("flow %d: %w", i, err)
		}
		rec := NewFlowRecord(ev, *msg.Result.Timestamp)
		rec.Normalize()
		records = append(records, rec)
	}
	return records, true, nil
}
