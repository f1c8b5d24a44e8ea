package probe

import (
	"fmt"
	"net"
	"sync"
	"time"

	"spintraffic/internal/model"
)

type flowKey struct {
	srcMAC, dstMAC string
	srcIP, dstIP   string
	srcPort        uint16
	dstPort        uint16
	protocol       uint8
}

type flowCounter struct {
	count int64
	size  int64
}

// Collector aggregates captured packets per flow until the next report.
// The MAC of an endpoint is only published when its address belongs to one
// of the local networks.
type Collector struct {
	local []*net.IPNet

	mu    sync.Mutex
	flows map[flowKey]*flowCounter
	order []flowKey
}

// NewCollector creates a collector treating the given CIDRs as local.
func NewCollector(localNetworks []string) (*Collector, error) {
	c := &Collector{flows: make(map[flowKey]*flowCounter)}
	for _, cidr := range localNetworks {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse local network %q: %w", cidr, err)
		}
		c.local = append(c.local, network)
	}
	return c, nil
}

func (c *Collector) isLocal(ip net.IP) bool {
	for _, network := range c.local {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Add counts one packet.
func (c *Collector) Add(info *PacketInfo) {
	key := flowKey{
		srcIP:    info.SrcIP.String(),
		dstIP:    info.DstIP.String(),
		srcPort:  info.SrcPort,
		dstPort:  info.DstPort,
		protocol: info.Protocol,
	}
	if len(info.SrcMAC) > 0 && c.isLocal(info.SrcIP) {
		key.srcMAC = info.SrcMAC.String()
	}
	if len(info.DstMAC) > 0 && c.isLocal(info.DstIP) {
		key.dstMAC = info.DstMAC.String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	counter, ok := c.flows[key]
	if !ok {
		counter = &flowCounter{}
		c.flows[key] = counter
		c.order = append(c.order, key)
	}
	counter.count++
	counter.size += int64(info.Length)
}

// Len returns the number of flows waiting for the next report.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Flush builds a traffic message from the collected flows, in the order they
// were first seen, and starts collecting anew. It returns nil when no packet
// was collected.
func (c *Collector) Flush(now time.Time) *model.TrafficMessage {
	c.mu.Lock()
	flows, order := c.flows, c.order
	c.flows = make(map[flowKey]*flowCounter)
	c.order = nil
	c.mu.Unlock()

	if len(order) == 0 {
		return nil
	}

	events := make([]model.FlowEvent, 0, len(order))
	for _, key := range order {
		counter := flows[key]
		events = append(events, model.NewFlowEvent(
			model.NewNodeEvent(key.srcMAC, []string{key.srcIP}, nil),
			model.NewNodeEvent(key.dstMAC, []string{key.dstIP}, nil),
			int(key.protocol),
			int(key.srcPort),
			int(key.dstPort),
			counter.count,
			counter.size,
		))
	}
	return model.NewTrafficMessage(now.Unix(), events)
}
