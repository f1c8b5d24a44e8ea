package probe

import (
	"errors"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrUnsupportedPacket is returned for packets without an IPv4 or IPv6 layer.
var ErrUnsupportedPacket = errors.New("unsupported packet")

// PacketInfo holds the fields of a captured packet the collector needs.
type PacketInfo struct {
	Timestamp time.Time
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   uint16
	DstPort   uint16
	Protocol  uint8
	Length    int
}

// ParsePacket extracts addressing and size information from a decoded packet.
// Packets of protocols other than TCP and UDP are kept with zero ports.
func ParsePacket(packet gopacket.Packet) (*PacketInfo, error) {
	info := &PacketInfo{
		Timestamp: time.Now(), // Overwritten by capture metadata when available
		Length:    len(packet.Data()),
	}

	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			info.Timestamp = meta.Timestamp
		}
		if meta.Length > 0 {
			info.Length = meta.Length
		}
	}

	if l := packet.Layer(layers.LayerTypeEthernet); l != nil {
		eth := l.(*layers.Ethernet)
		info.SrcMAC = eth.SrcMAC
		info.DstMAC = eth.DstMAC
	}

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		info.SrcIP = ip.SrcIP
		info.DstIP = ip.DstIP
		info.Protocol = uint8(ip.Protocol)
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		info.SrcIP = ip.SrcIP
		info.DstIP = ip.DstIP
		info.Protocol = uint8(ip.NextHeader)
	} else {
		return nil, ErrUnsupportedPacket
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		info.SrcPort = uint16(tcp.SrcPort)
		info.DstPort = uint16(tcp.DstPort)
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		info.SrcPort = uint16(udp.SrcPort)
		info.DstPort = uint16(udp.DstPort)
	}

	return info, nil
}
