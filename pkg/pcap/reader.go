package pcap

import (
	"log"
	"time"

	"spintraffic/internal/probe"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

const (
	snapshotLen int32 = 1600
	promiscuous       = true
	liveTimeout       = 500 * time.Millisecond
)

// Reader reads packets from a pcap file or a live interface.
type Reader struct {
	handle *pcap.Handle
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// NewLiveReader opens the named interface for live capture.
func NewLiveReader(iface string) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snapshotLen, promiscuous, liveTimeout)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadPackets reads all packets from the handle and sends the parsed
// PacketInfo to the provided channel. It closes the channel when the
// source is exhausted.
func (r *Reader) ReadPackets(out chan<- *probe.PacketInfo) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		info, err := probe.ParsePacket(packet)
		if err != nil {
			// Non-IP traffic such as ARP is expected on most links.
			continue
		}
		out <- info
	}
	log.Println("Packet source exhausted.")
}
