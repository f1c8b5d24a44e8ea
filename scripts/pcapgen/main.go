package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var gatewayMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}

type conversation struct {
	hostMAC  net.HardwareAddr
	hostIP   net.IP
	remoteIP net.IP
	hostPort layers.TCPPort
	port     layers.TCPPort
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	hosts := flag.Int("hosts", 4, "Number of LAN hosts")
	conversations := flag.Int("conv", 20, "Number of conversations between LAN hosts and remote servers")
	duration := flag.Duration("d", 3*time.Minute, "Capture time covered by the generated packets")
	flag.Parse()

	if *packetCount <= 0 || *hosts <= 0 || *hosts > 240 || *conversations <= 0 {
		log.Fatalf("Invalid options: need c > 0, 0 < hosts <= 240 and conv > 0")
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	convs := make([]conversation, *conversations)
	for i := range convs {
		h := rng.Intn(*hosts)
		convs[i] = conversation{
			hostMAC:  net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, byte(h)},
			hostIP:   net.IP{192, 168, 1, byte(10 + h)},
			remoteIP: net.IP{byte(rng.Intn(223) + 1), byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(254) + 1)},
			hostPort: layers.TCPPort(rng.Intn(65535-1024) + 1024),
			port:     []layers.TCPPort{80, 443, 8080, 22}[rng.Intn(4)],
		}
	}

	log.Printf("Generating %d packets into %s...", *packetCount, *outputFile)

	start := time.Now().Add(-*duration)
	step := *duration / time.Duration(*packetCount)
	for i := 0; i < *packetCount; i++ {
		c := convs[rng.Intn(len(convs))]

		// Responses are larger and outnumber requests.
		outbound := rng.Intn(3) == 0
		ethLayer := &layers.Ethernet{SrcMAC: c.hostMAC, DstMAC: gatewayMAC, EthernetType: layers.EthernetTypeIPv4}
		ipLayer := &layers.IPv4{SrcIP: c.hostIP, DstIP: c.remoteIP, Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP}
		tcpLayer := &layers.TCP{SrcPort: c.hostPort, DstPort: c.port, Seq: rng.Uint32(), Ack: rng.Uint32(), ACK: true, Window: 14600}
		payloadSize := rng.Intn(200) + 40
		if !outbound {
			ethLayer.SrcMAC, ethLayer.DstMAC = ethLayer.DstMAC, ethLayer.SrcMAC
			ipLayer.SrcIP, ipLayer.DstIP = ipLayer.DstIP, ipLayer.SrcIP
			tcpLayer.SrcPort, tcpLayer.DstPort = tcpLayer.DstPort, tcpLayer.SrcPort
			payloadSize = rng.Intn(1400) + 50
		}
		tcpLayer.SetNetworkLayerForChecksum(ipLayer)

		payload := make([]byte, payloadSize)
		rng.Read(payload)

		// Serialize the packet
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		}
		if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, tcpLayer, gopacket.Payload(payload)); err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}

		// Write packet to file
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * step),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := pcapWriter.WritePacket(ci, buf.Bytes()); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}
