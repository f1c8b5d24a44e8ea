package probe

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"spintraffic/internal/engine/flowtable"
	"spintraffic/internal/metrics"
	"spintraffic/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lanMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	gwMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0xfe}
)

func tcpPacket(t *testing.T, srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP string, srcPort, dstPort uint16, payload int) gopacket.Packet {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(make([]byte, payload))))
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func udp6Packet(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16) gopacket.Packet {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: lanMAC, DstMAC: gwMAC, EthernetType: layers.EthernetTypeIPv6}
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP(srcIP),
		DstIP:      net.ParseIP(dstIP),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("query"))))
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func TestParsePacket(t *testing.T) {
	t.Run("ipv4 tcp", func(t *testing.T) {
		packet := tcpPacket(t, lanMAC, gwMAC, "192.168.1.10", "93.184.216.34", 51000, 443, 100)
		info, err := ParsePacket(packet)
		require.NoError(t, err)
		assert.Equal(t, lanMAC, info.SrcMAC)
		assert.Equal(t, gwMAC, info.DstMAC)
		assert.Equal(t, "192.168.1.10", info.SrcIP.String())
		assert.Equal(t, "93.184.216.34", info.DstIP.String())
		assert.Equal(t, uint16(51000), info.SrcPort)
		assert.Equal(t, uint16(443), info.DstPort)
		assert.Equal(t, uint8(layers.IPProtocolTCP), info.Protocol)
		assert.Equal(t, 14+20+20+100, info.Length)
	})

	t.Run("ipv6 udp", func(t *testing.T) {
		info, err := ParsePacket(udp6Packet(t, "fd00::10", "2001:db8::53", 40000, 53))
		require.NoError(t, err)
		assert.Equal(t, "fd00::10", info.SrcIP.String())
		assert.Equal(t, uint16(53), info.DstPort)
		assert.Equal(t, uint8(layers.IPProtocolUDP), info.Protocol)
	})

	t.Run("non ip", func(t *testing.T) {
		eth := &layers.Ethernet{SrcMAC: lanMAC, DstMAC: gwMAC, EthernetType: layers.EthernetTypeARP}
		arp := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   lanMAC,
			SourceProtAddress: []byte{192, 168, 1, 10},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{192, 168, 1, 1},
		}
		buf := gopacket.NewSerializeBuffer()
		require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, arp))
		packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)

		_, err := ParsePacket(packet)
		assert.ErrorIs(t, err, ErrUnsupportedPacket)
	})
}

func TestCollector(t *testing.T) {
	c, err := NewCollector([]string{"192.168.0.0/16"})
	require.NoError(t, err)

	parse := func(p gopacket.Packet) *PacketInfo {
		info, err := ParsePacket(p)
		require.NoError(t, err)
		return info
	}
	out := parse(tcpPacket(t, lanMAC, gwMAC, "192.168.1.10", "93.184.216.34", 51000, 443, 100))
	back := parse(tcpPacket(t, gwMAC, lanMAC, "93.184.216.34", "192.168.1.10", 443, 51000, 1000))

	c.Add(out)
	c.Add(out)
	c.Add(back)
	assert.Equal(t, 2, c.Len())

	msg := c.Flush(time.Unix(1714564800, 0))
	require.NotNil(t, msg)
	assert.Equal(t, model.TrafficCommand, msg.Command)
	assert.Equal(t, int64(1714564800), *msg.Result.Timestamp)
	assert.Equal(t, int64(3), msg.Result.TotalCount)
	assert.Equal(t, int64(2*out.Length+back.Length), msg.Result.TotalSize)
	require.Len(t, msg.Result.Flows, 2)

	// Only the LAN side carries a MAC.
	first := msg.Result.Flows[0]
	assert.Equal(t, lanMAC.String(), first.From.MAC)
	assert.Empty(t, first.To.MAC)
	assert.Equal(t, []string{"93.184.216.34"}, *first.To.IPs)
	assert.Equal(t, []string{}, *first.To.Domains)
	assert.Equal(t, int64(2), *first.Count)
	assert.Equal(t, 6, first.Protocol)

	second := msg.Result.Flows[1]
	assert.Empty(t, second.From.MAC)
	assert.Equal(t, lanMAC.String(), second.To.MAC)

	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Flush(time.Now()))
}

func TestNewCollector_InvalidNetwork(t *testing.T) {
	_, err := NewCollector([]string{"not-a-cidr"})
	assert.Error(t, err)
}

func TestTrafficHandler(t *testing.T) {
	m := metrics.New()
	table := flowtable.New()
	handle := TrafficHandler(table, m)

	handle([]byte(`{"command":"ping","argument":""}`))
	handle([]byte(`{"command":"traffic","result":{"timestamp":1,"flows":[{"from":{"ips":[]}}]}}`))
	handle([]byte(`not json`))
	assert.Equal(t, 0, table.Len())

	handle([]byte(`{"command":"traffic","argument":"","result":{"timestamp":100,"total_size":500,"total_count":2,"flows":[
		{"from":{"mac":"AA","ips":["192.168.1.10"],"domains":[]},"to":{"ips":["10.0.0.5"],"domains":[]},"from_port":443,"to_port":80,"size":500,"count":2}]}}`))
	handle([]byte(`{"command":"traffic","argument":"","result":{"timestamp":160,"total_size":1500,"total_count":3,"flows":[
		{"from":{"ips":["10.0.0.5"],"domains":[]},"to":{"mac":"AA","ips":["192.168.1.10"],"domains":[]},"from_port":80,"to_port":443,"size":1500,"count":3}]}}`))

	require.Equal(t, 1, table.Len())
	flow := table.Snapshot()[0]
	assert.Equal(t, int64(1500), flow.SizeIn)
	assert.Equal(t, int64(500), flow.SizeOut)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues(metrics.ResultTraffic)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues(metrics.ResultIgnored)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues(metrics.ResultMalformed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlowsIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlowsMerged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TableFlows))
}

func TestCollectorMessage_DecodesIntoOneFlow(t *testing.T) {
	c, err := NewCollector([]string{"192.168.0.0/16"})
	require.NoError(t, err)

	for _, p := range []gopacket.Packet{
		tcpPacket(t, lanMAC, gwMAC, "192.168.1.10", "93.184.216.34", 51000, 443, 10),
		tcpPacket(t, gwMAC, lanMAC, "93.184.216.34", "192.168.1.10", 443, 51000, 500),
	} {
		info, err := ParsePacket(p)
		require.NoError(t, err)
		c.Add(info)
	}

	data, err := json.Marshal(c.Flush(time.Unix(200, 0)))
	require.NoError(t, err)

	table := flowtable.New()
	TrafficHandler(table, metrics.New())(data)
	require.Equal(t, 1, table.Len())

	flow := table.Snapshot()[0]
	assert.Equal(t, lanMAC.String(), flow.From.MAC)
	assert.Equal(t, 51000, flow.FromPort)
	assert.Equal(t, 443, flow.ToPort)
	assert.Equal(t, int64(1), flow.CountOut)
	assert.Equal(t, int64(1), flow.CountIn)
	assert.Equal(t, int64(200), flow.Timestamp)
}
