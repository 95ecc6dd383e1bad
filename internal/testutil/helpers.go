// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package testutil holds helpers shared by package tests.
package testutil

import (
	"net"
	"os"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// RequirePrivileged skips the test unless FIREWALL_PRIVILEGED_TEST is set.
// Tests behind it open raw sockets, NFQUEUE handles or nftables tables and
// need CAP_NET_ADMIN.
func RequirePrivileged(t *testing.T) {
	t.Helper()
	if os.Getenv("FIREWALL_PRIVILEGED_TEST") == "" {
		t.Skip("Skipping test: requires FIREWALL_PRIVILEGED_TEST environment")
	}
}

// TCPOptions describes a TCP segment to build.
type TCPOptions struct {
	Src, Dst         string
	SrcPort, DstPort uint16
	SYN, ACK         bool
	Payload          []byte
}

// TCPv4 builds a raw IPv4/TCP packet.
func TCPv4(t testing.TB, o TCPOptions) []byte {
	t.Helper()
	ip := ipv4(o.Src, o.Dst, layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(o.SrcPort),
		DstPort: layers.TCPPort(o.DstPort),
		SYN:     o.SYN,
		ACK:     o.ACK,
		Seq:     1000,
		Window:  64240,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("set checksum layer: %v", err)
	}
	return serialize(t, ip, tcp, gopacket.Payload(o.Payload))
}

// UDPv4 builds a raw IPv4/UDP packet.
func UDPv4(t testing.TB, src, dst string, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("set checksum layer: %v", err)
	}
	return serialize(t, ip, udp, gopacket.Payload(payload))
}

// ICMPv4 builds a raw IPv4 echo request.
func ICMPv4(t testing.TB, src, dst string) []byte {
	t.Helper()
	ip := ipv4(src, dst, layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	return serialize(t, ip, icmp, gopacket.Payload([]byte("ping")))
}

// Ethernet prepends an Ethernet II header carrying IPv4.
func Ethernet(t testing.TB, ipPacket []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	return serialize(t, eth, gopacket.Payload(ipPacket))
}

// ARP builds an Ethernet ARP request, which is not IPv4.
func ARP(t testing.TB) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(eth.SrcMAC),
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return serialize(t, eth, arp)
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("serialize packet: %v", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}
