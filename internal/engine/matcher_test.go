// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/testutil"
)

func TestFrameDecoder_TCP(t *testing.T) {
	raw := testutil.TCPv4(t, testutil.TCPOptions{
		Src: "10.0.0.5", Dst: "93.184.216.34", SrcPort: 40000, DstPort: 22, SYN: true,
		Payload: []byte("hello"),
	})

	f, err := NewFrameDecoder(layers.LinkTypeRaw).Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", f.Src.String())
	assert.Equal(t, "93.184.216.34", f.Dst.String())
	assert.Equal(t, TransportTCP, f.Transport)
	assert.Equal(t, uint16(40000), f.SrcPort)
	assert.Equal(t, uint16(22), f.DstPort)
	assert.True(t, f.SYN)
	assert.True(t, f.SYNFlagged())
	assert.Equal(t, len(raw), f.Length)
	assert.Equal(t, 20+20+5, f.Length)
}

func TestFrameDecoder_SYNACKIsSYNFlagged(t *testing.T) {
	raw := testutil.TCPv4(t, testutil.TCPOptions{Src: "10.0.0.5", Dst: "10.0.0.6", SrcPort: 22, DstPort: 40000, SYN: true, ACK: true})
	f, err := NewFrameDecoder(layers.LinkTypeIPv4).Decode(raw)
	require.NoError(t, err)
	assert.True(t, f.SYN)
	assert.True(t, f.ACK)
	assert.True(t, f.SYNFlagged())

	ack := testutil.TCPv4(t, testutil.TCPOptions{Src: "10.0.0.5", Dst: "10.0.0.6", SrcPort: 22, DstPort: 40000, ACK: true})
	f, err = NewFrameDecoder(layers.LinkTypeIPv4).Decode(ack)
	require.NoError(t, err)
	assert.False(t, f.SYNFlagged())
}

func TestFrameDecoder_UDP(t *testing.T) {
	raw := testutil.UDPv4(t, "10.0.0.5", "8.8.8.8", 5353, 53, []byte{1, 2, 3})
	f, err := NewFrameDecoder(layers.LinkTypeRaw).Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TransportUDP, f.Transport)
	assert.Equal(t, uint16(53), f.DstPort)
	assert.False(t, f.SYN)
	assert.True(t, f.HasPorts())
}

func TestFrameDecoder_ICMPHasNoPorts(t *testing.T) {
	raw := testutil.ICMPv4(t, "10.0.0.5", "10.0.0.1")
	f, err := NewFrameDecoder(layers.LinkTypeRaw).Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TransportOther, f.Transport)
	assert.Equal(t, layers.IPProtocolICMPv4, f.Protocol)
	assert.False(t, f.HasPorts())
	assert.Equal(t, NoPort, f.port())
}

func TestFrameDecoder_Ethernet(t *testing.T) {
	ip := testutil.TCPv4(t, testutil.TCPOptions{Src: "10.0.0.5", Dst: "10.0.0.6", SrcPort: 1234, DstPort: 443})
	f, err := NewFrameDecoder(layers.LinkTypeEthernet).Decode(testutil.Ethernet(t, ip))
	require.NoError(t, err)
	assert.Equal(t, uint16(443), f.DstPort)
	// Ethernet padding must not leak into the length.
	assert.Equal(t, len(ip), f.Length)
}

func TestFrameDecoder_VLAN(t *testing.T) {
	ip := testutil.UDPv4(t, "10.0.0.5", "10.0.0.6", 1000, 2000, nil)
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeDot1Q,
		},
		&layers.Dot1Q{VLANIdentifier: 42, Type: layers.EthernetTypeIPv4},
		gopacket.Payload(ip),
	)
	require.NoError(t, err)

	f, err := NewFrameDecoder(layers.LinkTypeEthernet).Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint16(2000), f.DstPort)
}

func TestFrameDecoder_Malformed(t *testing.T) {
	tcp := testutil.TCPv4(t, testutil.TCPOptions{Src: "10.0.0.5", Dst: "10.0.0.6", SrcPort: 1, DstPort: 2})

	tests := []struct {
		name string
		link layers.LinkType
		data []byte
	}{
		{"empty", layers.LinkTypeRaw, nil},
		{"garbage", layers.LinkTypeRaw, []byte{0xde, 0xad, 0xbe, 0xef}},
		{"ipv6 version nibble", layers.LinkTypeRaw, append([]byte{0x60}, make([]byte, 39)...)},
		{"short ipv4 header", layers.LinkTypeRaw, tcp[:12]},
		{"truncated tcp header", layers.LinkTypeRaw, truncateTransport(tcp, 20+8)},
		{"arp", layers.LinkTypeEthernet, testutil.ARP(t)},
		{"short ethernet", layers.LinkTypeEthernet, []byte{1, 2, 3}},
		{"unsupported link", layers.LinkTypeIEEE802_11, tcp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameDecoder(tt.link).Decode(tt.data)
			require.Error(t, err)
			assert.Equal(t, errors.KindMalformed, errors.GetKind(err))
		})
	}
}

// fragment builds a non-first IPv4 fragment carrying 64 bytes of proto data.
func fragment(t *testing.T, proto layers.IPProtocol) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:    4,
		IHL:        5,
		TTL:        64,
		Protocol:   proto,
		FragOffset: 185,
		SrcIP:      net.IPv4(10, 0, 0, 5).To4(),
		DstIP:      net.IPv4(10, 0, 0, 6).To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		ip, gopacket.Payload(make([]byte, 64))))
	return buf.Bytes()
}

func TestFrameDecoder_NonInitialFragment(t *testing.T) {
	tests := []struct {
		proto     layers.IPProtocol
		transport Transport
	}{
		{layers.IPProtocolTCP, TransportTCP},
		{layers.IPProtocolUDP, TransportUDP},
	}
	for _, tt := range tests {
		t.Run(tt.transport.String(), func(t *testing.T) {
			f, err := NewFrameDecoder(layers.LinkTypeRaw).Decode(fragment(t, tt.proto))
			require.NoError(t, err)
			assert.True(t, f.Fragment)
			assert.Equal(t, tt.transport, f.Transport)
			assert.False(t, f.HasPorts())
			assert.False(t, f.SYNFlagged())
			assert.Equal(t, 20+64, f.Length)
		})
	}
}

// truncateTransport cuts an IPv4 packet to n bytes and patches the total
// length so only the transport header is short.
func truncateTransport(pkt []byte, n int) []byte {
	out := append([]byte(nil), pkt[:n]...)
	out[2] = byte(n >> 8)
	out[3] = byte(n)
	return out
}
