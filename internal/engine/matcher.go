// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"fmt"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/tsdasari9/firewall/internal/errors"
)

// NoPort is passed to port-aware checks when the frame carries no transport
// ports.
const NoPort = -1

// Transport is the transport protocol carried by a frame.
type Transport uint8

const (
	TransportOther Transport = iota
	TransportTCP
	TransportUDP
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	default:
		return "other"
	}
}

// Frame is one parsed IPv4 packet with the transport fields the policy
// engines look at. It lives for a single dispatch.
type Frame struct {
	Src       netip.Addr
	Dst       netip.Addr
	Protocol  layers.IPProtocol
	Transport Transport
	SrcPort   uint16
	DstPort   uint16
	// SYN and ACK are only ever set for TCP.
	SYN    bool
	ACK    bool
	Length int
	// Fragment is set for a non-first fragment of a TCP or UDP datagram.
	// Such a frame has no transport header, so its ports are unknown.
	Fragment bool
}

// HasPorts reports whether the frame carries a TCP or UDP header.
func (f Frame) HasPorts() bool {
	return !f.Fragment && (f.Transport == TransportTCP || f.Transport == TransportUDP)
}

// Source is the frame's source endpoint. The port is zero without a
// transport header.
func (f Frame) Source() netip.AddrPort {
	return netip.AddrPortFrom(f.Src, f.SrcPort)
}

// Destination is the frame's destination endpoint.
func (f Frame) Destination() netip.AddrPort {
	return netip.AddrPortFrom(f.Dst, f.DstPort)
}

// SYNFlagged reports a TCP segment with the SYN flag set, SYN-ACK included.
func (f Frame) SYNFlagged() bool {
	return f.Transport == TransportTCP && f.SYN
}

func (f Frame) port() int {
	if !f.HasPorts() {
		return NoPort
	}
	return int(f.DstPort)
}

func (f Frame) String() string {
	if f.HasPorts() {
		return fmt.Sprintf("%s %s -> %s (%d bytes)", f.Transport, f.Source(), f.Destination(), f.Length)
	}
	return fmt.Sprintf("proto %d %s -> %s (%d bytes)", f.Protocol, f.Src, f.Dst, f.Length)
}

// FrameDecoder parses raw capture buffers into Frames. It reuses its layer
// structs between calls and is not safe for concurrent use.
type FrameDecoder struct {
	link  layers.LinkType
	eth   layers.Ethernet
	dot1q layers.Dot1Q
	ip4   layers.IPv4
	tcp   layers.TCP
	udp   layers.UDP
}

// NewFrameDecoder returns a decoder for buffers of the given link type.
// Ethernet, raw IP and IPv4 link types are supported.
func NewFrameDecoder(link layers.LinkType) *FrameDecoder {
	return &FrameDecoder{link: link}
}

// LinkType returns the link type the decoder expects.
func (d *FrameDecoder) LinkType() layers.LinkType {
	return d.link
}

// Decode parses data. Every failure is a KindMalformed error.
func (d *FrameDecoder) Decode(data []byte) (Frame, error) {
	var payload []byte
	switch d.link {
	case layers.LinkTypeEthernet:
		p, err := d.stripEthernet(data)
		if err != nil {
			return Frame{}, err
		}
		payload = p
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		payload = data
	default:
		return Frame{}, errors.Errorf(errors.KindMalformed, "unsupported link type %s", d.link)
	}

	if len(payload) == 0 || payload[0]>>4 != 4 {
		return Frame{}, errors.New(errors.KindMalformed, "not an IPv4 packet")
	}
	if err := d.ip4.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return Frame{}, errors.Wrap(err, errors.KindMalformed, "decode ipv4 header")
	}

	src, _ := netip.AddrFromSlice(d.ip4.SrcIP.To4())
	dst, _ := netip.AddrFromSlice(d.ip4.DstIP.To4())
	f := Frame{
		Src:      src,
		Dst:      dst,
		Protocol: d.ip4.Protocol,
		Length:   int(d.ip4.Length),
	}

	switch d.ip4.Protocol {
	case layers.IPProtocolTCP:
		f.Transport = TransportTCP
		if d.ip4.FragOffset != 0 {
			f.Fragment = true
			return f, nil
		}
		if err := d.tcp.DecodeFromBytes(d.ip4.Payload, gopacket.NilDecodeFeedback); err != nil {
			return Frame{}, errors.Wrap(err, errors.KindMalformed, "decode tcp header")
		}
		f.SrcPort = uint16(d.tcp.SrcPort)
		f.DstPort = uint16(d.tcp.DstPort)
		f.SYN = d.tcp.SYN
		f.ACK = d.tcp.ACK
	case layers.IPProtocolUDP:
		f.Transport = TransportUDP
		if d.ip4.FragOffset != 0 {
			f.Fragment = true
			return f, nil
		}
		if err := d.udp.DecodeFromBytes(d.ip4.Payload, gopacket.NilDecodeFeedback); err != nil {
			return Frame{}, errors.Wrap(err, errors.KindMalformed, "decode udp header")
		}
		f.SrcPort = uint16(d.udp.SrcPort)
		f.DstPort = uint16(d.udp.DstPort)
	}

	return f, nil
}

func (d *FrameDecoder) stripEthernet(data []byte) ([]byte, error) {
	if err := d.eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, errors.Wrap(err, errors.KindMalformed, "decode ethernet header")
	}
	etype, payload := d.eth.EthernetType, d.eth.Payload
	if etype == layers.EthernetTypeDot1Q {
		if err := d.dot1q.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return nil, errors.Wrap(err, errors.KindMalformed, "decode 802.1q tag")
		}
		etype, payload = d.dot1q.Type, d.dot1q.Payload
	}
	if etype != layers.EthernetTypeIPv4 {
		return nil, errors.Errorf(errors.KindMalformed, "not an IPv4 frame (ethertype %s)", etype)
	}
	return payload, nil
}
