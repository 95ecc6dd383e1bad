// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package capture

import (
	"context"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/gopacket/gopacket/layers"
	"github.com/mdlayher/packet"
	"golang.org/x/sys/unix"

	"github.com/tsdasari9/firewall/internal/errors"
)

// pollInterval bounds how long a read blocks before the context is checked.
const pollInterval = 250 * time.Millisecond

// AFPacketSource reads every Ethernet frame seen on one interface through a
// raw AF_PACKET socket. It only observes traffic; verdicts are not applied.
type AFPacketSource struct {
	conn   *packet.Conn
	ifname string
	buf    []byte
	closed atomic.Bool
}

// OpenAFPacket binds a raw socket to ifname. Frames longer than snaplen are
// truncated.
func OpenAFPacket(ifname string, snaplen int) (*AFPacketSource, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindNotFound, "interface %s", ifname)
	}

	conn, err := packet.Listen(ifi, packet.Raw, unix.ETH_P_ALL, nil)
	if err != nil {
		kind := errors.KindUnavailable
		if os.IsPermission(err) {
			kind = errors.KindPermission
		}
		return nil, errors.Wrapf(err, kind, "open packet socket on %s", ifname)
	}

	if snaplen <= 0 {
		snaplen = 65535
	}
	return &AFPacketSource{conn: conn, ifname: ifname, buf: make([]byte, snaplen)}, nil
}

func (s *AFPacketSource) Next(ctx context.Context) (Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Packet{}, err
		}
		if s.closed.Load() {
			return Packet{}, ErrClosed
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return Packet{}, s.readError(err)
		}
		n, _, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return Packet{}, s.readError(err)
		}

		data := make([]byte, n)
		copy(data, s.buf[:n])
		return Packet{Data: data, Timestamp: time.Now()}, nil
	}
}

func (s *AFPacketSource) readError(err error) error {
	if s.closed.Load() || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return errors.Wrapf(err, errors.KindUnavailable, "read from %s", s.ifname)
}

func (s *AFPacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

// Stats returns the kernel's receive and drop counters for the socket.
func (s *AFPacketSource) Stats() (received, dropped uint32, err error) {
	st, err := s.conn.Stats()
	if err != nil {
		return 0, 0, err
	}
	return st.Packets, st.Drops, nil
}

func (s *AFPacketSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}
