// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package capture

import (
	"context"

	"github.com/gopacket/gopacket/layers"

	"github.com/tsdasari9/firewall/internal/errors"
)

// AFPacketSource is a stub for non-Linux systems.
type AFPacketSource struct{}

// OpenAFPacket returns an error on non-Linux systems.
func OpenAFPacket(ifname string, snaplen int) (*AFPacketSource, error) {
	return nil, errors.New(errors.KindUnavailable, "afpacket capture is only supported on Linux")
}

func (s *AFPacketSource) Next(ctx context.Context) (Packet, error) { return Packet{}, ErrClosed }
func (s *AFPacketSource) LinkType() layers.LinkType               { return layers.LinkTypeEthernet }
func (s *AFPacketSource) Stats() (uint32, uint32, error)          { return 0, 0, nil }
func (s *AFPacketSource) Close() error                            { return nil }
