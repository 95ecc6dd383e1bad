// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package capture

import (
	"context"

	"github.com/gopacket/gopacket/layers"

	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/logging"
)

const DefaultBacklog = 1024

// NFQueueOptions configures an NFQueueSource.
type NFQueueOptions struct {
	Queue    uint16
	Backlog  int
	FailOpen bool
	Logger   *logging.Logger
}

// NFQueueSource is a stub for non-Linux systems.
type NFQueueSource struct{}

// NFQueueStats holds counters for the queue source.
type NFQueueStats struct {
	BacklogDrops  uint64 `json:"backlog_drops"`
	VerdictErrors uint64 `json:"verdict_errors"`
}

// OpenNFQueue returns an error on non-Linux systems.
func OpenNFQueue(opts NFQueueOptions) (*NFQueueSource, error) {
	return nil, errors.New(errors.KindUnavailable, "nfqueue is only supported on Linux")
}

func (s *NFQueueSource) Next(ctx context.Context) (Packet, error)  { return Packet{}, ErrClosed }
func (s *NFQueueSource) SetVerdict(p Packet, forward bool) error   { return ErrClosed }
func (s *NFQueueSource) LinkType() layers.LinkType                 { return layers.LinkTypeRaw }
func (s *NFQueueSource) Stats() NFQueueStats                       { return NFQueueStats{} }
func (s *NFQueueSource) Close() error                              { return nil }
