// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package capture provides the frame sources the dispatch loop reads from:
// capture files, raw AF_PACKET sockets and NFQUEUE.
package capture

import (
	"context"
	"time"

	"github.com/gopacket/gopacket/layers"

	"github.com/tsdasari9/firewall/internal/errors"
)

// ErrClosed is returned by Next once a source has been closed.
var ErrClosed = errors.New(errors.KindUnavailable, "capture source closed")

// Packet is one captured frame.
type Packet struct {
	Data      []byte
	Timestamp time.Time
	// id is the kernel's handle for inline sources.
	id uint32
}

// Source yields captured frames. Next blocks until a frame arrives, the
// context is done, or the source ends. A capture file ends with io.EOF.
type Source interface {
	Next(ctx context.Context) (Packet, error)
	LinkType() layers.LinkType
	Close() error
}

// Verdicter is implemented by inline sources that hold each packet until
// told what to do with it.
type Verdicter interface {
	SetVerdict(p Packet, forward bool) error
}
