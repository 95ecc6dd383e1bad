// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/florianl/go-nfqueue/v2"
	"github.com/gopacket/gopacket/layers"

	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/logging"
)

// DefaultBacklog is how many queued packets may wait for the dispatch loop.
const DefaultBacklog = 1024

// NFQueueOptions configures an NFQueueSource.
type NFQueueOptions struct {
	Queue uint16
	// Backlog bounds packets held between the kernel and the dispatch loop.
	// Packets arriving to a full backlog are dropped.
	Backlog int
	// FailOpen asks the kernel to accept packets when its own queue is full.
	FailOpen bool
	Logger   *logging.Logger
}

// NFQueueSource receives packets from an NFQUEUE and returns verdicts for
// them. Payloads start at the IPv4 header.
type NFQueueSource struct {
	nf      *nfqueue.Nfqueue
	queue   uint16
	packets chan Packet
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
	logger  *logging.Logger

	backlogDrops  atomic.Uint64
	verdictErrors atomic.Uint64
}

// NFQueueStats holds counters for the queue source.
type NFQueueStats struct {
	BacklogDrops  uint64 `json:"backlog_drops"`
	VerdictErrors uint64 `json:"verdict_errors"`
}

// OpenNFQueue binds to the queue and starts receiving.
func OpenNFQueue(opts NFQueueOptions) (*NFQueueSource, error) {
	if opts.Backlog <= 0 {
		opts.Backlog = DefaultBacklog
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("nfqueue")
	}

	cfg := nfqueue.Config{
		NfQueue:      opts.Queue,
		MaxPacketLen: 0xFFFF,
		MaxQueueLen:  uint32(opts.Backlog),
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 15 * time.Millisecond,
	}
	if opts.FailOpen {
		cfg.Flags = nfqueue.NfQaCfgFlagFailOpen
	}

	nf, err := nfqueue.Open(&cfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "open nfqueue %d", opts.Queue)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &NFQueueSource{
		nf:      nf,
		queue:   opts.Queue,
		packets: make(chan Packet, opts.Backlog),
		done:    make(chan struct{}),
		cancel:  cancel,
		logger:  opts.Logger,
	}

	if err := nf.RegisterWithErrorFunc(ctx, s.hook, s.onError); err != nil {
		cancel()
		nf.Close()
		return nil, errors.Wrapf(err, errors.KindUnavailable, "register nfqueue %d", opts.Queue)
	}

	s.logger.Info("NFQUEUE source started", "queue", opts.Queue, "backlog", opts.Backlog, "fail_open", opts.FailOpen)
	return s, nil
}

func (s *NFQueueSource) hook(a nfqueue.Attribute) int {
	if a.PacketID == nil {
		return 0
	}
	id := *a.PacketID

	var data []byte
	if a.Payload != nil {
		data = append([]byte(nil), (*a.Payload)...)
	}
	ts := time.Now()
	if a.Timestamp != nil {
		ts = *a.Timestamp
	}

	select {
	case s.packets <- Packet{Data: data, Timestamp: ts, id: id}:
	default:
		s.backlogDrops.Add(1)
		if err := s.nf.SetVerdict(id, nfqueue.NfDrop); err != nil {
			s.verdictErrors.Add(1)
		}
	}
	return 0
}

func (s *NFQueueSource) onError(e error) int {
	select {
	case <-s.done:
		return 1
	default:
	}
	s.logger.Warn("NFQUEUE receive error", "queue", s.queue, "error", e)
	return 0
}

func (s *NFQueueSource) Next(ctx context.Context) (Packet, error) {
	select {
	case p := <-s.packets:
		return p, nil
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-s.done:
		return Packet{}, ErrClosed
	}
}

// SetVerdict releases p back to the kernel, accepting or dropping it.
func (s *NFQueueSource) SetVerdict(p Packet, forward bool) error {
	verdict := nfqueue.NfDrop
	if forward {
		verdict = nfqueue.NfAccept
	}
	if err := s.nf.SetVerdict(p.id, verdict); err != nil {
		s.verdictErrors.Add(1)
		return errors.Wrapf(err, errors.KindUnavailable, "set verdict for packet %d", p.id)
	}
	return nil
}

func (s *NFQueueSource) LinkType() layers.LinkType {
	return layers.LinkTypeRaw
}

func (s *NFQueueSource) Stats() NFQueueStats {
	return NFQueueStats{
		BacklogDrops:  s.backlogDrops.Load(),
		VerdictErrors: s.verdictErrors.Load(),
	}
}

func (s *NFQueueSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		err = s.nf.Close()
	})
	return err
}
