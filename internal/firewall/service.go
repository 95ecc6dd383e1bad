// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall wires a capture source to the decision pipeline and runs
// the dispatch loop.
package firewall

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/tsdasari9/firewall/internal/capture"
	"github.com/tsdasari9/firewall/internal/clock"
	"github.com/tsdasari9/firewall/internal/engine"
	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/logging"
)

const (
	minBackoff = 10 * time.Millisecond
	maxBackoff = time.Second
)

// Stats counts what the dispatch loop has done.
type Stats struct {
	Received      uint64 `json:"received"`
	Forwarded     uint64 `json:"forwarded"`
	Dropped       uint64 `json:"dropped"`
	Malformed     uint64 `json:"malformed"`
	Bytes         uint64 `json:"bytes"`
	CaptureErrors uint64 `json:"capture_errors"`
	DropsRecorded uint64 `json:"drops_recorded"`
}

type counters struct {
	received, forwarded, dropped, malformed atomic.Uint64
	bytes, captureErrors, dropsRecorded     atomic.Uint64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSinks adds dispatcher event sinks.
func WithSinks(sinks ...engine.EventSink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// WithDropWriter records every dropped frame to w.
func WithDropWriter(w *capture.PCAPWriter) Option {
	return func(s *Service) { s.drops = w }
}

// WithReplayClock drives c from packet timestamps so windows follow capture
// time instead of wall time. The policies must have been built on c.
func WithReplayClock(c *clock.MockClock) Option {
	return func(s *Service) { s.replay = c }
}

// WithErrorHook is called once for every capture or verdict error.
func WithErrorHook(fn func()) Option {
	return func(s *Service) { s.onError = fn }
}

// Service runs frames from one source through the dispatcher.
type Service struct {
	source     capture.Source
	verdicter  capture.Verdicter
	dispatcher *engine.Dispatcher
	sinks      []engine.EventSink
	drops      *capture.PCAPWriter
	replay     *clock.MockClock
	logger     *logging.Logger
	onError    func()
	stats      counters
	running    atomic.Bool
}

// New creates a service reading from src. If src can apply verdicts, every
// decision is handed back to it.
func New(src capture.Source, p *engine.Policies, opts ...Option) (*Service, error) {
	s := &Service{source: src}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("firewall")
	}
	s.verdicter = verdicterOf(src)

	dopts := make([]engine.DispatcherOption, 0, len(s.sinks)+1)
	for _, sink := range s.sinks {
		dopts = append(dopts, engine.WithSink(sink))
	}
	if s.replay != nil {
		dopts = append(dopts, engine.WithEventClock(s.replay))
	}
	d, err := engine.NewDispatcher(p, src.LinkType(), dopts...)
	if err != nil {
		return nil, err
	}
	s.dispatcher = d
	return s, nil
}

// Name returns the service name.
func (s *Service) Name() string {
	return "Firewall"
}

// IsRunning reports whether Run is active.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

func (s *Service) Dispatcher() *engine.Dispatcher {
	return s.dispatcher
}

// Run reads and dispatches frames until the context is cancelled or the
// source ends. Read errors are retried with capped exponential backoff.
// A source that ends or closes is not an error.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New(errors.KindInternal, "service already running")
	}
	defer s.running.Store(false)

	s.logger.Info("Dispatch loop started", "link", s.source.LinkType().String(), "inline", s.verdicter != nil)
	defer func() {
		st := s.Stats()
		s.logger.Info("Dispatch loop stopped", "received", st.Received, "forwarded", st.Forwarded, "dropped", st.Dropped)
	}()

	backoff := minBackoff
	for {
		pkt, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, capture.ErrClosed) {
				return nil
			}
			s.captureError()
			s.logger.Warn("Capture read failed", "error", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff
		s.handle(pkt)
	}
}

func (s *Service) handle(pkt capture.Packet) engine.Outcome {
	if s.replay != nil && pkt.Timestamp.After(s.replay.Now()) {
		s.replay.Set(pkt.Timestamp)
	}

	out := s.dispatcher.Handle(pkt.Data)

	s.stats.received.Add(1)
	s.stats.bytes.Add(uint64(out.Frame.Length))
	switch {
	case out.Forwarded():
		s.stats.forwarded.Add(1)
	case out.Reason == engine.ReasonMalformed:
		s.stats.malformed.Add(1)
		s.stats.dropped.Add(1)
	default:
		s.stats.dropped.Add(1)
	}

	if s.verdicter != nil {
		if err := s.verdicter.SetVerdict(pkt, out.Forwarded()); err != nil {
			s.captureError()
			s.logger.Warn("Failed to apply verdict", "verdict", out.String(), "error", err)
		}
	}

	if !out.Forwarded() && s.drops != nil {
		if err := s.drops.WritePacket(pkt); err != nil {
			s.logger.Debug("Failed to record dropped frame", "error", err)
		} else {
			s.stats.dropsRecorded.Add(1)
		}
	}
	return out
}

func (s *Service) captureError() {
	s.stats.captureErrors.Add(1)
	if s.onError != nil {
		s.onError()
	}
}

// Stats returns a snapshot of the loop counters.
func (s *Service) Stats() Stats {
	return Stats{
		Received:      s.stats.received.Load(),
		Forwarded:     s.stats.forwarded.Load(),
		Dropped:       s.stats.dropped.Load(),
		Malformed:     s.stats.malformed.Load(),
		Bytes:         s.stats.bytes.Load(),
		CaptureErrors: s.stats.captureErrors.Load(),
		DropsRecorded: s.stats.dropsRecorded.Load(),
	}
}

// verdicterOf finds a Verdicter on src or on the source it wraps.
func verdicterOf(src capture.Source) capture.Verdicter {
	for {
		if v, ok := src.(capture.Verdicter); ok {
			return v
		}
		u, ok := src.(interface{ Unwrap() capture.Source })
		if !ok {
			return nil
		}
		src = u.Unwrap()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
