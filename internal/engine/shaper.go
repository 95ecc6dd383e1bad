// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"sync"
	"time"
)

// TrafficShaper caps the bytes delivered to each destination address per
// window. It uses the same fixed-window discipline as RateLimiter.
type TrafficShaper struct {
	mu     sync.Mutex
	budget uint64
	window time.Duration
	store  *windowStore[uint64]
}

func NewTrafficShaper(budget uint64, window time.Duration, opts ...Option) *TrafficShaper {
	return &TrafficShaper{
		budget: budget,
		window: window,
		store:  newWindowStore[uint64](window, buildStoreConfig(opts)),
	}
}

// CheckTraffic charges size bytes to dst and reports whether they fit in
// the remaining budget. A packet that does not fit consumes nothing.
func (s *TrafficShaper) CheckTraffic(dst netip.Addr, size int) bool {
	if size < 0 {
		size = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.store.current(dst.Unmap())
	if uint64(size) <= s.budget-e.state {
		e.state += uint64(size)
		return true
	}
	return false
}

// Usage returns the bytes dst has consumed in its live window.
func (s *TrafficShaper) Usage(dst netip.Addr) (Usage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.lookup(dst.Unmap())
	if !ok {
		return Usage{}, false
	}
	return Usage{WindowStart: e.start, Used: e.state}, true
}

func (s *TrafficShaper) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.len()
}

func (s *TrafficShaper) Budget() uint64        { return s.budget }
func (s *TrafficShaper) Window() time.Duration { return s.window }
