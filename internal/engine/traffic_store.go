// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/tsdasari9/firewall/internal/clock"
)

// Option configures a windowed policy engine.
type Option func(*storeConfig)

type storeConfig struct {
	clock      clock.Clock
	maxEntries int
}

// WithClock sets the time source used for window arithmetic.
func WithClock(c clock.Clock) Option {
	return func(cfg *storeConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithMaxEntries bounds the number of tracked keys. The least recently used
// key is forgotten once the bound is hit, and starts a fresh window if it
// shows up again. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(cfg *storeConfig) {
		if n > 0 {
			cfg.maxEntries = n
		}
	}
}

func buildStoreConfig(opts []Option) storeConfig {
	cfg := storeConfig{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type windowEntry[S any] struct {
	start time.Time
	state S
}

// windowStore holds per-address state that resets to its zero value once
// more than window has elapsed since the window opened. Callers serialize
// access.
type windowStore[S any] struct {
	window  time.Duration
	clock   clock.Clock
	entries *lru.Cache
	evicted uint64
}

func newWindowStore[S any](window time.Duration, cfg storeConfig) *windowStore[S] {
	s := &windowStore[S]{
		window:  window,
		clock:   cfg.clock,
		entries: lru.New(cfg.maxEntries),
	}
	s.entries.OnEvicted = func(lru.Key, interface{}) { s.evicted++ }
	return s
}

// current returns key's entry for the window containing now, opening or
// resetting it as needed.
func (s *windowStore[S]) current(key netip.Addr) *windowEntry[S] {
	now := s.clock.Now()
	if v, ok := s.entries.Get(key); ok {
		e := v.(*windowEntry[S])
		if now.Sub(e.start) > s.window {
			var zero S
			e.start = now
			e.state = zero
		}
		return e
	}
	e := &windowEntry[S]{start: now}
	s.entries.Add(key, e)
	return e
}

// lookup returns key's entry without opening a window. An expired entry
// reports as absent.
func (s *windowStore[S]) lookup(key netip.Addr) (*windowEntry[S], bool) {
	v, ok := s.entries.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(*windowEntry[S])
	if s.clock.Since(e.start) > s.window {
		return nil, false
	}
	return e, true
}

func (s *windowStore[S]) len() int {
	return s.entries.Len()
}
