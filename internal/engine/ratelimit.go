// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"sync"
	"time"
)

// Usage is a key's consumption in its current window.
type Usage struct {
	WindowStart time.Time `json:"window_start"`
	Used        uint64    `json:"used"`
}

// RateLimiter admits at most a fixed number of requests per source address
// in each window. Windows are fixed, not sliding: a new one opens on the
// first request after the previous one has fully elapsed.
type RateLimiter struct {
	mu      sync.Mutex
	allowed uint64
	window  time.Duration
	store   *windowStore[uint64]
}

func NewRateLimiter(allowed uint64, window time.Duration, opts ...Option) *RateLimiter {
	return &RateLimiter{
		allowed: allowed,
		window:  window,
		store:   newWindowStore[uint64](window, buildStoreConfig(opts)),
	}
}

// AllowRequest counts a request from addr and reports whether it is within
// the limit. Rejected requests are not counted.
func (r *RateLimiter) AllowRequest(addr netip.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.store.current(addr.Unmap())
	if e.state < r.allowed {
		e.state++
		return true
	}
	return false
}

// Usage returns addr's request count in its live window.
func (r *RateLimiter) Usage(addr netip.Addr) (Usage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.store.lookup(addr.Unmap())
	if !ok {
		return Usage{}, false
	}
	return Usage{WindowStart: e.start, Used: e.state}, true
}

// Len is the number of tracked sources, including ones whose window has
// lapsed but not yet been reset.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.len()
}

func (r *RateLimiter) Limit() uint64         { return r.allowed }
func (r *RateLimiter) Window() time.Duration { return r.window }
