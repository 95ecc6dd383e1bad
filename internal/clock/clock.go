// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock abstracts time so window arithmetic can run on wall time in
// production and on capture time during replay.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// MockClock is a manually driven Clock. The zero value reads as the zero time.
type MockClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewMockClock returns a MockClock frozen at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *MockClock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Set moves the clock to t. Moving backwards is allowed; replayed captures
// are not always strictly ordered.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

var (
	mu  sync.RWMutex
	std Clock = RealClock{}
)

// Default returns the process-wide clock.
func Default() Clock {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// SetDefault swaps the process-wide clock. Passing nil restores RealClock.
func SetDefault(c Clock) {
	if c == nil {
		c = RealClock{}
	}
	mu.Lock()
	std = c
	mu.Unlock()
}

// Now reads the process-wide clock.
func Now() time.Time {
	return Default().Now()
}

// Since is the time elapsed on the process-wide clock.
func Since(t time.Time) time.Duration {
	return Default().Since(t)
}
