// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdasari9/firewall/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRateLimiter_WindowReset(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	rl := NewRateLimiter(3, 60*time.Second, WithClock(clk))
	ip := netip.MustParseAddr("10.0.0.5")

	assert.True(t, rl.AllowRequest(ip))
	assert.True(t, rl.AllowRequest(ip))
	assert.True(t, rl.AllowRequest(ip))
	assert.False(t, rl.AllowRequest(ip))

	clk.Advance(61 * time.Second)
	assert.True(t, rl.AllowRequest(ip))

	u, ok := rl.Usage(ip)
	require.True(t, ok)
	assert.Equal(t, uint64(1), u.Used)
	assert.Equal(t, epoch.Add(61*time.Second), u.WindowStart)
}

func TestRateLimiter_BoundaryIsInclusive(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	rl := NewRateLimiter(1, time.Minute, WithClock(clk))
	ip := netip.MustParseAddr("10.0.0.5")

	require.True(t, rl.AllowRequest(ip))
	clk.Advance(time.Minute)
	assert.False(t, rl.AllowRequest(ip), "window resets only once elapsed time exceeds it")

	clk.Advance(time.Nanosecond)
	assert.True(t, rl.AllowRequest(ip))
}

func TestRateLimiter_RejectionsDoNotCount(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	rl := NewRateLimiter(2, time.Minute, WithClock(clk))
	ip := netip.MustParseAddr("10.0.0.5")

	for i := 0; i < 10; i++ {
		rl.AllowRequest(ip)
	}
	u, ok := rl.Usage(ip)
	require.True(t, ok)
	assert.Equal(t, uint64(2), u.Used)
}

func TestRateLimiter_PerSource(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	rl := NewRateLimiter(1, time.Minute, WithClock(clk))
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")

	assert.True(t, rl.AllowRequest(a))
	assert.False(t, rl.AllowRequest(a))
	assert.True(t, rl.AllowRequest(b))
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_ZeroLimitRejectsAll(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	assert.False(t, rl.AllowRequest(netip.MustParseAddr("10.0.0.1")))
}

func TestRateLimiter_UsageExpires(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	rl := NewRateLimiter(5, time.Minute, WithClock(clk))
	ip := netip.MustParseAddr("10.0.0.5")

	_, ok := rl.Usage(ip)
	assert.False(t, ok)

	rl.AllowRequest(ip)
	clk.Advance(2 * time.Minute)
	_, ok = rl.Usage(ip)
	assert.False(t, ok)
}

func TestRateLimiter_MaxEntriesEvictsLeastRecent(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	rl := NewRateLimiter(1, time.Minute, WithClock(clk), WithMaxEntries(2))
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	c := netip.MustParseAddr("10.0.0.3")

	require.True(t, rl.AllowRequest(a))
	require.True(t, rl.AllowRequest(b))
	require.True(t, rl.AllowRequest(c))
	assert.Equal(t, 2, rl.Len())

	// a was evicted, so it starts a fresh window.
	assert.True(t, rl.AllowRequest(a))
	// c is still tracked and over its limit.
	assert.False(t, rl.AllowRequest(c))
}
