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

func TestTrafficShaper_Budget(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	ts := NewTrafficShaper(1000, time.Minute, WithClock(clk))
	dst := netip.MustParseAddr("93.184.216.34")

	assert.True(t, ts.CheckTraffic(dst, 400))
	assert.True(t, ts.CheckTraffic(dst, 600))
	assert.False(t, ts.CheckTraffic(dst, 1), "budget is exactly consumed")

	clk.Advance(time.Minute + time.Second)
	assert.True(t, ts.CheckTraffic(dst, 1000), "full budget after the window elapses")
}

func TestTrafficShaper_RejectedPacketConsumesNothing(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	ts := NewTrafficShaper(1000, time.Minute, WithClock(clk))
	dst := netip.MustParseAddr("93.184.216.34")

	require.True(t, ts.CheckTraffic(dst, 900))
	assert.False(t, ts.CheckTraffic(dst, 200))
	assert.True(t, ts.CheckTraffic(dst, 100))

	u, ok := ts.Usage(dst)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), u.Used)
}

func TestTrafficShaper_OversizedPacket(t *testing.T) {
	ts := NewTrafficShaper(100, time.Minute)
	dst := netip.MustParseAddr("93.184.216.34")

	assert.False(t, ts.CheckTraffic(dst, 101))
	assert.True(t, ts.CheckTraffic(dst, 100))
}

func TestTrafficShaper_PerDestination(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	ts := NewTrafficShaper(100, time.Minute, WithClock(clk))
	a := netip.MustParseAddr("198.51.100.1")
	b := netip.MustParseAddr("198.51.100.2")

	assert.True(t, ts.CheckTraffic(a, 100))
	assert.False(t, ts.CheckTraffic(a, 1))
	assert.True(t, ts.CheckTraffic(b, 100))
	assert.Equal(t, 2, ts.Len())
}
