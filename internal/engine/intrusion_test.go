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

func TestIntrusion_SYNThreshold(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	ids := NewIntrusionDetector(5, 100, time.Minute, WithClock(clk))
	src := netip.MustParseAddr("198.51.100.7")

	got := make([]bool, 0, 6)
	for i := 0; i < 6; i++ {
		got = append(got, ids.IsIntrusion(src, 80, true))
	}
	assert.Equal(t, []bool{false, false, false, false, true, true}, got)

	clk.Advance(61 * time.Second)
	assert.False(t, ids.IsIntrusion(src, 80, true), "window reset clears evidence")
}

func TestIntrusion_PortScan(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	ids := NewIntrusionDetector(100, 3, time.Minute, WithClock(clk))
	src := netip.MustParseAddr("198.51.100.7")

	assert.False(t, ids.IsIntrusion(src, 22, false))
	assert.False(t, ids.IsIntrusion(src, 22, false), "repeat ports do not count")
	assert.False(t, ids.IsIntrusion(src, 23, false))
	assert.True(t, ids.IsIntrusion(src, 24, false))
	assert.True(t, ids.IsIntrusion(src, 22, false), "stays flagged within the window")

	r, ok := ids.Report(src)
	require.True(t, ok)
	assert.Equal(t, 3, r.DistinctPorts)
	assert.Equal(t, uint64(0), r.SYNs)
}

func TestIntrusion_NoPortAndNonSYN(t *testing.T) {
	ids := NewIntrusionDetector(1, 1, time.Minute)
	src := netip.MustParseAddr("198.51.100.7")

	for i := 0; i < 10; i++ {
		assert.False(t, ids.IsIntrusion(src, NoPort, false))
	}
	assert.True(t, ids.IsIntrusion(src, NoPort, true))
}

func TestIntrusion_ZeroThresholdDisablesSignature(t *testing.T) {
	ids := NewIntrusionDetector(0, 0, time.Minute)
	src := netip.MustParseAddr("198.51.100.7")

	for port := 1; port <= 50; port++ {
		assert.False(t, ids.IsIntrusion(src, port, true))
	}
	r, ok := ids.Report(src)
	require.True(t, ok)
	assert.Equal(t, 0, r.DistinctPorts)
	assert.Equal(t, uint64(50), r.SYNs)
}

func TestIntrusion_SourcesIndependent(t *testing.T) {
	ids := NewIntrusionDetector(2, 100, time.Minute)
	a := netip.MustParseAddr("198.51.100.1")
	b := netip.MustParseAddr("198.51.100.2")

	ids.IsIntrusion(a, 80, true)
	assert.True(t, ids.IsIntrusion(a, 80, true))
	assert.False(t, ids.IsIntrusion(b, 80, true))
	assert.Equal(t, 2, ids.Len())
}
