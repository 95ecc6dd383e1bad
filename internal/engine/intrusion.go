// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"sync"
	"time"
)

type intrusionState struct {
	syns  uint64
	ports map[uint16]struct{}
}

// IntrusionReport is a source's evidence in its current window.
type IntrusionReport struct {
	WindowStart   time.Time `json:"window_start"`
	SYNs          uint64    `json:"syns"`
	DistinctPorts int       `json:"distinct_ports"`
}

// IntrusionDetector flags sources that look like a SYN flood or a port
// scan. Evidence accumulates per source for one fixed window. A zero
// threshold disables that signature.
type IntrusionDetector struct {
	mu            sync.Mutex
	synThreshold  uint64
	portThreshold int
	window        time.Duration
	store         *windowStore[intrusionState]
}

func NewIntrusionDetector(synThreshold uint64, portScanThreshold int, window time.Duration, opts ...Option) *IntrusionDetector {
	return &IntrusionDetector{
		synThreshold:  synThreshold,
		portThreshold: portScanThreshold,
		window:        window,
		store:         newWindowStore[intrusionState](window, buildStoreConfig(opts)),
	}
}

// IsIntrusion records one packet from src and reports whether src has now
// reached either threshold. port is NoPort for frames without one. Once
// flagged, src stays flagged until its window ends.
func (d *IntrusionDetector) IsIntrusion(src netip.Addr, port int, syn bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.store.current(src.Unmap())
	st := &e.state
	if syn {
		st.syns++
	}
	// The port set never grows past the threshold.
	if port >= 0 && port <= 0xFFFF && d.portThreshold > 0 && len(st.ports) < d.portThreshold {
		if st.ports == nil {
			st.ports = make(map[uint16]struct{})
		}
		st.ports[uint16(port)] = struct{}{}
	}

	if d.synThreshold > 0 && st.syns >= d.synThreshold {
		return true
	}
	return d.portThreshold > 0 && len(st.ports) >= d.portThreshold
}

// Report returns src's evidence in its live window.
func (d *IntrusionDetector) Report(src netip.Addr) (IntrusionReport, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.store.lookup(src.Unmap())
	if !ok {
		return IntrusionReport{}, false
	}
	return IntrusionReport{
		WindowStart:   e.start,
		SYNs:          e.state.syns,
		DistinctPorts: len(e.state.ports),
	}, true
}

func (d *IntrusionDetector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.len()
}

func (d *IntrusionDetector) Window() time.Duration { return d.window }
