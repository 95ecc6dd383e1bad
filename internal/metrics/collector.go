// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/tsdasari9/firewall/internal/clock"
	"github.com/tsdasari9/firewall/internal/logging"
)

// Probe reads a set of monotonically increasing counters from a source,
// such as the kernel's AF_PACKET drop count or the NFQUEUE rule counter.
type Probe func() (map[string]uint64, error)

// CounterStats is the last sample of one probed counter.
type CounterStats struct {
	Source  string  `json:"source"`
	Counter string  `json:"counter"`
	Value   uint64  `json:"value"`
	PerSec  float64 `json:"per_sec"`
	updated time.Time
}

// Collector polls registered probes and publishes their counters and rates.
type Collector struct {
	registry *Registry
	logger   *logging.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	probes     map[string]Probe
	stats      map[string]*CounterStats
	lastUpdate time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(registry *Registry, logger *logging.Logger, interval time.Duration) *Collector {
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}
	return &Collector{
		registry: registry,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		probes:   make(map[string]Probe),
		stats:    make(map[string]*CounterStats),
	}
}

// AddProbe registers a probe under a source name. Call before Start.
func (c *Collector) AddProbe(source string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[source] = p
}

// Start runs the collection loop until Stop is called.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect samples every probe once.
func (c *Collector) Collect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := clock.Now()
	for source, probe := range c.probes {
		values, err := probe()
		if err != nil {
			c.logger.Warn("Failed to collect source counters", "source", source, "error", err)
			continue
		}
		for name, v := range values {
			key := source + "/" + name
			st, ok := c.stats[key]
			if !ok {
				st = &CounterStats{Source: source, Counter: name}
				c.stats[key] = st
			} else {
				st.PerSec = c.calculateRate(v, st.Value, now.Sub(st.updated).Seconds())
			}
			st.Value = v
			st.updated = now

			c.registry.SourceCounters.WithLabelValues(source, name).Set(float64(v))
			c.registry.SourceRates.WithLabelValues(source, name).Set(st.PerSec)
		}
	}
	c.lastUpdate = now
}

// calculateRate computes the rate between two counter values, handling resets.
// If current < previous (counter reset), treats current as the delta from zero.
func (c *Collector) calculateRate(current, previous uint64, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}

	var delta uint64
	if current < previous {
		delta = current
		c.logger.Debug("Counter reset detected", "current", current, "previous", previous)
	} else {
		delta = current - previous
	}

	return float64(delta) / elapsedSeconds
}

// Stats returns the latest sample of every counter, ordered by source and
// counter name.
func (c *Collector) Stats() []CounterStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CounterStats, 0, len(c.stats))
	for _, st := range c.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Counter < out[j].Counter
	})
	return out
}

func (c *Collector) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
