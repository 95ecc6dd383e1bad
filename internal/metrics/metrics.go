// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes dispatcher decisions and capture counters to
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tsdasari9/firewall/internal/engine"
)

const namespace = "firewall"

// Registry owns the firewall's collectors. Each Registry is independent so
// tests can create as many as they like.
type Registry struct {
	reg *prometheus.Registry

	Packets        *prometheus.CounterVec
	Bytes          *prometheus.CounterVec
	StageDecisions *prometheus.CounterVec
	CaptureErrors  prometheus.Counter
	SourceCounters *prometheus.GaugeVec
	SourceRates    *prometheus.GaugeVec
}

// NewRegistry creates a registry with the firewall collectors and the
// standard Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Packets handled, by final action and reason.",
		}, []string{"action", "reason"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "IPv4 bytes handled, by final action.",
		}, []string{"action"}),
		StageDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_decisions_total",
			Help:      "Decisions made by each pipeline stage.",
		}, []string{"stage", "verdict"}),
		CaptureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Errors returned while reading from the capture source or applying verdicts.",
		}),
		SourceCounters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_counter",
			Help:      "Counters reported by the capture source and kernel.",
		}, []string{"source", "counter"}),
		SourceRates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_counter_rate",
			Help:      "Per-second rate of each capture source counter.",
		}, []string{"source", "counter"}),
	}

	r.reg.MustRegister(
		r.Packets,
		r.Bytes,
		r.StageDecisions,
		r.CaptureErrors,
		r.SourceCounters,
		r.SourceRates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// WatchPolicies registers gauges that read live state from the engine on
// every scrape. Disabled stages are skipped.
func (r *Registry) WatchPolicies(p *engine.Policies) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nat_mappings",
			Help:      "Active NAT mappings.",
		}, func() float64 { return float64(p.NAT.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nat_ports_remaining",
			Help:      "Public ports still available for new NAT mappings.",
		}, func() float64 { return float64(p.NAT.Remaining()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "acl_rules",
			Help:      "Addresses with an access control rule.",
		}, func() float64 { return float64(p.ACL.Len()) }),
	}

	tracked := map[string]func() int{}
	if p.Intrusion != nil {
		tracked["intrusion"] = p.Intrusion.Len
	}
	if p.RateLimit != nil {
		tracked["rate_limit"] = p.RateLimit.Len
	}
	if p.Shaper != nil {
		tracked["traffic_shaping"] = p.Shaper.Len
	}
	for name, fn := range tracked {
		fn := fn
		gauges = append(gauges, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "tracked_keys",
			Help:        "Addresses with window state held by a stage.",
			ConstLabels: prometheus.Labels{"engine": name},
		}, func() float64 { return float64(fn()) }))
	}

	for _, g := range gauges {
		if err := r.reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}
