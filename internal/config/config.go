// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config defines the firewall's configuration file and its loaders.
package config

import (
	"net/netip"
	"time"

	"github.com/dustin/go-humanize"
)

// CurrentSchemaVersion is the only schema version this build understands.
const CurrentSchemaVersion = "1.0"

// Capture sources.
const (
	SourceAFPacket = "afpacket"
	SourceNFQueue  = "nfqueue"
	SourcePCAP     = "pcap"
)

// Config is the root of firewall.hcl.
type Config struct {
	// Schema version for backward compatibility.
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty" yaml:"schema_version,omitempty"`

	// Address every NAT mapping is allocated on.
	// @default: "203.0.113.1"
	PublicAddress string `hcl:"public_address,optional" json:"public_address,omitempty" yaml:"public_address,omitempty"`
	// Interface to read the public address from instead of PublicAddress.
	// @example: "eth1"
	PublicInterface string `hcl:"public_interface,optional" json:"public_interface,omitempty" yaml:"public_interface,omitempty"`

	Capture        *CaptureConfig        `hcl:"capture,block" json:"capture,omitempty" yaml:"capture,omitempty"`
	NAT            *NATConfig            `hcl:"nat,block" json:"nat,omitempty" yaml:"nat,omitempty"`
	RateLimit      *RateLimitConfig      `hcl:"rate_limit,block" json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	TrafficShaping *TrafficShapingConfig `hcl:"traffic_shaping,block" json:"traffic_shaping,omitempty" yaml:"traffic_shaping,omitempty"`
	Intrusion      *IntrusionConfig      `hcl:"intrusion_detection,block" json:"intrusion_detection,omitempty" yaml:"intrusion_detection,omitempty"`
	ACL            []ACLRule             `hcl:"acl,block" json:"acl,omitempty" yaml:"acl,omitempty"`
	Logging        *LoggingConfig        `hcl:"logging,block" json:"logging,omitempty" yaml:"logging,omitempty"`
	API            *APIConfig            `hcl:"api,block" json:"api,omitempty" yaml:"api,omitempty"`
}

// CaptureConfig selects where frames come from.
type CaptureConfig struct {
	// @enum: afpacket, nfqueue, pcap
	// @default: "afpacket"
	Source string `hcl:"source,optional" json:"source,omitempty" yaml:"source,omitempty"`
	// Interface for afpacket capture.
	// @default: "eth0"
	Interface string `hcl:"interface,optional" json:"interface,omitempty" yaml:"interface,omitempty"`
	// NFQUEUE number for inline mode.
	// @default: 100
	Queue int `hcl:"queue,optional" json:"queue,omitempty" yaml:"queue,omitempty"`
	// nftables hook the queue rule attaches to.
	// @enum: forward, input
	// @default: "forward"
	Hook string `hcl:"hook,optional" json:"hook,omitempty" yaml:"hook,omitempty"`
	// Install the nftables rule that steers traffic into the queue.
	InstallQueueRule bool `hcl:"install_queue_rule,optional" json:"install_queue_rule,omitempty" yaml:"install_queue_rule,omitempty"`
	// Let traffic through when nothing is listening on the queue.
	FailOpen bool `hcl:"fail_open,optional" json:"fail_open,omitempty" yaml:"fail_open,omitempty"`
	// Capture file for the pcap source.
	File string `hcl:"file,optional" json:"file,omitempty" yaml:"file,omitempty"`
	// Where dropped frames are written, if anywhere.
	DropPCAP string `hcl:"drop_pcap,optional" json:"drop_pcap,omitempty" yaml:"drop_pcap,omitempty"`
	// @default: 65535
	Snaplen int `hcl:"snaplen,optional" json:"snaplen,omitempty" yaml:"snaplen,omitempty"`
}

// NATConfig configures source translation.
type NATConfig struct {
	// @default: 10000
	PortBase int `hcl:"port_base,optional" json:"port_base,omitempty" yaml:"port_base,omitempty"`
}

// RateLimitConfig caps requests per source.
type RateLimitConfig struct {
	// @default: true
	Enabled *bool `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// @default: 100
	Requests int `hcl:"requests,optional" json:"requests,omitempty" yaml:"requests,omitempty"`
	// @default: "60s"
	Window string `hcl:"window,optional" json:"window,omitempty" yaml:"window,omitempty"`
	// Tracked sources before the least recently seen is forgotten. 0 is unbounded.
	MaxSources int `hcl:"max_sources,optional" json:"max_sources,omitempty" yaml:"max_sources,omitempty"`
}

// TrafficShapingConfig caps bytes per destination.
type TrafficShapingConfig struct {
	// @default: true
	Enabled *bool `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Human readable size, e.g. "10 MiB".
	// @default: "10 MiB"
	ByteBudget string `hcl:"byte_budget,optional" json:"byte_budget,omitempty" yaml:"byte_budget,omitempty"`
	// @default: "60s"
	Window          string `hcl:"window,optional" json:"window,omitempty" yaml:"window,omitempty"`
	MaxDestinations int    `hcl:"max_destinations,optional" json:"max_destinations,omitempty" yaml:"max_destinations,omitempty"`
}

// IntrusionConfig sets the scan and flood thresholds.
type IntrusionConfig struct {
	// @default: true
	Enabled *bool `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// @default: 100
	SYNThreshold int `hcl:"syn_threshold,optional" json:"syn_threshold,omitempty" yaml:"syn_threshold,omitempty"`
	// @default: 100
	PortScanThreshold int `hcl:"port_scan_threshold,optional" json:"port_scan_threshold,omitempty" yaml:"port_scan_threshold,omitempty"`
	// @default: "60s"
	Window     string `hcl:"window,optional" json:"window,omitempty" yaml:"window,omitempty"`
	MaxSources int    `hcl:"max_sources,optional" json:"max_sources,omitempty" yaml:"max_sources,omitempty"`
}

// ACLRule lists the destination ports one source may reach. Later rules for
// the same address replace earlier ones.
type ACLRule struct {
	Address string `hcl:"address,label" json:"address" yaml:"address"`
	Ports   []int  `hcl:"ports" json:"ports" yaml:"ports"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// @enum: debug, info, warn, error
	// @default: "info"
	Level  string        `hcl:"level,optional" json:"level,omitempty" yaml:"level,omitempty"`
	JSON   bool          `hcl:"json,optional" json:"json,omitempty" yaml:"json,omitempty"`
	Syslog *SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty" yaml:"syslog,omitempty"`
}

// SyslogConfig forwards logs to a remote syslog server.
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Host     string `hcl:"host,optional" json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `hcl:"port,optional" json:"port,omitempty" yaml:"port,omitempty"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Tag      string `hcl:"tag,optional" json:"tag,omitempty" yaml:"tag,omitempty"`
	// Facility is the syslog facility code. 0 (kern) is not accepted and
	// means user (1).
	// @default: 1
	Facility int    `hcl:"facility,optional" json:"facility,omitempty" yaml:"facility,omitempty"`
}

// APIConfig configures the read-only status API.
type APIConfig struct {
	// @default: true
	Enabled *bool `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// @default: "127.0.0.1:8080"
	Listen string `hcl:"listen,optional" json:"listen,omitempty" yaml:"listen,omitempty"`
}

// Default returns a config with every default applied and no ACL rules.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Example is Default plus a sample ACL rule, used by `config init`.
func Example() *Config {
	c := Default()
	c.ACL = []ACLRule{{Address: "192.168.1.100", Ports: []int{22, 443}}}
	return c
}

// ApplyDefaults fills every unset field. Zero numeric values count as unset.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.PublicAddress == "" && c.PublicInterface == "" {
		c.PublicAddress = "203.0.113.1"
	}

	if c.Capture == nil {
		c.Capture = &CaptureConfig{}
	}
	setDefault(&c.Capture.Source, SourceAFPacket)
	setDefault(&c.Capture.Interface, "eth0")
	setDefault(&c.Capture.Hook, "forward")
	setDefault(&c.Capture.Queue, 100)
	setDefault(&c.Capture.Snaplen, 65535)

	if c.NAT == nil {
		c.NAT = &NATConfig{}
	}
	setDefault(&c.NAT.PortBase, 10000)

	if c.RateLimit == nil {
		c.RateLimit = &RateLimitConfig{}
	}
	setDefault(&c.RateLimit.Requests, 100)
	setDefault(&c.RateLimit.Window, "60s")

	if c.TrafficShaping == nil {
		c.TrafficShaping = &TrafficShapingConfig{}
	}
	setDefault(&c.TrafficShaping.ByteBudget, "10 MiB")
	setDefault(&c.TrafficShaping.Window, "60s")

	if c.Intrusion == nil {
		c.Intrusion = &IntrusionConfig{}
	}
	setDefault(&c.Intrusion.SYNThreshold, 100)
	setDefault(&c.Intrusion.PortScanThreshold, 100)
	setDefault(&c.Intrusion.Window, "60s")

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	setDefault(&c.Logging.Level, "info")
	if sl := c.Logging.Syslog; sl != nil {
		setDefault(&sl.Port, 514)
		setDefault(&sl.Protocol, "udp")
		setDefault(&sl.Tag, "firewall")
		setDefault(&sl.Facility, 1)
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	setDefault(&c.API.Listen, "127.0.0.1:8080")
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// IsEnabled reports whether the stage runs. Unset means enabled.
func (r *RateLimitConfig) IsEnabled() bool      { return r != nil && enabled(r.Enabled) }
func (t *TrafficShapingConfig) IsEnabled() bool { return t != nil && enabled(t.Enabled) }
func (i *IntrusionConfig) IsEnabled() bool      { return i != nil && enabled(i.Enabled) }
func (a *APIConfig) IsEnabled() bool            { return a != nil && enabled(a.Enabled) && a.Listen != "" }

func (r *RateLimitConfig) WindowDuration() (time.Duration, error)      { return time.ParseDuration(r.Window) }
func (t *TrafficShapingConfig) WindowDuration() (time.Duration, error) { return time.ParseDuration(t.Window) }
func (i *IntrusionConfig) WindowDuration() (time.Duration, error)      { return time.ParseDuration(i.Window) }

// Budget parses ByteBudget. Both SI ("10 MB") and IEC ("10 MiB") units are
// accepted.
func (t *TrafficShapingConfig) Budget() (uint64, error) {
	return humanize.ParseBytes(t.ByteBudget)
}

// PublicAddr parses PublicAddress.
func (c *Config) PublicAddr() (netip.Addr, error) {
	return netip.ParseAddr(c.PublicAddress)
}

// Addr parses the rule's source address.
func (r ACLRule) Addr() (netip.Addr, error) {
	return netip.ParseAddr(r.Address)
}

// PortList converts the configured ports. Call Validate first; out of range
// values are truncated.
func (r ACLRule) PortList() []uint16 {
	out := make([]uint16, 0, len(r.Ports))
	for _, p := range r.Ports {
		out = append(out, uint16(p))
	}
	return out
}
