// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tsdasari9/firewall/internal/logging"
)

// ValidationError is one problem with one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem Validate finds.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a config that has had defaults applied.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.SchemaVersion != CurrentSchemaVersion {
		errs.add("schema_version", "unsupported version %q (want %q)", c.SchemaVersion, CurrentSchemaVersion)
	}

	c.validateAddressing(&errs)
	c.validateCapture(&errs)
	c.validatePolicies(&errs)
	c.validateACL(&errs)
	c.validateLogging(&errs)

	if c.API.IsEnabled() {
		if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
			errs.add("api.listen", "invalid listen address %q: %v", c.API.Listen, err)
		}
	}

	return errs
}

func (c *Config) validateAddressing(errs *ValidationErrors) {
	switch {
	case c.PublicAddress != "" && c.PublicInterface != "":
		errs.add("public_address", "public_address and public_interface are mutually exclusive")
	case c.PublicAddress != "":
		addr, err := c.PublicAddr()
		if err != nil || !addr.Unmap().Is4() {
			errs.add("public_address", "%q is not an IPv4 address", c.PublicAddress)
		}
	case c.PublicInterface == "":
		errs.add("public_address", "one of public_address or public_interface is required")
	}

	if c.NAT.PortBase < 1 || c.NAT.PortBase > 65535 {
		errs.add("nat.port_base", "must be between 1 and 65535, got %d", c.NAT.PortBase)
	}
}

func (c *Config) validateCapture(errs *ValidationErrors) {
	cc := c.Capture
	switch cc.Source {
	case SourceAFPacket:
		if cc.Interface == "" {
			errs.add("capture.interface", "required for afpacket capture")
		}
	case SourceNFQueue:
		if cc.Queue < 0 || cc.Queue > 65535 {
			errs.add("capture.queue", "must be between 0 and 65535, got %d", cc.Queue)
		}
		if cc.Hook != "forward" && cc.Hook != "input" {
			errs.add("capture.hook", "must be forward or input, got %q", cc.Hook)
		}
	case SourcePCAP:
		if cc.File == "" {
			errs.add("capture.file", "required for pcap capture")
		}
	default:
		errs.add("capture.source", "unknown source %q (want afpacket, nfqueue or pcap)", cc.Source)
	}
	if cc.Snaplen < 64 || cc.Snaplen > 262144 {
		errs.add("capture.snaplen", "must be between 64 and 262144, got %d", cc.Snaplen)
	}
}

func (c *Config) validatePolicies(errs *ValidationErrors) {
	if c.RateLimit.IsEnabled() {
		if c.RateLimit.Requests < 1 {
			errs.add("rate_limit.requests", "must be positive, got %d", c.RateLimit.Requests)
		}
		checkWindow(errs, "rate_limit.window", c.RateLimit.Window)
		checkBound(errs, "rate_limit.max_sources", c.RateLimit.MaxSources)
	}

	if c.TrafficShaping.IsEnabled() {
		if b, err := c.TrafficShaping.Budget(); err != nil {
			errs.add("traffic_shaping.byte_budget", "invalid size %q: %v", c.TrafficShaping.ByteBudget, err)
		} else if b == 0 {
			errs.add("traffic_shaping.byte_budget", "must be positive")
		}
		checkWindow(errs, "traffic_shaping.window", c.TrafficShaping.Window)
		checkBound(errs, "traffic_shaping.max_destinations", c.TrafficShaping.MaxDestinations)
	}

	if c.Intrusion.IsEnabled() {
		if c.Intrusion.SYNThreshold < 0 {
			errs.add("intrusion_detection.syn_threshold", "must not be negative")
		}
		if c.Intrusion.PortScanThreshold < 0 || c.Intrusion.PortScanThreshold > 65536 {
			errs.add("intrusion_detection.port_scan_threshold", "must be between 0 and 65536")
		}
		checkWindow(errs, "intrusion_detection.window", c.Intrusion.Window)
		checkBound(errs, "intrusion_detection.max_sources", c.Intrusion.MaxSources)
	}
}

func (c *Config) validateACL(errs *ValidationErrors) {
	for i, rule := range c.ACL {
		field := fmt.Sprintf("acl[%d]", i)
		addr, err := rule.Addr()
		if err != nil || !addr.Unmap().Is4() {
			errs.add(field, "%q is not an IPv4 address", rule.Address)
		}
		for _, p := range rule.Ports {
			if p < 1 || p > 65535 {
				errs.add(field+".ports", "port %d out of range", p)
			}
		}
	}
}

func (c *Config) validateLogging(errs *ValidationErrors) {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs.add("logging.level", "%v", err)
	}
	if s := c.Logging.Syslog; s != nil && s.Enabled {
		if s.Host == "" {
			errs.add("logging.syslog.host", "required when syslog is enabled")
		}
		if s.Protocol != "" && s.Protocol != "udp" && s.Protocol != "tcp" {
			errs.add("logging.syslog.protocol", "must be udp or tcp, got %q", s.Protocol)
		}
		if s.Facility < 0 || s.Facility > 23 {
			errs.add("logging.syslog.facility", "must be between 0 and 23, got %d", s.Facility)
		}
	}
}

func checkWindow(errs *ValidationErrors, field, s string) {
	d, err := time.ParseDuration(s)
	if err != nil {
		errs.add(field, "invalid duration %q: %v", s, err)
		return
	}
	if d <= 0 {
		errs.add(field, "must be positive, got %s", d)
	}
}

func checkBound(errs *ValidationErrors, field string, n int) {
	if n < 0 {
		errs.add(field, "must not be negative, got %d", n)
	}
}
