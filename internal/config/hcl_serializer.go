// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// GenerateHCL renders cfg as firewall.hcl source. Unset optional values are
// omitted.
func GenerateHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	setString(body, "schema_version", cfg.SchemaVersion)
	setString(body, "public_address", cfg.PublicAddress)
	setString(body, "public_interface", cfg.PublicInterface)

	if cc := cfg.Capture; cc != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("capture", nil).Body()
		setString(b, "source", cc.Source)
		setString(b, "interface", cc.Interface)
		setInt(b, "queue", cc.Queue)
		setString(b, "hook", cc.Hook)
		setBool(b, "install_queue_rule", cc.InstallQueueRule)
		setBool(b, "fail_open", cc.FailOpen)
		setString(b, "file", cc.File)
		setString(b, "drop_pcap", cc.DropPCAP)
		setInt(b, "snaplen", cc.Snaplen)
	}

	if n := cfg.NAT; n != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("nat", nil).Body()
		setInt(b, "port_base", n.PortBase)
	}

	if r := cfg.RateLimit; r != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("rate_limit", nil).Body()
		setBoolPtr(b, "enabled", r.Enabled)
		setInt(b, "requests", r.Requests)
		setString(b, "window", r.Window)
		setInt(b, "max_sources", r.MaxSources)
	}

	if t := cfg.TrafficShaping; t != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("traffic_shaping", nil).Body()
		setBoolPtr(b, "enabled", t.Enabled)
		setString(b, "byte_budget", t.ByteBudget)
		setString(b, "window", t.Window)
		setInt(b, "max_destinations", t.MaxDestinations)
	}

	if i := cfg.Intrusion; i != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("intrusion_detection", nil).Body()
		setBoolPtr(b, "enabled", i.Enabled)
		setInt(b, "syn_threshold", i.SYNThreshold)
		setInt(b, "port_scan_threshold", i.PortScanThreshold)
		setString(b, "window", i.Window)
		setInt(b, "max_sources", i.MaxSources)
	}

	for _, rule := range cfg.ACL {
		body.AppendNewline()
		b := body.AppendNewBlock("acl", []string{rule.Address}).Body()
		ports := make([]cty.Value, 0, len(rule.Ports))
		for _, p := range rule.Ports {
			ports = append(ports, cty.NumberIntVal(int64(p)))
		}
		if len(ports) == 0 {
			b.SetAttributeValue("ports", cty.ListValEmpty(cty.Number))
		} else {
			b.SetAttributeValue("ports", cty.ListVal(ports))
		}
	}

	if l := cfg.Logging; l != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("logging", nil).Body()
		setString(b, "level", l.Level)
		setBool(b, "json", l.JSON)
		if s := l.Syslog; s != nil {
			sb := b.AppendNewBlock("syslog", nil).Body()
			setBool(sb, "enabled", s.Enabled)
			setString(sb, "host", s.Host)
			setInt(sb, "port", s.Port)
			setString(sb, "protocol", s.Protocol)
			setString(sb, "tag", s.Tag)
			setInt(sb, "facility", s.Facility)
		}
	}

	if a := cfg.API; a != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("api", nil).Body()
		setBoolPtr(b, "enabled", a.Enabled)
		setString(b, "listen", a.Listen)
	}

	return f.Bytes()
}

func setString(b *hclwrite.Body, name, v string) {
	if v != "" {
		b.SetAttributeValue(name, cty.StringVal(v))
	}
}

func setInt(b *hclwrite.Body, name string, v int) {
	if v != 0 {
		b.SetAttributeValue(name, cty.NumberIntVal(int64(v)))
	}
}

func setBool(b *hclwrite.Body, name string, v bool) {
	if v {
		b.SetAttributeValue(name, cty.True)
	}
}

func setBoolPtr(b *hclwrite.Body, name string, v *bool) {
	if v != nil {
		b.SetAttributeValue(name, cty.BoolVal(*v))
	}
}
