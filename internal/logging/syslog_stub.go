// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows || plan9

package logging

import (
	"fmt"
)

// SyslogConfig configures remote syslog forwarding.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string
	Tag      string
	Facility int
}

func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{Port: 514, Protocol: "udp", Tag: "firewall", Facility: 1}
}

// SyslogWriter is unavailable on this platform.
type SyslogWriter struct{}

func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	return nil, fmt.Errorf("syslog not supported on this platform")
}

func (s *SyslogWriter) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("syslog not supported on this platform")
}

func (s *SyslogWriter) WriteLevel(level Level, msg []byte) error {
	return fmt.Errorf("syslog not supported on this platform")
}

func (s *SyslogWriter) Close() error { return nil }
