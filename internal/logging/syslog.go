// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !windows && !plan9

package logging

import (
	"fmt"
	"log/syslog"
	"net"
	"strconv"
)

// SyslogConfig configures remote syslog forwarding.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // udp or tcp
	Tag      string
	Facility int // syslog facility code, 1 = user
}

// DefaultSyslogConfig returns the disabled-by-default syslog settings.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Port:     514,
		Protocol: "udp",
		Tag:      "firewall",
		Facility: 1,
	}
}

// SyslogWriter sends log lines to a syslog server. Plain writes go out at
// info severity; WriteLevel picks the severity from the record level.
type SyslogWriter struct {
	w *syslog.Writer
}

// NewSyslogWriter dials the configured syslog server. Zero fields take the
// values from DefaultSyslogConfig, so facility 0 (kern) cannot be selected.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	def := DefaultSyslogConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.Protocol == "" {
		cfg.Protocol = def.Protocol
	}
	if cfg.Tag == "" {
		cfg.Tag = def.Tag
	}
	if cfg.Facility == 0 {
		cfg.Facility = def.Facility
	}
	if cfg.Facility < 0 || cfg.Facility > 23 {
		return nil, fmt.Errorf("syslog facility %d out of range", cfg.Facility)
	}

	priority := syslog.Priority(cfg.Facility<<3) | syslog.LOG_INFO
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	w, err := syslog.Dial(cfg.Protocol, addr, priority, cfg.Tag)
	if err != nil {
		return nil, fmt.Errorf("dial syslog %s/%s: %w", cfg.Protocol, addr, err)
	}
	return &SyslogWriter{w: w}, nil
}

func (s *SyslogWriter) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

// WriteLevel sends msg with the syslog severity matching level.
func (s *SyslogWriter) WriteLevel(level Level, msg []byte) error {
	m := string(msg)
	switch {
	case level >= LevelError:
		return s.w.Err(m)
	case level >= LevelWarn:
		return s.w.Warning(m)
	case level >= LevelInfo:
		return s.w.Info(m)
	default:
		return s.w.Debug(m)
	}
}

func (s *SyslogWriter) Close() error {
	return s.w.Close()
}
