// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"time"

	"github.com/tsdasari9/firewall/internal/logging"
)

// Event is one stage's decision about one frame. The dispatcher emits an
// event per stage it runs, then a final StageVerdict event carrying the
// outcome.
type Event struct {
	Time    time.Time
	Stage   Stage
	Allowed bool
	// Reason is set on denials and on the verdict.
	Reason      Reason
	Frame       Frame
	Translation netip.AddrPort
	NewMapping  bool
	Err         error
}

// EventSink receives decision events. Record is called synchronously on
// the dispatch path and must not block.
type EventSink interface {
	Record(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Record(ev Event) { f(ev) }

// LogSink writes decision events to a logger. Per-stage passes go to debug,
// denials to warn.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.WithComponent("dispatcher")
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ev Event) {
	switch {
	case ev.Stage == StageParse:
		s.logger.Debug("Dropped malformed frame", "error", ev.Err)
	case ev.Stage == StageVerdict:
		s.verdict(ev)
	case !ev.Allowed:
		s.logger.Warn("Stage denied packet", append(frameAttrs(ev.Frame), "stage", ev.Stage.String(), "reason", string(ev.Reason))...)
	case s.logger.Enabled(logging.LevelDebug):
		attrs := append(frameAttrs(ev.Frame), "stage", ev.Stage.String())
		if ev.Translation.IsValid() {
			attrs = append(attrs, "public", ev.Translation.String())
		}
		s.logger.Debug("Stage passed packet", attrs...)
	}
}

func (s *LogSink) verdict(ev Event) {
	attrs := frameAttrs(ev.Frame)
	if !ev.Allowed {
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
		}
		s.logger.Warn("Packet dropped", append(attrs, "reason", string(ev.Reason))...)
		return
	}
	if ev.NewMapping {
		s.logger.Info("NAT mapping created", "private", ev.Frame.Source().String(), "public", ev.Translation.String())
	}
	if ev.Reason == ReasonNonTransport {
		s.logger.Debug("Forwarded non-TCP/UDP packet", attrs...)
		return
	}
	s.logger.Info("Packet allowed", attrs...)
}

func frameAttrs(f Frame) []any {
	attrs := []any{"src", f.Src.String(), "dst", f.Dst.String(), "proto", f.Transport.String(), "bytes", f.Length}
	if f.HasPorts() {
		attrs = append(attrs, "src_port", f.SrcPort, "dst_port", f.DstPort)
	}
	if f.Fragment {
		attrs = append(attrs, "fragment", true)
	}
	return attrs
}
