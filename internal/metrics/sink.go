// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"github.com/tsdasari9/firewall/internal/engine"
)

// Sink counts dispatcher events.
type Sink struct {
	r *Registry
}

// NewSink returns an engine.EventSink that updates r.
func NewSink(r *Registry) *Sink {
	return &Sink{r: r}
}

func (s *Sink) Record(ev engine.Event) {
	if ev.Stage == engine.StageVerdict {
		action := engine.ActionDropped
		if ev.Allowed {
			action = engine.ActionForwarded
		}
		s.r.Packets.WithLabelValues(action.String(), string(ev.Reason)).Inc()
		s.r.Bytes.WithLabelValues(action.String()).Add(float64(ev.Frame.Length))
		return
	}

	verdict := "deny"
	if ev.Allowed {
		verdict = "pass"
	}
	s.r.StageDecisions.WithLabelValues(ev.Stage.String(), verdict).Inc()
}

// CaptureError counts one capture or verdict failure.
func (s *Sink) CaptureError() {
	s.r.CaptureErrors.Inc()
}
