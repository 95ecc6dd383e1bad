// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"github.com/gopacket/gopacket/layers"

	"github.com/tsdasari9/firewall/internal/clock"
	"github.com/tsdasari9/firewall/internal/errors"
)

// Stage identifies a step of the decision pipeline.
type Stage uint8

const (
	StageParse Stage = iota
	StageIntrusion
	StageRateLimit
	StageShaping
	StageTranslate
	StageACL
	StageVerdict
)

func (s Stage) String() string {
	switch s {
	case StageParse:
		return "parse"
	case StageIntrusion:
		return "intrusion"
	case StageRateLimit:
		return "rate_limit"
	case StageShaping:
		return "traffic_shaping"
	case StageTranslate:
		return "nat"
	case StageACL:
		return "acl"
	case StageVerdict:
		return "verdict"
	default:
		return "unknown"
	}
}

// Policies is the state the dispatcher threads through every stage. A nil
// Intrusion, RateLimit or Shaper disables that stage. NAT and ACL are
// required.
type Policies struct {
	Intrusion *IntrusionDetector
	RateLimit *RateLimiter
	Shaper    *TrafficShaper
	NAT       *AddressTranslator
	ACL       *AccessControlList
}

// Validate checks that the mandatory engines are present.
func (p *Policies) Validate() error {
	if p == nil {
		return errors.New(errors.KindValidation, "policies are required")
	}
	if p.NAT == nil {
		return errors.New(errors.KindValidation, "address translator is required")
	}
	if p.ACL == nil {
		return errors.New(errors.KindValidation, "access control list is required")
	}
	return nil
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSink adds an event sink. Sinks run in registration order.
func WithSink(s EventSink) DispatcherOption {
	return func(d *Dispatcher) {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
}

// WithEventClock sets the clock used to stamp events.
func WithEventClock(c clock.Clock) DispatcherOption {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// Dispatcher runs each frame through intrusion detection, rate limiting,
// traffic shaping, address translation and the access control list, in
// that order, stopping at the first denial. It handles one frame at a time.
type Dispatcher struct {
	policies *Policies
	decoder  *FrameDecoder
	clock    clock.Clock
	sinks    []EventSink
}

// NewDispatcher returns a dispatcher for buffers of the given link type.
func NewDispatcher(p *Policies, link layers.LinkType, opts ...DispatcherOption) (*Dispatcher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		policies: p,
		decoder:  NewFrameDecoder(link),
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Dispatcher) Policies() *Policies {
	return d.policies
}

// Handle decodes a raw buffer and decides its fate.
func (d *Dispatcher) Handle(data []byte) Outcome {
	f, err := d.decoder.Decode(data)
	if err != nil {
		d.emit(Event{Stage: StageParse, Reason: ReasonMalformed, Err: err})
		return d.finish(dropped(Frame{}, ReasonMalformed, err))
	}
	return d.HandleFrame(f)
}

// HandleFrame decides the fate of an already decoded frame.
func (d *Dispatcher) HandleFrame(f Frame) Outcome {
	p := d.policies

	if p.Intrusion != nil {
		if p.Intrusion.IsIntrusion(f.Src, f.port(), f.SYNFlagged()) {
			return d.deny(f, StageIntrusion, ReasonIntrusion)
		}
		d.pass(f, StageIntrusion)
	}

	if p.RateLimit != nil {
		if !p.RateLimit.AllowRequest(f.Src) {
			return d.deny(f, StageRateLimit, ReasonRateLimited)
		}
		d.pass(f, StageRateLimit)
	}

	if p.Shaper != nil {
		if !p.Shaper.CheckTraffic(f.Dst, f.Length) {
			return d.deny(f, StageShaping, ReasonTrafficShaped)
		}
		d.pass(f, StageShaping)
	}

	// Rules are per port, so a fragment without its header cannot match one.
	if f.Fragment {
		return d.deny(f, StageACL, ReasonFragment)
	}
	if !f.HasPorts() {
		return d.finish(forwarded(f, ReasonNonTransport))
	}

	// The mapping is only recorded once the ACL has allowed the frame.
	plan, err := p.NAT.Plan(f.Source())
	if err != nil {
		if !p.ACL.IsAllowed(f.Src, f.DstPort) {
			return d.deny(f, StageACL, ReasonACLBlocked)
		}
		d.emit(Event{Stage: StageTranslate, Reason: ReasonResourceExhausted, Frame: f, Err: err})
		return d.finish(dropped(f, ReasonResourceExhausted, err))
	}
	d.emit(Event{Stage: StageTranslate, Allowed: true, Frame: f, Translation: plan.Public, NewMapping: plan.New})

	if !p.ACL.IsAllowed(f.Src, f.DstPort) {
		return d.deny(f, StageACL, ReasonACLBlocked)
	}
	d.pass(f, StageACL)

	committed, err := p.NAT.Commit(plan)
	if err != nil {
		return d.finish(dropped(f, ReasonResourceExhausted, err))
	}
	out := forwarded(f, ReasonAllowed)
	out.Translation = committed.Public
	out.NewMapping = committed.New
	return d.finish(out)
}

func (d *Dispatcher) pass(f Frame, stage Stage) {
	d.emit(Event{Stage: stage, Allowed: true, Frame: f})
}

func (d *Dispatcher) deny(f Frame, stage Stage, reason Reason) Outcome {
	d.emit(Event{Stage: stage, Reason: reason, Frame: f})
	return d.finish(dropped(f, reason, nil))
}

func (d *Dispatcher) finish(out Outcome) Outcome {
	d.emit(Event{
		Stage:       StageVerdict,
		Allowed:     out.Forwarded(),
		Reason:      out.Reason,
		Frame:       out.Frame,
		Translation: out.Translation,
		NewMapping:  out.NewMapping,
		Err:         out.Err,
	})
	return out
}

func (d *Dispatcher) emit(ev Event) {
	if len(d.sinks) == 0 {
		return
	}
	ev.Time = d.clock.Now()
	for _, s := range d.sinks {
		s.Record(ev)
	}
}
