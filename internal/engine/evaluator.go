// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
)

// Action is the final fate of a frame.
type Action uint8

const (
	ActionDropped Action = iota
	ActionForwarded
)

func (a Action) String() string {
	if a == ActionForwarded {
		return "forwarded"
	}
	return "dropped"
}

// Reason explains an Outcome. Policy denials are reasons, not errors.
type Reason string

const (
	ReasonAllowed           Reason = "allowed"
	ReasonNonTransport      Reason = "non_transport"
	ReasonMalformed         Reason = "malformed_packet"
	ReasonIntrusion         Reason = "intrusion"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonTrafficShaped     Reason = "traffic_shaped"
	ReasonACLBlocked        Reason = "acl_blocked"
	ReasonFragment          Reason = "fragment"
	ReasonResourceExhausted Reason = "resource_exhausted"
)

// Outcome is the dispatcher's decision for one frame.
type Outcome struct {
	Action Action
	Reason Reason
	// Frame is the zero value when the buffer did not parse.
	Frame Frame
	// Translation is the public endpoint the frame's source maps to. It is
	// only valid when the frame was forwarded through NAT.
	Translation netip.AddrPort
	// NewMapping is set when this frame created the NAT mapping.
	NewMapping bool
	// Err is set for malformed frames and resource exhaustion.
	Err error
}

// Forwarded reports whether the frame should be passed on.
func (o Outcome) Forwarded() bool {
	return o.Action == ActionForwarded
}

func (o Outcome) String() string {
	if o.Action == ActionForwarded {
		return "forwarded"
	}
	return "dropped(" + string(o.Reason) + ")"
}

func forwarded(f Frame, reason Reason) Outcome {
	return Outcome{Action: ActionForwarded, Reason: reason, Frame: f}
}

func dropped(f Frame, reason Reason, err error) Outcome {
	return Outcome{Action: ActionDropped, Reason: reason, Frame: f, Err: err}
}
