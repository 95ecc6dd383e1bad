// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package metrics

import (
	"github.com/tsdasari9/firewall/internal/errors"
)

// ConntrackProbe is unavailable on this platform.
type ConntrackProbe struct{}

// OpenConntrack always fails: conntrack is only reachable over Linux netlink.
func OpenConntrack() (*ConntrackProbe, error) {
	return nil, errors.New(errors.KindUnavailable, "conntrack not supported on this platform")
}

func (p *ConntrackProbe) Sample() (map[string]uint64, error) {
	return nil, errors.New(errors.KindUnavailable, "conntrack not supported on this platform")
}

func (p *ConntrackProbe) Close() error { return nil }
