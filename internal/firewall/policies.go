// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"net/netip"

	"github.com/tsdasari9/firewall/internal/clock"
	"github.com/tsdasari9/firewall/internal/config"
	"github.com/tsdasari9/firewall/internal/engine"
	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/netutil"
)

// NewPolicies builds the pipeline stages from a validated config. Stages
// disabled in the config are left nil. ACL rules are applied in file order,
// so a later rule for the same address replaces an earlier one.
func NewPolicies(cfg *config.Config, clk clock.Clock) (*engine.Policies, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}

	public, err := publicAddress(cfg)
	if err != nil {
		return nil, err
	}
	nat, err := engine.NewAddressTranslator(public, engine.WithPortBase(uint16(cfg.NAT.PortBase)))
	if err != nil {
		return nil, err
	}

	p := &engine.Policies{NAT: nat, ACL: engine.NewAccessControlList()}

	if rl := cfg.RateLimit; rl.IsEnabled() {
		window, err := rl.WindowDuration()
		if err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "rate_limit.window")
		}
		p.RateLimit = engine.NewRateLimiter(uint64(rl.Requests), window,
			engine.WithClock(clk), engine.WithMaxEntries(rl.MaxSources))
	}

	if ts := cfg.TrafficShaping; ts.IsEnabled() {
		window, err := ts.WindowDuration()
		if err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "traffic_shaping.window")
		}
		budget, err := ts.Budget()
		if err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "traffic_shaping.byte_budget")
		}
		p.Shaper = engine.NewTrafficShaper(budget, window,
			engine.WithClock(clk), engine.WithMaxEntries(ts.MaxDestinations))
	}

	if id := cfg.Intrusion; id.IsEnabled() {
		window, err := id.WindowDuration()
		if err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "intrusion_detection.window")
		}
		p.Intrusion = engine.NewIntrusionDetector(uint64(id.SYNThreshold), id.PortScanThreshold, window,
			engine.WithClock(clk), engine.WithMaxEntries(id.MaxSources))
	}

	for i, rule := range cfg.ACL {
		addr, err := rule.Addr()
		if err != nil {
			return nil, errors.Attr(errors.Wrap(err, errors.KindValidation, "acl address"), "index", i)
		}
		p.ACL.AddRule(addr, rule.PortList())
	}
	return p, nil
}

func publicAddress(cfg *config.Config) (netip.Addr, error) {
	if cfg.PublicInterface != "" {
		addr, err := netutil.InterfaceIPv4(cfg.PublicInterface)
		if err != nil {
			return netip.Addr{}, errors.Wrapf(err, errors.GetKind(err), "public_interface %s", cfg.PublicInterface)
		}
		return addr, nil
	}
	addr, err := cfg.PublicAddr()
	if err != nil {
		return netip.Addr{}, errors.Wrap(err, errors.KindValidation, "public_address")
	}
	return addr, nil
}
