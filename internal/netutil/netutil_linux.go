// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package netutil

import (
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/tsdasari9/firewall/internal/errors"
)

// InterfaceIPv4 returns the primary IPv4 address assigned to the named link.
func InterfaceIPv4(name string) (netip.Addr, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, errors.KindNotFound, "link %s", name)
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, errors.KindUnavailable, "list addresses on %s", name)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if a.IPNet != nil {
			ips = append(ips, a.IP)
		}
	}
	if addr, ok := firstGlobalIPv4(ips); ok {
		return addr, nil
	}
	return netip.Addr{}, noIPv4(name)
}
