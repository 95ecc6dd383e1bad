// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package netutil

import (
	"net"
	"net/netip"

	"github.com/tsdasari9/firewall/internal/errors"
)

// InterfaceIPv4 returns the primary IPv4 address assigned to the named
// interface.
func InterfaceIPv4(name string) (netip.Addr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, errors.KindNotFound, "interface %s", name)
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, errors.KindUnavailable, "list addresses on %s", name)
	}

	var ips []net.IP
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			ips = append(ips, ipn.IP)
		}
	}
	if addr, ok := firstGlobalIPv4(ips); ok {
		return addr, nil
	}
	return netip.Addr{}, noIPv4(name)
}
