// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netutil resolves interface addresses.
package netutil

import (
	"net"
	"net/netip"

	"github.com/tsdasari9/firewall/internal/errors"
)

// firstGlobalIPv4 picks the first IPv4 address that is neither loopback nor
// link-local. It falls back to any IPv4 address when only those exist.
func firstGlobalIPv4(ips []net.IP) (netip.Addr, bool) {
	var fallback netip.Addr
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if !addr.Is4() {
			continue
		}
		if addr.IsLoopback() || addr.IsLinkLocalUnicast() {
			if !fallback.IsValid() {
				fallback = addr
			}
			continue
		}
		return addr, true
	}
	return fallback, fallback.IsValid()
}

func noIPv4(name string) error {
	return errors.Attr(errors.Errorf(errors.KindNotFound, "interface %s has no IPv4 address", name), "interface", name)
}
