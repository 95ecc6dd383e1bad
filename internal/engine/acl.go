// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"slices"
	"sync"
)

// ACLRule is the set of destination ports one source may reach.
type ACLRule struct {
	Address netip.Addr `json:"address"`
	Ports   []uint16   `json:"ports"`
}

// AccessControlList maps source addresses to permitted destination ports.
// A source without a rule may reach nothing.
type AccessControlList struct {
	mu    sync.RWMutex
	rules map[netip.Addr]map[uint16]struct{}
}

func NewAccessControlList() *AccessControlList {
	return &AccessControlList{rules: make(map[netip.Addr]map[uint16]struct{})}
}

// AddRule sets the ports addr may reach, replacing any earlier rule for addr.
// An empty port list keeps the source explicitly denied everywhere.
func (a *AccessControlList) AddRule(addr netip.Addr, ports []uint16) {
	set := make(map[uint16]struct{}, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}

	a.mu.Lock()
	a.rules[addr.Unmap()] = set
	a.mu.Unlock()
}

// IsAllowed reports whether addr has a rule that includes port.
func (a *AccessControlList) IsAllowed(addr netip.Addr, port uint16) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	set, ok := a.rules[addr.Unmap()]
	if !ok {
		return false
	}
	_, ok = set[port]
	return ok
}

// Rules returns a copy of every rule, ordered by address with ports sorted.
func (a *AccessControlList) Rules() []ACLRule {
	a.mu.RLock()
	out := make([]ACLRule, 0, len(a.rules))
	for addr, set := range a.rules {
		ports := make([]uint16, 0, len(set))
		for p := range set {
			ports = append(ports, p)
		}
		slices.Sort(ports)
		out = append(out, ACLRule{Address: addr, Ports: ports})
	}
	a.mu.RUnlock()

	slices.SortFunc(out, func(x, y ACLRule) int { return x.Address.Compare(y.Address) })
	return out
}

func (a *AccessControlList) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rules)
}
