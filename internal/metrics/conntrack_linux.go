// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package metrics

import (
	"sync"

	"github.com/ti-mo/conntrack"

	"github.com/tsdasari9/firewall/internal/errors"
)

// ConntrackProbe samples the kernel connection tracking table. Inline
// capture depends on it: a full table makes the kernel drop new flows
// before they ever reach the queue.
type ConntrackProbe struct {
	mu   sync.Mutex
	conn *conntrack.Conn
}

// OpenConntrack opens a netlink connection to the conntrack subsystem.
func OpenConntrack() (*ConntrackProbe, error) {
	conn, err := conntrack.Dial(nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "dial conntrack")
	}
	return &ConntrackProbe{conn: conn}, nil
}

// Sample returns the table size and the per-CPU counters summed. It has the
// Probe signature.
func (p *ConntrackProbe) Sample() (map[string]uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil, errors.New(errors.KindUnavailable, "conntrack probe closed")
	}
	global, err := p.conn.StatsGlobal()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "conntrack global stats")
	}
	cpus, err := p.conn.Stats()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "conntrack cpu stats")
	}
	return conntrackCounters(global, cpus), nil
}

// Close releases the netlink connection. It is safe to call twice.
func (p *ConntrackProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func conntrackCounters(global conntrack.StatsGlobal, cpus []conntrack.Stats) map[string]uint64 {
	out := map[string]uint64{
		"entries":     uint64(global.Entries),
		"max_entries": uint64(global.MaxEntries),
	}
	var found, invalid, insertFailed, drop, earlyDrop, errs uint64
	for _, s := range cpus {
		found += uint64(s.Found)
		invalid += uint64(s.Invalid)
		insertFailed += uint64(s.InsertFailed)
		drop += uint64(s.Drop)
		earlyDrop += uint64(s.EarlyDrop)
		errs += uint64(s.Error)
	}
	out["found"] = found
	out["invalid"] = invalid
	out["insert_failed"] = insertFailed
	out["drop"] = drop
	out["early_drop"] = earlyDrop
	out["error"] = errs
	return out
}
