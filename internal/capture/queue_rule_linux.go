// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package capture

import (
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"

	"github.com/tsdasari9/firewall/internal/errors"
)

const (
	queueTableName = "firewall_queue"
	queueChainName = "steer"
)

// QueueRule is an nftables table that steers packets on one hook into an
// NFQUEUE. Remove deletes the table again.
type QueueRule struct {
	mu    sync.Mutex
	conn  *nftables.Conn
	table *nftables.Table
	chain *nftables.Chain
}

// InstallQueueRule creates an IPv4 table with a single counted queue rule on
// the given hook ("forward" or "input"). Any table left over from a previous
// run is replaced.
func InstallQueueRule(queue uint16, hook string, failOpen bool) (*QueueRule, error) {
	var hooknum *nftables.ChainHook
	switch hook {
	case "", "forward":
		hooknum = nftables.ChainHookForward
	case "input":
		hooknum = nftables.ChainHookInput
	default:
		return nil, errors.Errorf(errors.KindValidation, "unsupported hook %q", hook)
	}

	conn, err := nftables.New()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "open nftables")
	}

	table := &nftables.Table{Family: nftables.TableFamilyIPv4, Name: queueTableName}

	// Start from a clean table.
	if existing, err := conn.ListTablesOfFamily(nftables.TableFamilyIPv4); err == nil {
		for _, t := range existing {
			if t.Name == queueTableName {
				conn.DelTable(t)
			}
		}
	}

	conn.AddTable(table)

	policy := nftables.ChainPolicyAccept
	chain := conn.AddChain(&nftables.Chain{
		Name:     queueChainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  hooknum,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})

	q := &expr.Queue{Num: queue}
	if failOpen {
		q.Flag = expr.QueueFlagBypass
	}
	conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{&expr.Counter{}, q},
	})

	if err := conn.Flush(); err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindPermission, "install queue rule"), "queue", queue)
	}
	return &QueueRule{conn: conn, table: table, chain: chain}, nil
}

// Packets reads the rule counter: how many packets the kernel has queued.
func (r *QueueRule) Packets() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.table == nil {
		return 0, ErrClosed
	}

	rules, err := r.conn.GetRules(r.table, r.chain)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindUnavailable, "list queue rules")
	}
	var total uint64
	for _, rule := range rules {
		for _, e := range rule.Exprs {
			if c, ok := e.(*expr.Counter); ok {
				total += c.Packets
			}
		}
	}
	return total, nil
}

// Remove deletes the table. It is safe to call more than once.
func (r *QueueRule) Remove() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.table == nil {
		return nil
	}
	r.conn.DelTable(r.table)
	err := r.conn.Flush()
	r.table = nil
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "remove queue rule")
	}
	return nil
}
