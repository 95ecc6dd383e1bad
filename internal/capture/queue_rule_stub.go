// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package capture

import "github.com/tsdasari9/firewall/internal/errors"

// QueueRule is a stub for non-Linux systems.
type QueueRule struct{}

// InstallQueueRule returns an error on non-Linux systems.
func InstallQueueRule(queue uint16, hook string, failOpen bool) (*QueueRule, error) {
	return nil, errors.New(errors.KindUnavailable, "nftables is only supported on Linux")
}

func (r *QueueRule) Packets() (uint64, error) { return 0, ErrClosed }
func (r *QueueRule) Remove() error            { return nil }
