// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"github.com/tsdasari9/firewall/internal/capture"
	"github.com/tsdasari9/firewall/internal/config"
	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/logging"
	"github.com/tsdasari9/firewall/internal/metrics"
)

// Input is an open capture source together with whatever kernel state was
// set up for it.
type Input struct {
	capture.Source
	kind string
	rule *capture.QueueRule
}

// OpenSource opens the capture source named in cfg. For NFQUEUE it also
// installs the steering rule when asked to.
func OpenSource(cfg *config.Config, logger *logging.Logger) (*Input, error) {
	if logger == nil {
		logger = logging.WithComponent("capture")
	}
	c := cfg.Capture

	switch c.Source {
	case config.SourcePCAP:
		src, err := capture.OpenPCAP(c.File)
		if err != nil {
			return nil, err
		}
		logger.Info("Replaying capture file", "file", c.File, "link", src.LinkType().String())
		return &Input{Source: src, kind: c.Source}, nil

	case config.SourceAFPacket:
		src, err := capture.OpenAFPacket(c.Interface, c.Snaplen)
		if err != nil {
			return nil, err
		}
		logger.Info("Capturing on interface", "interface", c.Interface, "snaplen", c.Snaplen)
		return &Input{Source: src, kind: c.Source}, nil

	case config.SourceNFQueue:
		src, err := capture.OpenNFQueue(capture.NFQueueOptions{
			Queue:    uint16(c.Queue),
			FailOpen: c.FailOpen,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		in := &Input{Source: src, kind: c.Source}
		if c.InstallQueueRule {
			rule, err := capture.InstallQueueRule(uint16(c.Queue), c.Hook, c.FailOpen)
			if err != nil {
				src.Close()
				return nil, err
			}
			in.rule = rule
			logger.Info("Installed queue rule", "queue", c.Queue, "hook", c.Hook, "fail_open", c.FailOpen)
		}
		return in, nil
	}
	return nil, errors.Errorf(errors.KindValidation, "unknown capture source %q", c.Source)
}

// NewInput wraps an already open source.
func NewInput(src capture.Source, kind string) *Input {
	return &Input{Source: src, kind: kind}
}

// Unwrap returns the underlying source.
func (in *Input) Unwrap() capture.Source {
	return in.Source
}

// Kind is the configured source name.
func (in *Input) Kind() string {
	return in.kind
}

// Probe reports the source's kernel counters, or nil when it has none.
func (in *Input) Probe() metrics.Probe {
	switch src := in.Source.(type) {
	case *capture.AFPacketSource:
		return func() (map[string]uint64, error) {
			received, dropped, err := src.Stats()
			if err != nil {
				return nil, err
			}
			return map[string]uint64{"received": uint64(received), "dropped": uint64(dropped)}, nil
		}
	case *capture.NFQueueSource:
		rule := in.rule
		return func() (map[string]uint64, error) {
			st := src.Stats()
			out := map[string]uint64{
				"backlog_drops":  st.BacklogDrops,
				"verdict_errors": st.VerdictErrors,
			}
			if rule != nil {
				queued, err := rule.Packets()
				if err != nil {
					return nil, err
				}
				out["queued"] = queued
			}
			return out, nil
		}
	}
	return nil
}

// Close closes the source and removes any queue rule.
func (in *Input) Close() error {
	err := in.Source.Close()
	if in.rule != nil {
		if rerr := in.rule.Remove(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
