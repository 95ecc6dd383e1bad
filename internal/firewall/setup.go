// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"io"
	"os"

	"github.com/tsdasari9/firewall/internal/config"
	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/logging"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the process logger from the logging block. When syslog
// is enabled every record is also sent there at its own severity; the
// returned closer releases that connection.
func NewLogger(cfg *config.LoggingConfig, stderr io.Writer) (*logging.Logger, io.Closer, error) {
	if stderr == nil {
		stderr = os.Stderr
	}
	if cfg == nil {
		cfg = &config.LoggingConfig{Level: "info"}
	}

	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.KindValidation, "logging.level")
	}

	lc := logging.Config{Output: stderr, Level: level, JSON: cfg.JSON}
	var closer io.Closer = nopCloser{}

	if sc := cfg.Syslog; sc != nil && sc.Enabled {
		w, err := logging.NewSyslogWriter(logging.SyslogConfig{
			Enabled:  true,
			Host:     sc.Host,
			Port:     sc.Port,
			Protocol: sc.Protocol,
			Tag:      sc.Tag,
			Facility: sc.Facility,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.KindUnavailable, "syslog")
		}
		lc.Syslog = w
		closer = w
	}
	return logging.New(lc), closer, nil
}
