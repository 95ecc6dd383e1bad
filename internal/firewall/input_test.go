// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdasari9/firewall/internal/capture"
	"github.com/tsdasari9/firewall/internal/config"
	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/logging"
	"github.com/tsdasari9/firewall/internal/testutil"
)

func TestOpenSource_PCAP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.pcap")
	w, err := capture.CreatePCAP(path, layers.LinkTypeEthernet, 65535)
	require.NoError(t, err)
	require.NoError(t, w.WritePacket(capture.Packet{Data: tcpFrame(t, "192.168.1.100", 443), Timestamp: epoch}))
	require.NoError(t, w.Close())

	cfg := testConfig()
	cfg.Capture.Source = config.SourcePCAP
	cfg.Capture.File = path

	in, err := OpenSource(cfg, nil)
	require.NoError(t, err)
	defer in.Close()
	assert.Equal(t, config.SourcePCAP, in.Kind())
	assert.Nil(t, in.Probe(), "capture files have no kernel counters")

	svc, err := New(in, testPolicies(t, cfg, nil))
	require.NoError(t, err)
	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, uint64(1), svc.Stats().Forwarded)
}

func TestOpenSource_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Source = config.SourcePCAP
	cfg.Capture.File = filepath.Join(t.TempDir(), "missing.pcap")
	_, err := OpenSource(cfg, nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))

	cfg.Capture.Source = "carrier-pigeon"
	_, err = OpenSource(cfg, nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestOpenSource_AFPacket(t *testing.T) {
	testutil.RequirePrivileged(t)

	cfg := testConfig()
	cfg.Capture.Interface = "lo"
	in, err := OpenSource(cfg, nil)
	require.NoError(t, err)
	defer in.Close()

	probe := in.Probe()
	require.NotNil(t, probe)
	counters, err := probe()
	require.NoError(t, err)
	assert.Contains(t, counters, "dropped")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(&config.LoggingConfig{Level: "warn", JSON: true}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, _, err = NewLogger(&config.LoggingConfig{Level: "loud"}, &buf)
	require.Error(t, err)

	_, _, err = NewLogger(&config.LoggingConfig{Level: "info", Syslog: &config.SyslogConfig{Enabled: true}}, &buf)
	require.Error(t, err, "syslog without a host")

	logger, closer, err = NewLogger(nil, &buf)
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	assert.True(t, logger.Enabled(logging.LevelInfo))
}
