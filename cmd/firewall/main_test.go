// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdasari9/firewall/internal/capture"
	"github.com/tsdasari9/firewall/internal/config"
	"github.com/tsdasari9/firewall/internal/testutil"
)

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firewall.hcl")

	code, out, errOut := execute(t, "config", "init", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Wrote")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.ACL, 1)

	code, _, errOut = execute(t, "config", "init", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already exists")

	code, out, _ = execute(t, "config", "init")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "schema_version")
}

func TestConfigCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.hcl")
	require.NoError(t, os.WriteFile(good, config.GenerateHCL(config.Example()), 0o644))

	code, out, errOut := execute(t, "-config", good, "config", "check")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "OK")

	bad := filepath.Join(dir, "bad.hcl")
	require.NoError(t, os.WriteFile(bad, []byte(`acl "not-an-ip" { ports = [22] }`), 0o644))
	code, _, errOut = execute(t, "-config", bad, "config", "check")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "acl")

	code, _, _ = execute(t, "config", "check")
	assert.Equal(t, 1, code)
}

func TestUsageErrors(t *testing.T) {
	code, _, errOut := execute(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command")

	code, _, _ = execute(t, "replay")
	assert.Equal(t, 2, code)

	code, _, _ = execute(t, "config")
	assert.Equal(t, 2, code)

	code, _, _ = execute(t, "-h")
	assert.Equal(t, 0, code)
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	pcapPath := filepath.Join(dir, "traffic.pcap")
	dropsPath := filepath.Join(dir, "drops.pcap")

	w, err := capture.CreatePCAP(pcapPath, layers.LinkTypeEthernet, 65535)
	require.NoError(t, err)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	frames := [][]byte{
		testutil.Ethernet(t, testutil.TCPv4(t, testutil.TCPOptions{Src: "192.168.1.100", Dst: "10.0.0.1", SrcPort: 40000, DstPort: 443, SYN: true})),
		testutil.Ethernet(t, testutil.TCPv4(t, testutil.TCPOptions{Src: "192.168.1.100", Dst: "10.0.0.1", SrcPort: 40000, DstPort: 8080, ACK: true})),
		testutil.Ethernet(t, testutil.UDPv4(t, "192.168.1.50", "10.0.0.2", 5353, 53, nil)),
		testutil.ARP(t),
	}
	for i, f := range frames {
		require.NoError(t, w.WritePacket(capture.Packet{Data: f, Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}
	require.NoError(t, w.Close())

	cfg := config.Example()
	cfg.Capture.DropPCAP = dropsPath
	cfg.Logging.Level = "error"
	cfgPath := filepath.Join(dir, "firewall.hcl")
	require.NoError(t, os.WriteFile(cfgPath, config.GenerateHCL(cfg), 0o644))

	code, out, errOut := execute(t, "-config", cfgPath, "replay", pcapPath)
	require.Equal(t, 0, code, errOut)

	assert.Contains(t, out, "Replayed 4 packets")
	assert.Regexp(t, `forwarded\s+1`, out)
	assert.Regexp(t, `dropped\s+3`, out)
	assert.Regexp(t, `acl_blocked\s+2`, out)
	assert.Regexp(t, `malformed_packet\s+1`, out)
	assert.Regexp(t, `nat mappings\s+1`, out)
	assert.Regexp(t, `drops recorded\s+3`, out)

	drops, err := capture.OpenPCAP(dropsPath)
	require.NoError(t, err)
	defer drops.Close()
	n := 0
	for {
		if _, err := drops.Next(context.Background()); err != nil {
			break
		}
		n++
	}
	assert.Equal(t, 3, n)
}
