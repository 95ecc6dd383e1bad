// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: LevelInfo, JSON: true}).WithComponent("dispatcher")

	logger.Info("Packet forwarded", "src", "10.0.0.5", "dst_port", 22)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Packet forwarded", rec["msg"])
	assert.Equal(t, "dispatcher", rec["component"])
	assert.Equal(t, "10.0.0.5", rec["src"])
	assert.EqualValues(t, 22, rec["dst_port"])
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: LevelWarn, NoColor: true})

	logger.Info("hidden")
	logger.Warn("Packet dropped", "reason", "acl_blocked")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Packet dropped")
	assert.Contains(t, out, "reason=acl_blocked")
	assert.True(t, logger.Enabled(LevelError))
	assert.False(t, logger.Enabled(LevelDebug))
}

func TestNew_TextHasNoColorOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf, Level: LevelInfo}).Info("hello")
	assert.False(t, strings.Contains(buf.String(), "\x1b["), "buffer output must not carry ANSI escapes")
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(New(Config{Output: &buf, Level: LevelDebug, JSON: true}))

	WithComponent("capture").Debug("Read frame", "bytes", 60)
	assert.Contains(t, buf.String(), `"component":"capture"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type levelRecorder struct {
	levels []Level
	lines  []string
}

func (r *levelRecorder) WriteLevel(level Level, msg []byte) error {
	r.levels = append(r.levels, level)
	r.lines = append(r.lines, string(msg))
	return nil
}

func TestNew_LevelWriter(t *testing.T) {
	var buf bytes.Buffer
	rec := &levelRecorder{}
	logger := New(Config{Output: &buf, Level: LevelInfo, JSON: true, Syslog: rec}).WithComponent("dispatcher")

	logger.Debug("hidden")
	logger.Info("Packet forwarded", "src", "10.0.0.5")
	logger.Error("Failed to apply verdict")

	assert.Equal(t, []Level{LevelInfo, LevelError}, rec.levels)
	require.Len(t, rec.lines, 2)
	assert.Equal(t, `level=INFO msg="Packet forwarded" component=dispatcher src=10.0.0.5`, rec.lines[0])
	assert.NotContains(t, rec.lines[1], "time=")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"), "both records also reach the main output")
}
