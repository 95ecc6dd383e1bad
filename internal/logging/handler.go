// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// LevelWriter receives one formatted record at the record's level.
// SyslogWriter implements it.
type LevelWriter interface {
	WriteLevel(level Level, msg []byte) error
}

// levelHandler formats records as logfmt without a timestamp (the receiver
// stamps them) and hands each line to a LevelWriter with its level.
type levelHandler struct {
	mu    *sync.Mutex
	buf   *bytes.Buffer
	inner slog.Handler
	out   LevelWriter
}

func newLevelHandler(out LevelWriter, level slog.Leveler) *levelHandler {
	buf := &bytes.Buffer{}
	return &levelHandler{
		mu:  &sync.Mutex{},
		buf: buf,
		out: out,
		inner: slog.NewTextHandler(buf, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if len(groups) == 0 && a.Key == slog.TimeKey {
					return slog.Attr{}
				}
				return a
			},
		}),
	}
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Reset()
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	return h.out.WriteLevel(r.Level, bytes.TrimSuffix(h.buf.Bytes(), []byte("\n")))
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{mu: h.mu, buf: h.buf, inner: h.inner.WithAttrs(attrs), out: h.out}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{mu: h.mu, buf: h.buf, inner: h.inner.WithGroup(name), out: h.out}
}

// teeHandler sends every record to each handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
