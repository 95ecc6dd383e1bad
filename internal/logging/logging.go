// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging wraps log/slog with the handlers and helpers the firewall
// uses everywhere: tinted text on terminals, JSON for collectors, and an
// optional syslog copy.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Level is a logging severity.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config controls logger construction.
type Config struct {
	Output io.Writer
	Level  Level
	// JSON selects the JSON handler instead of tinted text.
	JSON bool
	// NoColor forces plain text even on a terminal.
	NoColor bool
	// Syslog, when set, also receives every record at or above Level with
	// its own severity.
	Syslog LevelWriter
}

// DefaultConfig logs info and above to stderr.
func DefaultConfig() Config {
	return Config{
		Output: os.Stderr,
		Level:  LevelInfo,
	}
}

// Logger is a slog.Logger with firewall helpers.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level})
	} else {
		h = tint.NewHandler(out, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: time.DateTime,
			NoColor:    cfg.NoColor || !isTerminal(out),
		})
	}
	if cfg.Syslog != nil {
		h = teeHandler{h, newLevelHandler(cfg.Syslog, cfg.Level)}
	}
	return &Logger{Logger: slog.New(h)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	// Cygwin and MSYS ptys are pipes to the OS, so term misses them.
	return term.IsTerminal(int(f.Fd())) || isatty.IsCygwinTerminal(f.Fd())
}

// WithComponent returns a child logger tagged with component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// With returns a child logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Enabled reports whether level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return l.Logger.Enabled(context.Background(), level)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(DefaultConfig())
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger and routes slog's default
// through it.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// WithComponent is Default().WithComponent(name).
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }

// ParseLevel maps a config string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
