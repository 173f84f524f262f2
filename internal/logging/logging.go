// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging wraps log/slog with the level-filtering, colorized
// handler the teacher's pkg/logger package implements, adapted to filter
// on this module's package prefix instead of the teacher's.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const modulePrefix = "github.com/kadirpekel/taskforge"

// ParseLevel converts a string log level to slog.Level. An unrecognized
// value resolves to WARN rather than erroring, matching the CLI's
// tolerant flag parsing.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler mutes third-party library logs unless the configured
// level is DEBUG, so a default run shows only this module's own events.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePrefix) || strings.Contains(file, "taskforge/")
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// coloredHandler reformats each record as "LEVEL message k=v ..." with an
// ANSI color keyed to the level, used only when output is a terminal.
type coloredHandler struct {
	writer io.Writer
}

func (h *coloredHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *coloredHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	if !record.Time.IsZero() {
		b.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}
	level := strings.ToUpper(record.Level.String())
	if level == "WARNING" {
		level = "WARN"
	}
	b.WriteString(levelColor(record.Level))
	b.WriteString(level)
	b.WriteString("\033[0m ")
	b.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	_, err := h.writer.Write([]byte(b.String()))
	return err
}

func (h *coloredHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *coloredHandler) WithGroup(string) slog.Handler      { return h }

// Init installs the process-wide default logger at level, writing to
// output. Terminal output gets ANSI color; redirected output gets plain
// slog.TextHandler formatting.
func Init(level slog.Level, output *os.File) {
	var handler slog.Handler
	if isTerminal(output) {
		handler = &coloredHandler{writer: output}
	} else {
		handler = slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
	}

	defaultLogger = slog.New(&filteringHandler{handler: handler, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// Get returns the process logger, initializing it at INFO/stderr on first
// use so packages that log before main's Init call still work in tests.
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr)
	}
	return defaultLogger
}
