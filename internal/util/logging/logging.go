// Copyright 2021 FerretDB Inc.
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

// Package logging provides a thin, consistent wrapper around [log/slog]. The
// aggqlc CLI builds its logger with it and hands that logger to the driver, so
// compiler failures and driver dispatches read the same way regardless of which
// handler was configured.
package logging

import (
	"context"
	"io"
	"log/slog"
)

// Format is a supported log output format.
type Format string

// Supported formats.
const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Setup builds a logger writing to w in the given format and level, wrapped with [WrapLogger].
func Setup(w io.Writer, level slog.Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case FormatConsole:
		fallthrough
	default:
		h = slog.NewTextHandler(w, opts)
	}

	return WrapLogger(slog.New(h))
}

// WrapLogger returns a logger that behaves exactly like l, except timestamps are
// normalized to UTC before reaching the underlying handler.
//
// Every custom handler and every entry point that builds a top-level logger in this
// repository should pass through WrapLogger, so that log correlation across
// goroutines and processes never depends on the local time zone.
func WrapLogger(l *slog.Logger) *slog.Logger {
	return slog.New(&utcHandler{Handler: l.Handler()})
}

// utcHandler normalizes record timestamps to UTC before delegating.
type utcHandler struct {
	slog.Handler
}

// Handle implements [slog.Handler].
func (h *utcHandler) Handle(ctx context.Context, r slog.Record) error {
	if !r.Time.IsZero() {
		r.Time = r.Time.UTC()
	}

	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements [slog.Handler].
func (h *utcHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &utcHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements [slog.Handler].
func (h *utcHandler) WithGroup(name string) slog.Handler {
	return &utcHandler{Handler: h.Handler.WithGroup(name)}
}

// check interfaces
var (
	_ slog.Handler = (*utcHandler)(nil)
)
