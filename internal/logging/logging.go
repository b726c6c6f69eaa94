// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package logging contains the logging functionality for the attendance engine.
package logging

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	slogotel "github.com/remychantenay/slog-otel"
)

type ctxKey string

// Public constants
const (
	ErrKey = "error"

	SessionKeyAttr  = "session_key"
	IdentityKeyAttr = "identity_key"
)

// Private constants
const (
	slogFields      ctxKey = "slog_fields"
	logLevelDefault        = slog.LevelDebug

	// Log levels
	debug = "debug"
	warn  = "warn"
	err   = "error"
	info  = "info"

	// Log field for critical errors, e.g. a dropped submission.
	priorityCritical = "critical"
)

type contextHandler struct {
	slog.Handler
}

// Handle adds contextual attributes to the Record before calling the underlying handler
func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(slogFields).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}

	return h.Handler.Handle(ctx, r)
}

// WithAttrs keeps the context handler on top of the derived handler.
func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

// WithGroup keeps the context handler on top of the derived handler.
func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// AppendCtx adds an slog attribute to the provided context so that it will be
// included in any Record created with such context
func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if v, ok := parent.Value(slogFields).([]slog.Attr); ok {
		// copy so sibling contexts never share a backing array
		attrs := make([]slog.Attr, 0, len(v)+1)
		attrs = append(attrs, v...)
		attrs = append(attrs, attr)
		return context.WithValue(parent, slogFields, attrs)
	}

	return context.WithValue(parent, slogFields, []slog.Attr{attr})
}

// WithSessionKey tags every log written with ctx with the meeting session key.
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return AppendCtx(ctx, slog.String(SessionKeyAttr, sessionKey))
}

// WithIdentityKey tags every log written with ctx with a participant identity.
func WithIdentityKey(ctx context.Context, identityKey string) context.Context {
	return AppendCtx(ctx, slog.String(IdentityKeyAttr, identityKey))
}

// parseLevel maps LOG_LEVEL values onto slog levels.
func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case debug:
		return slog.LevelDebug
	case warn:
		return slog.LevelWarn
	case err:
		return slog.LevelError
	case info:
		return slog.LevelInfo
	default:
		return logLevelDefault
	}
}

// NewHandler builds the JSON handler chain: context attributes, then trace
// correlation, then JSON output to w.
func NewHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return contextHandler{slogotel.OtelHandler{Next: slog.NewJSONHandler(w, opts)}}
}

// InitStructureLogConfig sets the structured log behavior
func InitStructureLogConfig() slog.Handler {
	logOptions := &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}

	addSource := os.Getenv("LOG_ADD_SOURCE")
	logOptions.AddSource = addSource == "true" || addSource == "t" || addSource == "1"

	h := NewHandler(os.Stdout, logOptions)
	log.SetFlags(log.Llongfile)
	slog.SetDefault(slog.New(h))

	slog.Info("log config",
		"logLevel", logOptions.Level,
		"addSource", logOptions.AddSource,
	)

	return h
}

// Priority creates a slog.Attr for error priority classification
func Priority(level string) slog.Attr {
	return slog.String("priority", level)
}

// PriorityCritical marks errors that need a human, such as a report that
// could not be delivered after every retry.
func PriorityCritical() slog.Attr {
	return Priority(priorityCritical)
}
