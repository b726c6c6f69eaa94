// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package middleware holds the HTTP middleware of the health server.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
)

// RequestLoggerMiddleware creates a middleware that logs HTTP requests.
// Probe endpoints are only logged when they fail.
func RequestLoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now().UTC()

			isHealthCheck := r.URL.Path == constants.LivezPath || r.URL.Path == constants.ReadyzPath

			ctx := r.Context()
			ctx = logging.AppendCtx(ctx, slog.String("method", r.Method))
			ctx = logging.AppendCtx(ctx, slog.String("path", r.URL.Path))
			ctx = logging.AppendCtx(ctx, slog.String("remote_addr", r.RemoteAddr))
			ctx = logging.AppendCtx(ctx, slog.String("user_agent", r.UserAgent()))
			r = r.WithContext(ctx)

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			if isHealthCheck && ww.statusCode < http.StatusBadRequest {
				return
			}
			slog.InfoContext(ctx, "HTTP response",
				"status", ww.statusCode,
				"duration", time.Since(start).String(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
