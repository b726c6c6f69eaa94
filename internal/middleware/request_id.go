// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
)

// RequestIDMiddleware reuses the caller's X-REQUEST-ID or generates one, and
// echoes it on the response.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(constants.RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(constants.RequestIDHeader, requestID)

			ctx := context.WithValue(r.Context(), constants.RequestIDContextID, requestID)
			ctx = logging.AppendCtx(ctx, slog.String("request_id", requestID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
