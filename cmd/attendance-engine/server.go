// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
)

// newHealthHandler serves the liveness and readiness probes.
func newHealthHandler(handler domain.MessageHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+constants.LivezPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK\n"))
	})
	mux.HandleFunc("GET "+constants.ReadyzPath, func(w http.ResponseWriter, _ *http.Request) {
		if !handler.HandlerReady() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK\n"))
	})

	var h http.Handler = mux
	// RequestIDMiddleware runs first, so it is added last.
	h = middleware.RequestLoggerMiddleware()(h)
	h = middleware.RequestIDMiddleware()(h)
	return otelhttp.NewHandler(h, "health")
}

// setupHTTPServer configures and starts the HTTP server
func setupHTTPServer(flags flags, handler domain.MessageHandler, gracefulCloseWG *sync.WaitGroup) *http.Server {
	var addr string
	if flags.Bind == "*" {
		addr = ":" + flags.Port
	} else {
		addr = flags.Bind + ":" + flags.Port
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           newHealthHandler(handler),
		ReadHeaderTimeout: 3 * time.Second,
	}
	gracefulCloseWG.Add(1)
	go func() {
		slog.With("addr", addr).Debug("starting http server, listening on port " + flags.Port)
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.With(logging.ErrKey, err).Error("http listener error")
			os.Exit(1)
		}
		// ErrServerClosed is returned as soon as Shutdown is called, so the
		// wait group is released by gracefulShutdown instead.
	}()

	return httpServer
}

// gracefulShutdown stops the engine timers, the HTTP server and drains NATS.
func gracefulShutdown(httpServer *http.Server, natsConn *nats.Conn, stop func(), gracefulCloseWG *sync.WaitGroup, cancel context.CancelFunc) {
	slog.Info("shutting down attendance engine")
	stop()

	go func() {
		ctx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownSeconds*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.With(logging.ErrKey, err).Error("http shutdown error")
		}
		gracefulCloseWG.Done()
	}()

	// Cancel the root context before draining so the NATS close handler
	// treats the close as expected.
	cancel()
	if !natsConn.IsClosed() && !natsConn.IsDraining() {
		slog.Info("draining NATS connections")
		if err := natsConn.Drain(); err != nil {
			slog.With(logging.ErrKey, err).Error("error draining NATS connection")
		}
	}

	gracefulCloseWG.Wait()
	slog.Info("graceful shutdown complete")
}
