// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package main runs the meeting attendance engine: it consumes participant
// observation ticks from NATS, reconciles them into attendance records and
// delivers progress and final reports to the attendance backend.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/infrastructure/backend"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/infrastructure/messaging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/utils"
)

func main() {
	env := parseEnv()
	flags := parseFlags(env.Port)

	logging.InitStructureLogConfig()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	gracefulCloseWG := sync.WaitGroup{}

	otelShutdown, err := utils.SetupOTelSDK(ctx)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up OpenTelemetry")
		return
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.With(logging.ErrKey, err).Error("error shutting down OpenTelemetry")
		}
	}()

	natsConn, err := setupNATS(ctx, env, &gracefulCloseWG, done)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up NATS")
		return
	}

	// Get the key-value stores for the service.
	syncKV, localKV, err := getKeyValueStores(ctx, env, natsConn)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error getting key-value stores")
		return
	}
	repos := newRepositories(syncKV, localKV, env.InstanceID)

	engine := service.NewAttendanceEngine(env.serviceConfig(), service.EngineDeps{
		Sessions:    repos.Sessions,
		HostLocks:   repos.HostLocks,
		Snapshots:   repos.Snapshots,
		RetryQueue:  repos.RetryQueue,
		Ledger:      repos.Ledger,
		DeadLetters: repos.DeadLetters,
		Backend: backend.NewClient(backend.Config{
			BaseURL: env.BackendBaseURL,
			Timeout: env.BackendTimeout,
		}),
		Publisher: messaging.NewMessageBuilder(natsConn),
	})
	if err := engine.Start(ctx); err != nil {
		slog.With(logging.ErrKey, err).Error("error starting attendance engine")
		return
	}

	handler := handlers.NewAttendanceHandler(engine)
	httpServer := setupHTTPServer(flags, handler, &gracefulCloseWG)

	if err := createNatsSubscriptions(ctx, handler, natsConn); err != nil {
		slog.With(logging.ErrKey, err).Error("error creating NATS subscriptions")
		return
	}

	// This next line blocks until SIGINT or SIGTERM is received.
	<-done

	gracefulShutdown(httpServer, natsConn, engine.Stop, &gracefulCloseWG, cancel)
}
