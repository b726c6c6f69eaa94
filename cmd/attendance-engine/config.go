// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/service"
)

// Store backends
const (
	storeBackendNATS   = "nats"
	storeBackendMemory = "memory"
)

// flags are the command line flags for the attendance engine.
type flags struct {
	Debug bool
	Port  string
	Bind  string
}

// environment are the environment variables for the attendance engine.
type environment struct {
	Port string `env:"PORT" envDefault:"8080"`

	NatsURL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	// StoreBackend selects JetStream KV buckets ("nats") or process memory
	// ("memory") for persisted state.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"nats"`
	// InstanceID namespaces local-scope keys when several engines share
	// the local bucket.
	InstanceID string `env:"INSTANCE_ID"`

	BackendBaseURL string        `env:"BACKEND_BASE_URL,notEmpty"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`

	HostConfirmationThreshold int           `env:"HOST_CONFIRMATION_THRESHOLD" envDefault:"2"`
	HostMissedThreshold       int           `env:"HOST_MISSED_THRESHOLD" envDefault:"3"`
	HostPermanentLock         bool          `env:"HOST_PERMANENT_LOCK" envDefault:"false"`
	DepartureMissThreshold    int           `env:"DEPARTURE_MISS_THRESHOLD" envDefault:"2"`
	ProgressInterval          time.Duration `env:"PROGRESS_INTERVAL" envDefault:"1m"`
	DrainInterval             time.Duration `env:"DRAIN_INTERVAL" envDefault:"5s"`
	DrainWorkers              int           `env:"DRAIN_WORKERS" envDefault:"4"`
	LivenessInterval          time.Duration `env:"LIVENESS_INTERVAL" envDefault:"30s"`
	VisibilityLossThreshold   time.Duration `env:"VISIBILITY_LOSS_THRESHOLD" envDefault:"1m"`
	EmptyMeetingTimeout       time.Duration `env:"EMPTY_MEETING_TIMEOUT" envDefault:"5m"`
	StaleTickTimeout          time.Duration `env:"STALE_TICK_TIMEOUT" envDefault:"3m"`
	EndingTimeout             time.Duration `env:"ENDING_TIMEOUT" envDefault:"2m"`
}

// parseFlags parses command line flags for the attendance engine
func parseFlags(defaultPort string) flags {
	var debug = flag.Bool("d", false, "enable debug logging")
	var port = flag.String("p", defaultPort, "listen port")
	var bind = flag.String("bind", "*", "interface to bind on")

	flag.Usage = func() {
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	// Based on the debug flag, set the log level environment variable used by [logging.InitStructureLogConfig]
	if *debug {
		err := os.Setenv("LOG_LEVEL", "debug")
		if err != nil {
			slog.With(logging.ErrKey, err).Error("error setting log level")
			os.Exit(1)
		}
	}

	return flags{
		Debug: *debug,
		Port:  *port,
		Bind:  *bind,
	}
}

// loadEnv reads and validates the environment.
func loadEnv() (environment, error) {
	var e environment
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	switch e.StoreBackend {
	case storeBackendNATS, storeBackendMemory:
	default:
		return e, fmt.Errorf("unsupported STORE_BACKEND %q", e.StoreBackend)
	}
	return e, nil
}

// parseEnv parses environment variables for the attendance engine
func parseEnv() environment {
	e, err := loadEnv()
	if err != nil {
		slog.With(logging.ErrKey, err).Error("invalid configuration")
		os.Exit(1)
	}
	return e
}

// serviceConfig maps the environment onto the engine configuration.
func (e environment) serviceConfig() service.ServiceConfig {
	return service.ServiceConfig{
		HostConfirmationThreshold: e.HostConfirmationThreshold,
		HostMissedThreshold:       e.HostMissedThreshold,
		HostPermanentLock:         e.HostPermanentLock,
		DepartureMissThreshold:    e.DepartureMissThreshold,
		ProgressInterval:          e.ProgressInterval,
		DrainInterval:             e.DrainInterval,
		LivenessInterval:          e.LivenessInterval,
		VisibilityLossThreshold:   e.VisibilityLossThreshold,
		EmptyMeetingTimeout:       e.EmptyMeetingTimeout,
		StaleTickTimeout:          e.StaleTickTimeout,
		EndingTimeout:             e.EndingTimeout,
		DrainWorkers:              e.DrainWorkers,
	}
}
