// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
)

const instrumentationName = "github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/service"

// Submission results
const (
	submissionResultDelivered = "delivered"
	submissionResultFailed    = "failed"
	submissionResultQueued    = "queued"
	submissionResultSkipped   = "skipped"
)

// engineMetrics are the engine's OpenTelemetry instruments. They are no-ops
// unless a meter provider is installed.
type engineMetrics struct {
	ticks        metric.Int64Counter
	hostLocks    metric.Int64Counter
	submissions  metric.Int64Counter
	droppedCount metric.Int64Counter
	finalized    metric.Int64Counter
	participants metric.Int64Gauge
}

func newEngineMetrics() *engineMetrics {
	meter := otel.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			slog.Warn("unable to create counter", "name", name, logging.ErrKey, err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	participants, err := meter.Int64Gauge("attendance.participants.live",
		metric.WithDescription("Participants observed in the latest tick"))
	if err != nil {
		slog.Warn("unable to create gauge", logging.ErrKey, err)
		participants, _ = fallback.Int64Gauge("attendance.participants.live")
	}

	return &engineMetrics{
		ticks:        counter("attendance.ticks", "Observation ticks processed"),
		hostLocks:    counter("attendance.host.locks", "Host lock transitions"),
		submissions:  counter("attendance.submissions", "Report submissions by endpoint and result"),
		droppedCount: counter("attendance.submissions.dropped", "Submissions dropped after exhausting retries"),
		finalized:    counter("attendance.finalized", "Sessions finalized by signal"),
		participants: participants,
	}
}

func (m *engineMetrics) tick(ctx context.Context, live int) {
	m.ticks.Add(ctx, 1)
	m.participants.Record(ctx, int64(live))
}

func (m *engineMetrics) hostLock(ctx context.Context, event string) {
	m.hostLocks.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *engineMetrics) submission(ctx context.Context, endpoint, result string) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("result", result),
	))
}

func (m *engineMetrics) dropped(ctx context.Context, endpoint string) {
	m.droppedCount.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *engineMetrics) finalize(ctx context.Context, signal FinalizeSignal) {
	m.finalized.Add(ctx, 1, metric.WithAttributes(attribute.String("signal", string(signal))))
}
