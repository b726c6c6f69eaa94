// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/infrastructure/messaging"
)

// createNatsSubscriptions subscribes the handler to every subject it routes.
// Each subscription delivers in order, so ticks are applied one at a time.
func createNatsSubscriptions(ctx context.Context, handler *handlers.AttendanceHandler, natsConn *nats.Conn) error {
	for _, subject := range handler.Subjects() {
		_, err := natsConn.Subscribe(subject, func(msg *nats.Msg) {
			handler.HandleMessage(ctx, messaging.NewNatsMessage(msg))
		})
		if err != nil {
			return fmt.Errorf("error subscribing to %s: %w", subject, err)
		}
		slog.DebugContext(ctx, "subscribed to NATS subject", "subject", subject)
	}
	return nil
}
