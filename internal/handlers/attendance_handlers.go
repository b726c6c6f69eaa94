// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-viper/mapstructure/v2"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/utils"
)

// AttendanceHandler routes observation source and operator messages to the
// attendance engine.
type AttendanceHandler struct {
	engine *service.AttendanceEngine
}

var _ domain.MessageHandler = (*AttendanceHandler)(nil)

func NewAttendanceHandler(engine *service.AttendanceEngine) *AttendanceHandler {
	return &AttendanceHandler{engine: engine}
}

func (h *AttendanceHandler) HandlerReady() bool {
	return h.engine.ServiceReady()
}

// Subjects lists every subject HandleMessage understands.
func (h *AttendanceHandler) Subjects() []string {
	subjects := make([]string, 0, len(h.routes()))
	for subject := range h.routes() {
		subjects = append(subjects, subject)
	}
	return subjects
}

func (h *AttendanceHandler) routes() map[string]func(ctx context.Context, msg domain.Message) ([]byte, error) {
	return map[string]func(ctx context.Context, msg domain.Message) ([]byte, error){
		models.ObservationsSubject: h.HandleObservationTick,
		models.VisibilitySubject:   h.HandleVisibility,
		models.EndMarkerSubject:    h.HandleEndMarker,
		models.CloseSubject:        h.HandleClose,
		models.EndNowSubject:       h.HandleEndNow,
		models.ClearSubject:        h.HandleClear,
		models.StatusSubject:       h.HandleStatus,
	}
}

// HandleMessage implements domain.MessageHandler interface
func (h *AttendanceHandler) HandleMessage(ctx context.Context, msg domain.Message) {
	subject := msg.Subject()
	ctx = logging.AppendCtx(ctx, slog.String("subject", subject))
	slog.DebugContext(ctx, "handling NATS message")

	handler, ok := h.routes()[subject]
	if !ok {
		slog.WarnContext(ctx, "unknown subject")
		h.respond(ctx, msg, nil)
		return
	}

	response, err := handler(ctx, msg)
	if err != nil {
		slog.ErrorContext(ctx, "error handling message",
			logging.ErrKey, err,
			"error_type", domain.GetErrorType(err).String(),
		)
		if msg.HasReply() {
			response, _ = json.Marshal(models.ErrorResponse{Error: err.Error()})
			h.respond(ctx, msg, response)
		}
		return
	}

	if msg.HasReply() {
		h.respond(ctx, msg, response)
		slog.DebugContext(ctx, "responded to NATS message")
	} else {
		slog.DebugContext(ctx, "handled NATS message (no reply expected)")
	}
}

func (h *AttendanceHandler) respond(ctx context.Context, msg domain.Message, data []byte) {
	if !msg.HasReply() {
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
	}
}

// decodeSignals maps the loosely typed tick context onto HostSignals.
// Sources send booleans as strings or numbers as often as real booleans.
func decodeSignals(raw map[string]any) (models.HostSignals, error) {
	var signals models.HostSignals
	if len(raw) == 0 {
		return signals, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &signals,
	})
	if err != nil {
		return signals, err
	}
	if err := decoder.Decode(raw); err != nil {
		return signals, err
	}
	return signals, nil
}

func (h *AttendanceHandler) HandleObservationTick(ctx context.Context, msg domain.Message) ([]byte, error) {
	var tick models.ObservationTick
	if err := json.Unmarshal(msg.Data(), &tick); err != nil {
		return nil, domain.NewValidationError("observation tick is not valid JSON", err)
	}

	signals, err := decodeSignals(tick.Context)
	if err != nil {
		// signals only help host detection; the observations still count
		slog.WarnContext(ctx, "unable to decode tick context", logging.ErrKey, err)
	}
	tick.Signals = signals

	if err := h.engine.HandleTick(ctx, &tick); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *AttendanceHandler) HandleVisibility(ctx context.Context, msg domain.Message) ([]byte, error) {
	var visibility models.VisibilityMessage
	if err := json.Unmarshal(msg.Data(), &visibility); err != nil {
		return nil, domain.NewValidationError("visibility message is not valid JSON", err)
	}
	h.engine.SetVisibility(ctx, visibility)
	return nil, nil
}

func (h *AttendanceHandler) handleSignal(ctx context.Context, msg domain.Message, signal service.FinalizeSignal) ([]byte, error) {
	var end models.EndSignalMessage
	if data := msg.Data(); len(data) > 0 {
		if err := json.Unmarshal(data, &end); err != nil {
			return nil, domain.NewValidationError("end signal is not valid JSON", err)
		}
	}
	ctx = logging.AppendCtx(ctx, slog.String("reason", utils.CoalesceString(end.Reason, string(signal))))
	h.engine.Signal(ctx, end.SessionKey, signal)
	return nil, nil
}

func (h *AttendanceHandler) HandleEndMarker(ctx context.Context, msg domain.Message) ([]byte, error) {
	return h.handleSignal(ctx, msg, service.SignalEndMarker)
}

func (h *AttendanceHandler) HandleClose(ctx context.Context, msg domain.Message) ([]byte, error) {
	return h.handleSignal(ctx, msg, service.SignalExplicitClose)
}

// HandleEndNow finalizes immediately and replies with the final report.
func (h *AttendanceHandler) HandleEndNow(ctx context.Context, _ domain.Message) ([]byte, error) {
	report, err := h.engine.EndNow(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(report)
}

func (h *AttendanceHandler) HandleClear(ctx context.Context, _ domain.Message) ([]byte, error) {
	h.engine.Clear(ctx)
	return nil, nil
}

func (h *AttendanceHandler) HandleStatus(ctx context.Context, _ domain.Message) ([]byte, error) {
	return json.Marshal(h.engine.Status(ctx))
}
