// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/mocks"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/scheduler"
)

// setupHandlerForTesting creates an AttendanceHandler over an engine backed by
// in-memory buckets.
func setupHandlerForTesting() (*AttendanceHandler, *mocks.MockAttendanceBackend) {
	syncKV := store.NewInMemoryKeyValue(store.KVStoreNameSync)
	localKV := store.NewInMemoryKeyValue(store.KVStoreNameLocal)
	kb := store.NewKeyBuilder("")

	backend := &mocks.MockAttendanceBackend{}
	backend.On("Submit", mock.Anything, mock.Anything).Return(nil)

	engine := service.NewAttendanceEngine(service.ServiceConfig{HostConfirmationThreshold: 1}, service.EngineDeps{
		Sessions:    store.NewNatsSessionRepository(syncKV, kb),
		HostLocks:   store.NewNatsHostLockRepository(syncKV, kb),
		Snapshots:   store.NewNatsSnapshotRepository(localKV, kb),
		RetryQueue:  store.NewNatsRetryQueueRepository(localKV, kb),
		Ledger:      store.NewNatsSubmissionLedger(localKV, kb),
		DeadLetters: store.NewNatsDeadLetterRepository(localKV, kb),
		Backend:     backend,
		Publisher:   mocks.NewPermissiveEventPublisher(),
		Clock:       scheduler.NewFake(time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)),
	})
	return NewAttendanceHandler(engine), backend
}

const tickJSON = `{
	"session_key": "abc-defg-hij",
	"observations": [
		{"identity_hint": "avatar-1", "display_name": "Hana Lee", "is_host": true},
		{"display_name": "Alice (Guest) mic_off"}
	],
	"context": {"host_controls_visible": "true", "operator_name": "Hana Lee"}
}`

// send delivers data on subject without expecting a reply.
func send(t *testing.T, h *AttendanceHandler, subject, data string) {
	t.Helper()
	msg := mocks.NewMockMessage([]byte(data), subject)
	msg.On("HasReply").Return(false)
	h.HandleMessage(context.Background(), msg)
	msg.AssertNotCalled(t, "Respond", mock.Anything)
}

// request delivers data on subject and returns the reply.
func request(t *testing.T, h *AttendanceHandler, subject, data string) []byte {
	t.Helper()
	var reply []byte
	msg := mocks.NewMockMessage([]byte(data), subject)
	msg.On("HasReply").Return(true)
	msg.On("Respond", mock.Anything).Run(func(args mock.Arguments) {
		reply, _ = args.Get(0).([]byte)
	}).Return(nil).Once()
	h.HandleMessage(context.Background(), msg)
	msg.AssertExpectations(t)
	return reply
}

func TestAttendanceHandler_TickAndStatus(t *testing.T) {
	h, _ := setupHandlerForTesting()

	send(t, h, models.ObservationsSubject, tickJSON)

	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(request(t, h, models.StatusSubject, ""), &status))
	require.NotNil(t, status.Snapshot)
	assert.Equal(t, "abc-defg-hij", status.Snapshot.SessionKey)
	assert.Equal(t, 2, status.Snapshot.ParticipantCount)
	assert.True(t, status.Snapshot.HostLocked)
	assert.Equal(t, models.SessionActive, status.Session.State)

	names := []string{}
	for _, p := range status.Snapshot.Participants {
		names = append(names, p.DisplayName)
	}
	assert.ElementsMatch(t, []string{"Hana Lee", "Alice"}, names)
}

func TestAttendanceHandler_EndNow(t *testing.T) {
	t.Run("without a session replies with an error", func(t *testing.T) {
		h, backend := setupHandlerForTesting()

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(request(t, h, models.EndNowSubject, ""), &resp))
		assert.NotEmpty(t, resp.Error)
		backend.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("replies with the final report", func(t *testing.T) {
		h, backend := setupHandlerForTesting()
		send(t, h, models.ObservationsSubject, tickJSON)

		var report models.AttendanceReport
		require.NoError(t, json.Unmarshal(request(t, h, models.EndNowSubject, ""), &report))
		assert.Equal(t, models.ReportFinal, report.Kind)
		assert.Equal(t, "abc-defg-hij", report.SessionKey)
		assert.Len(t, report.Participants, 2)
		backend.AssertNumberOfCalls(t, "Submit", 1)
	})
}

func TestAttendanceHandler_ClearResetsSession(t *testing.T) {
	h, _ := setupHandlerForTesting()
	send(t, h, models.ObservationsSubject, tickJSON)
	send(t, h, models.ClearSubject, "")

	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(request(t, h, models.StatusSubject, ""), &status))
	assert.Nil(t, status.Snapshot)
	assert.Equal(t, models.SessionIdle, status.Session.State)
}

func TestAttendanceHandler_SignalsForOtherSessionsAreIgnored(t *testing.T) {
	h, backend := setupHandlerForTesting()
	send(t, h, models.ObservationsSubject, tickJSON)

	send(t, h, models.CloseSubject, `{"session_key":"other-session"}`)
	send(t, h, models.EndMarkerSubject, `{"session_key":"other-session","reason":"banner"}`)

	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(request(t, h, models.StatusSubject, ""), &status))
	assert.Equal(t, string(service.FinalizationIdle), status.Finalization)
	backend.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)

	send(t, h, models.CloseSubject, "")
	require.NoError(t, json.Unmarshal(request(t, h, models.StatusSubject, ""), &status))
	assert.Equal(t, string(service.FinalizationScheduled), status.Finalization)
}

func TestAttendanceHandler_InvalidPayloads(t *testing.T) {
	h, _ := setupHandlerForTesting()

	send(t, h, models.ObservationsSubject, "not json")
	send(t, h, models.VisibilitySubject, "{")
	send(t, h, models.ObservationsSubject, `{"observations":[]}`)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(request(t, h, models.CloseSubject, "{"), &resp))
	assert.Contains(t, resp.Error, "not valid JSON")
}

func TestAttendanceHandler_UnknownSubject(t *testing.T) {
	h, _ := setupHandlerForTesting()

	msg := mocks.NewMockMessage(nil, "lfx.meeting-attendance.unknown")
	msg.On("HasReply").Return(true)
	msg.On("Respond", []byte(nil)).Return(nil).Once()
	h.HandleMessage(context.Background(), msg)
	msg.AssertExpectations(t)
}

func TestAttendanceHandler_Subjects(t *testing.T) {
	h, _ := setupHandlerForTesting()
	assert.ElementsMatch(t, []string{
		models.ObservationsSubject,
		models.VisibilitySubject,
		models.EndMarkerSubject,
		models.CloseSubject,
		models.EndNowSubject,
		models.ClearSubject,
		models.StatusSubject,
	}, h.Subjects())
	assert.False(t, h.HandlerReady())
}

func TestDecodeSignals(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		expected models.HostSignals
		wantErr  bool
	}{
		{
			name:     "empty",
			raw:      nil,
			expected: models.HostSignals{},
		},
		{
			name:     "typed values",
			raw:      map[string]any{"host_controls_visible": true, "operator_name": "Hana"},
			expected: models.HostSignals{HostControlsVisible: true, OperatorName: "Hana"},
		},
		{
			name:     "stringly typed boolean",
			raw:      map[string]any{"host_controls_visible": "true"},
			expected: models.HostSignals{HostControlsVisible: true},
		},
		{
			name:     "numeric boolean",
			raw:      map[string]any{"host_controls_visible": float64(1)},
			expected: models.HostSignals{HostControlsVisible: true},
		},
		{
			name:     "unknown keys are ignored",
			raw:      map[string]any{"layout": "grid"},
			expected: models.HostSignals{},
		},
		{
			name:    "unparseable boolean",
			raw:     map[string]any{"host_controls_visible": "maybe"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals, err := decodeSignals(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, signals)
		})
	}
}
