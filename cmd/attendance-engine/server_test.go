// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
)

type stubHandler struct {
	ready bool
}

func (s stubHandler) HandleMessage(context.Context, domain.Message) {}

func (s stubHandler) HandlerReady() bool { return s.ready }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		path   string
		status int
	}{
		{"livez while starting", false, constants.LivezPath, http.StatusOK},
		{"readyz while starting", false, constants.ReadyzPath, http.StatusServiceUnavailable},
		{"readyz once started", true, constants.ReadyzPath, http.StatusOK},
		{"unknown path", true, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newHealthHandler(stubHandler{ready: tt.ready}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(constants.RequestIDHeader))
		})
	}
}

func TestNewRepositories_MemoryBackend(t *testing.T) {
	syncKV, localKV, err := getKeyValueStores(context.Background(), environment{StoreBackend: storeBackendMemory}, nil)
	assert.NoError(t, err)

	repos := newRepositories(syncKV, localKV, "instance-1")
	assert.NotNil(t, repos.Sessions)
	assert.NotNil(t, repos.HostLocks)
	assert.NotNil(t, repos.Snapshots)
	assert.NotNil(t, repos.RetryQueue)
	assert.NotNil(t, repos.Ledger)
	assert.NotNil(t, repos.DeadLetters)
}
