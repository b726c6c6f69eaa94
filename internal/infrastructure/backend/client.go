// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package backend delivers attendance reports to the attendance backend API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// DefaultClientTimeout bounds a single submission attempt.
const DefaultClientTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is read into logs.
const maxErrorBody = 4 << 10

// Config holds the backend client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements domain.AttendanceBackend over HTTP.
type Client struct {
	config    Config
	transport http.RoundTripper
}

var _ domain.AttendanceBackend = (*Client)(nil)

// errorResponse is the error body returned by the backend.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewClient creates a backend client. Requests are traced with otelhttp.
func NewClient(config Config) *Client {
	return NewClientWithTransport(config, http.DefaultTransport)
}

// NewClientWithTransport creates a backend client on top of base.
func NewClientWithTransport(config Config, base http.RoundTripper) *Client {
	// Strip trailing slash from base URL to prevent double slashes in URL construction
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = DefaultClientTimeout
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{
		config:    config,
		transport: otelhttp.NewTransport(base),
	}
}

// httpClient returns a client that attaches bearer when it is set. The
// session token changes over the life of a session, so the token source is
// bound per submission.
func (c *Client) httpClient(bearer string) *http.Client {
	transport := c.transport
	if bearer != "" {
		transport = &oauth2.Transport{
			Base: c.transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: bearer,
				TokenType:   "Bearer",
			}),
		}
	}
	return &http.Client{
		Timeout:   c.config.Timeout,
		Transport: transport,
	}
}

// Submit POSTs a report to the submission endpoint.
func (c *Client) Submit(ctx context.Context, submission domain.Submission) error {
	if c.config.BaseURL == "" {
		return domain.NewUnavailableError("attendance backend is not configured")
	}

	url := c.config.BaseURL + submission.Endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(submission.Payload))
	if err != nil {
		return domain.NewInternalError("failed to create request", err)
	}
	req.Header.Set("Content-Type", constants.ContentTypeJSON)
	req.Header.Set("Accept", constants.ContentTypeJSON)
	if submission.SubmissionKey != "" {
		req.Header.Set(constants.SubmissionKeyHeader, submission.SubmissionKey)
	}

	slog.DebugContext(ctx, "attendance backend request",
		"url", url,
		"submission_key", submission.SubmissionKey,
		"authenticated", submission.BearerToken != "",
		"bytes", len(submission.Payload),
	)

	resp, err := c.httpClient(submission.BearerToken).Do(req)
	if err != nil {
		return domain.NewUnavailableError("attendance backend request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		slog.DebugContext(ctx, "attendance backend response", "status_code", resp.StatusCode)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	slog.WarnContext(ctx, "attendance backend response error",
		"status_code", resp.StatusCode,
		"body", string(body),
	)
	return mapHTTPError(resp.StatusCode, body)
}

func mapHTTPError(statusCode int, body []byte) error {
	var errMsg errorResponse
	_ = json.Unmarshal(body, &errMsg)

	message := errMsg.Message
	if message == "" {
		message = errMsg.Error
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d error", statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return domain.NewUnauthorizedError(fmt.Sprintf("authentication/authorization failed: %s", message))
	case statusCode == http.StatusConflict:
		return domain.NewConflictError(message)
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		return domain.NewUnavailableError(message)
	case statusCode >= 500:
		return domain.NewUnavailableError(message)
	case statusCode == http.StatusNotFound:
		return domain.NewNotFoundError(message)
	default:
		return domain.NewValidationError(message)
	}
}
