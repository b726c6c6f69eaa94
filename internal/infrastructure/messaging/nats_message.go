// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/nats-io/nats.go"
)

// NatsMessage adapts *nats.Msg to domain.Message.
type NatsMessage struct {
	msg *nats.Msg
}

var _ domain.Message = (*NatsMessage)(nil)

// NewNatsMessage wraps msg.
func NewNatsMessage(msg *nats.Msg) *NatsMessage {
	return &NatsMessage{msg: msg}
}

func (m *NatsMessage) Subject() string { return m.msg.Subject }

func (m *NatsMessage) Data() []byte { return m.msg.Data }

func (m *NatsMessage) HasReply() bool { return m.msg.Reply != "" }

func (m *NatsMessage) Respond(data []byte) error {
	return m.msg.Respond(data)
}
