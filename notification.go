package chatsync

import (
	"context"

	"github.com/coregx/chatsync/model"
)

// EventBroadcaster pushes domain events to connected clients.
//
// Broadcast is fire-and-forget: it must not block on slow clients and gives no
// delivery guarantee beyond the sessions connected at call time. The hub
// package provides the WebSocket implementation.
type EventBroadcaster interface {
	// Broadcast sends event with the message as payload to every connected session.
	Broadcast(ctx context.Context, event string, message model.Message) error
}

// NoOpBroadcaster is a no-op implementation of EventBroadcaster.
// Use this when no push layer is attached (batch ingestion, tests).
type NoOpBroadcaster struct{}

// Broadcast does nothing.
func (n *NoOpBroadcaster) Broadcast(_ context.Context, _ string, _ model.Message) error {
	return nil
}

// LoggingBroadcaster logs every event and forwards it to an optional next broadcaster.
type LoggingBroadcaster struct {
	logger Logger
	next   EventBroadcaster
}

// NewLoggingBroadcaster creates a new LoggingBroadcaster. next may be nil.
func NewLoggingBroadcaster(logger Logger, next EventBroadcaster) *LoggingBroadcaster {
	return &LoggingBroadcaster{logger: logger, next: next}
}

// Broadcast logs the event and forwards it.
func (b *LoggingBroadcaster) Broadcast(ctx context.Context, event string, message model.Message) error {
	switch event {
	case model.EventNewMessage:
		b.logger.Infof("📨 %s: id=%s, wa_id=%s", event, message.ID, message.ConversationID)
	case model.EventMessageUpdated:
		b.logger.Infof("🔁 %s: id=%s, status=%s", event, message.ID, message.Status)
	case model.EventMessageDeleted:
		b.logger.Infof("🗑️ %s: id=%s, wa_id=%s", event, message.ID, message.ConversationID)
	default:
		b.logger.Debugf("%s: id=%s", event, message.ID)
	}

	if b.next == nil {
		return nil
	}
	return b.next.Broadcast(ctx, event, message)
}
