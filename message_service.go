package chatsync

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/chatsync/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/oklog/ulid/v2"
)

// MessageService is the command/query surface used by the HTTP API.
//
// Key operations:
//   - ListConversations: derived conversation list, most recent first
//   - GetMessages: messages of one conversation, oldest first
//   - CreateMessage: store an outgoing message (broadcast later by the Watcher)
//   - DeleteMessage: remove a message and broadcast messageDeleted itself
//
// Thread safety: Safe for concurrent use.
type MessageService struct {
	repo        MessageRepository
	broadcaster EventBroadcaster
	logger      Logger
	newID       func() string
	now         func() time.Time
}

// ServiceOption is a function that configures a MessageService.
type ServiceOption func(*MessageService) error

// NewMessageService creates a new MessageService with the provided options.
//
// Required options:
//   - WithServiceRepository: message repository
//   - WithServiceBroadcaster: push layer for deletion events
//   - WithServiceLogger: logger instance
//
// Example:
//
//	service, err := chatsync.NewMessageService(
//	    chatsync.WithServiceRepository(repo),
//	    chatsync.WithServiceBroadcaster(hub),
//	    chatsync.WithServiceLogger(logger),
//	)
func NewMessageService(opts ...ServiceOption) (*MessageService, error) {
	s := &MessageService{
		newID: newOutgoingID,
		now:   time.Now,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply message service option", err)
		}
	}

	if s.repo == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithServiceRepository)")
	}
	if s.broadcaster == nil {
		return nil, NewError(ErrCodeConfiguration, "EventBroadcaster is required (use WithServiceBroadcaster)")
	}
	if s.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithServiceLogger)")
	}

	return s, nil
}

// WithServiceRepository sets the message repository. Required.
func WithServiceRepository(repo MessageRepository) ServiceOption {
	return func(s *MessageService) error {
		if repo == nil {
			return fmt.Errorf("repo cannot be nil")
		}
		s.repo = repo
		return nil
	}
}

// WithServiceBroadcaster sets the push layer. Required.
func WithServiceBroadcaster(broadcaster EventBroadcaster) ServiceOption {
	return func(s *MessageService) error {
		if broadcaster == nil {
			return fmt.Errorf("broadcaster cannot be nil")
		}
		s.broadcaster = broadcaster
		return nil
	}
}

// WithServiceLogger sets the logger instance. Required.
func WithServiceLogger(logger Logger) ServiceOption {
	return func(s *MessageService) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithClock overrides the time source used for outgoing message timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *MessageService) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}

// newOutgoingID returns "frontend-" followed by a ULID.
// ULIDs are unique and sort by creation time.
func newOutgoingID() string {
	return model.OutgoingIDPrefix + ulid.Make().String()
}

// CreateMessageRequest represents a request to store an outgoing message.
type CreateMessageRequest struct {
	ConversationID string
	SenderName     string
	Text           string
}

// Validate checks the request.
func (r CreateMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ConversationID, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Text, validation.Required, validation.Length(1, 4096)),
	)
}

// ListConversations returns the conversation list, most recent first.
func (s *MessageService) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	conversations, err := s.repo.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	if conversations == nil {
		conversations = []model.Conversation{}
	}
	return conversations, nil
}

// GetMessages returns the messages of a conversation, oldest first.
// An unknown conversation yields an empty slice.
func (s *MessageService) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	messages, err := s.repo.FindByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}

// CreateMessage stores an outgoing message with a fresh "frontend-" id and status sent.
//
// It does not broadcast: the Watcher observes the insert and emits
// newMessage, so clients receive the message exactly once.
func (s *MessageService) CreateMessage(ctx context.Context, req CreateMessageRequest) (model.Message, error) {
	if err := req.Validate(); err != nil {
		return model.Message{}, NewErrorWithCause(ErrCodeValidation, "invalid message", err)
	}

	msg := model.NewMessage(s.newID(), req.ConversationID, req.SenderName, req.Text, s.now().Unix())

	inserted, err := s.repo.InsertIfAbsent(ctx, msg)
	if err != nil {
		return model.Message{}, err
	}
	if !inserted {
		return model.Message{}, NewError(ErrCodeDatabase, fmt.Sprintf("generated message id %s already exists", msg.ID))
	}

	s.logger.Infof("✅ Stored outgoing message %s for %s", msg.ID, msg.ConversationID)
	return msg, nil
}

// DeleteMessage removes a message and broadcasts messageDeleted with the full
// document captured before deletion.
// Returns ErrNotFound if the message does not exist.
func (s *MessageService) DeleteMessage(ctx context.Context, id string) (model.Message, error) {
	captured, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return model.Message{}, err
	}

	if _, deleted, err := s.repo.DeleteByID(ctx, id); err != nil {
		return model.Message{}, err
	} else if !deleted {
		return model.Message{}, ErrNotFound
	}

	if err := s.broadcaster.Broadcast(ctx, model.EventMessageDeleted, captured); err != nil {
		s.logger.Warnf("Failed to broadcast %s for %s: %v", model.EventMessageDeleted, id, err)
	}

	s.logger.Infof("🗑️ Deleted message %s", id)
	return captured, nil
}
