package chatsync

import (
	"context"

	"github.com/coregx/chatsync/model"
)

// MessageRepository defines the persistence interface for chat messages.
// It is the single source of truth of the system.
//
// Implementations must be safe for concurrent use. Every operation is durably
// committed before it returns. Connectivity failures must be reported with
// ErrCodeStoreUnavailable so callers can tell them apart from per-item failures.
type MessageRepository interface {
	// InsertIfAbsent stores m unless a message with the same ID exists.
	// It returns inserted=false (and no error) for an existing ID. The check
	// must be atomic: of two concurrent inserts with the same ID exactly one
	// reports inserted=true.
	InsertIfAbsent(ctx context.Context, m model.Message) (bool, error)

	// UpdateStatus overwrites the status of the message with the given ID and
	// returns the updated message. updated=false means no such message.
	UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, bool, error)

	// DeleteByID removes the message and returns the deleted document.
	// deleted=false means no such message.
	DeleteByID(ctx context.Context, id string) (model.Message, bool, error)

	// FindByID retrieves a message by ID.
	// Returns ErrNotFound if not found.
	FindByID(ctx context.Context, id string) (model.Message, error)

	// FindByConversation retrieves all messages of a conversation ordered by
	// timestamp ascending. Returns an empty slice for unknown conversations.
	FindByConversation(ctx context.Context, conversationID string) ([]model.Message, error)

	// ListConversations returns the derived conversation view ordered by
	// LastTimestamp descending.
	ListConversations(ctx context.Context) ([]model.Conversation, error)
}

// ChangeFeed delivers committed store mutations without polling.
type ChangeFeed interface {
	// Watch opens a new subscription. Changes committed before Watch returns
	// are not delivered.
	Watch(ctx context.Context) (ChangeStream, error)
}

// ChangeStream is an open change feed subscription.
type ChangeStream interface {
	// Next blocks until the next change is available.
	//
	// An error for which IsObservation reports true concerns a single change;
	// the stream is still usable. Any other error means the subscription is
	// lost and the caller must open a new one.
	Next(ctx context.Context) (model.Change, error)

	// Close releases the subscription.
	Close() error
}

// ChangeRecorder receives changes committed by a repository that has no
// native change feed. LocalFeed implements it.
type ChangeRecorder interface {
	Record(change model.Change)
}
