package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/model"
	"github.com/coregx/relica"
)

// DefaultTablePrefix is the table prefix used by NewMessageRepository.
const DefaultTablePrefix = chatsync.DefaultTablePrefix

// DefaultTimeout bounds every store operation, connection acquisition included.
const DefaultTimeout = 5 * time.Second

// MessageRepository implements chatsync.MessageRepository using Relica.
//
// Insert atomicity comes from the primary key on id: a duplicate insert fails
// in the database and is reported as inserted=false.
type MessageRepository struct {
	db          *relica.DB
	tablePrefix string
	timeout     time.Duration
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return NewMessageRepositoryWithPrefix(sqlDB, driverName, DefaultTablePrefix)
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: prefix,
		timeout:     DefaultTimeout,
	}
}

// SetTimeout overrides DefaultTimeout. Non-positive values are ignored.
func (r *MessageRepository) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + chatsync.MessagesTable
}

// InsertIfAbsent stores m unless a message with the same ID exists.
func (r *MessageRepository) InsertIfAbsent(ctx context.Context, m model.Message) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, wrapError("failed to insert message", err)
	}
	return true, nil
}

// UpdateStatus overwrites the status of a message and returns the updated row.
func (r *MessageRepository) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"status": string(status),
		}).
		Where("id = ?", id).
		Execute()
	if err != nil {
		return model.Message{}, false, wrapError("failed to update message status", err)
	}

	m, err := r.FindByID(ctx, id)
	if chatsync.IsNotFound(err) {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, err
	}
	return m, true, nil
}

// DeleteByID removes a message and returns the row as it was before deletion.
func (r *MessageRepository) DeleteByID(ctx context.Context, id string) (model.Message, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	m, err := r.FindByID(ctx, id)
	if chatsync.IsNotFound(err) {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, err
	}

	// Delete using Model() API - auto WHERE id = ?
	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Delete(); err != nil {
		return model.Message{}, false, wrapError("failed to delete message", err)
	}
	return m, true, nil
}

// FindByID retrieves a message by ID.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (model.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m model.Message
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&m)
	if errors.Is(err, sql.ErrNoRows) {
		return m, chatsync.ErrNotFound
	}
	if err != nil {
		return m, wrapError("failed to load message", err)
	}
	return m, nil
}

// FindByConversation returns the messages of a conversation, oldest first.
func (r *MessageRepository) FindByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var messages []model.Message
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("conversation_id = ?", conversationID).
		OrderBy("timestamp_unix ASC").
		All(&messages)
	if err != nil {
		return nil, wrapError("failed to find conversation messages", err)
	}
	if messages == nil {
		return []model.Message{}, nil
	}

	// equal timestamps are ordered by id
	model.SortMessages(messages)
	return messages, nil
}

// ListConversations derives the conversation list from every stored message.
//
// This is a full table scan per call. The projection runs in Go so the result
// is identical on every driver.
func (r *MessageRepository) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var messages []model.Message
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("conversation_id ASC").
		All(&messages)
	if err != nil {
		return nil, wrapError("failed to list conversations", err)
	}
	return model.ProjectConversations(messages), nil
}
