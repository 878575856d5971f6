// Package memory provides an in-memory MessageRepository.
//
// It is used by tests and by the server's "memory" driver. Pair it with
// chatsync.RecordingRepository and chatsync.LocalFeed to get a change feed.
package memory

import (
	"context"
	"sync"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/model"
)

// MessageRepository implements chatsync.MessageRepository on a map.
type MessageRepository struct {
	mu       sync.RWMutex
	messages map[string]model.Message
}

// NewMessageRepository creates an empty repository.
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{messages: make(map[string]model.Message)}
}

// InsertIfAbsent stores m unless its ID exists. The check and the write happen
// under one lock, so concurrent inserts of the same ID store exactly one copy.
func (r *MessageRepository) InsertIfAbsent(_ context.Context, m model.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[m.ID]; ok {
		return false, nil
	}
	r.messages[m.ID] = m
	return true, nil
}

// UpdateStatus overwrites the status of a message.
func (r *MessageRepository) UpdateStatus(_ context.Context, id string, status model.Status) (model.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return model.Message{}, false, nil
	}
	m.Status = status
	r.messages[id] = m
	return m, true, nil
}

// DeleteByID removes a message and returns it.
func (r *MessageRepository) DeleteByID(_ context.Context, id string) (model.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return model.Message{}, false, nil
	}
	delete(r.messages, id)
	return m, true, nil
}

// FindByID retrieves a message by ID.
func (r *MessageRepository) FindByID(_ context.Context, id string) (model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.messages[id]
	if !ok {
		return model.Message{}, chatsync.ErrNotFound
	}
	return m, nil
}

// FindByConversation returns the messages of a conversation, oldest first.
func (r *MessageRepository) FindByConversation(_ context.Context, conversationID string) ([]model.Message, error) {
	r.mu.RLock()
	messages := make([]model.Message, 0)
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			messages = append(messages, m)
		}
	}
	r.mu.RUnlock()

	model.SortMessages(messages)
	return messages, nil
}

// ListConversations projects the stored messages into conversations.
func (r *MessageRepository) ListConversations(_ context.Context) ([]model.Conversation, error) {
	return model.ProjectConversations(r.snapshot()), nil
}

// Len returns the number of stored messages.
func (r *MessageRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

func (r *MessageRepository) snapshot() []model.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messages := make([]model.Message, 0, len(r.messages))
	for _, m := range r.messages {
		messages = append(messages, m)
	}
	return messages
}
