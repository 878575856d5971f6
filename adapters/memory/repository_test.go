package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepository_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	msg := model.NewMessage("m1", "555", "Alice", "hi", 1000)

	inserted, err := repo.InsertIfAbsent(ctx, msg)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := msg
	dup.Text = "changed"
	inserted, err = repo.InsertIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := repo.FindByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "hi", stored.Text, "duplicate insert must not overwrite")
}

func TestMessageRepository_ConcurrentInsertsSameID(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := repo.InsertIfAbsent(ctx, model.NewMessage("same", "555", "", "", 1))
			assert.NoError(t, err)
			if inserted {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, repo.Len())
}

func TestMessageRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	_, _ = repo.InsertIfAbsent(ctx, model.NewMessage("m1", "555", "Alice", "hi", 1000))

	updated, ok, err := repo.UpdateStatus(ctx, "m1", model.StatusRead)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.StatusRead, updated.Status)
	assert.Equal(t, "hi", updated.Text)

	// out-of-order receipts simply overwrite
	updated, ok, err = repo.UpdateStatus(ctx, "m1", model.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.StatusDelivered, updated.Status)

	_, ok, err = repo.UpdateStatus(ctx, "missing", model.StatusRead)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, repo.Len())
}

func TestMessageRepository_DeleteByID(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	msg := model.NewMessage("m1", "555", "Alice", "hi", 1000)
	_, _ = repo.InsertIfAbsent(ctx, msg)

	deleted, ok, err := repo.DeleteByID(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, msg, deleted)

	_, err = repo.FindByID(ctx, "m1")
	assert.True(t, chatsync.IsNotFound(err))

	_, ok, err = repo.DeleteByID(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	for _, m := range []model.Message{
		model.NewMessage("a2", "111", "Alice", "second", 2000),
		model.NewMessage("a1", "111", "Alice", "first", 1000),
		model.NewMessage("b1", "222", "Bob", "yo", 1500),
	} {
		_, err := repo.InsertIfAbsent(ctx, m)
		require.NoError(t, err)
	}

	messages, err := repo.FindByConversation(ctx, "111")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "a1", messages[0].ID)
	assert.Equal(t, "a2", messages[1].ID)

	empty, err := repo.FindByConversation(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	conversations, err := repo.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, "111", conversations[0].ConversationID)
	assert.Equal(t, "second", conversations[0].LastMessageText)
	assert.Equal(t, "222", conversations[1].ConversationID)
}
