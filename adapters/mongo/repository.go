// Package mongo provides the MongoDB implementation of chatsync.MessageRepository
// and a change feed backed by native change streams.
//
// Messages live in one collection (DefaultCollection) with a unique index on
// the "id" field. Change streams require a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/model"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	// DefaultCollection is the collection holding chat messages.
	DefaultCollection = "processed_messages"

	// DefaultTimeout bounds connection establishment and every store operation.
	DefaultTimeout = 5 * time.Second
)

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetConnectTimeout(DefaultTimeout).
		SetServerSelectionTimeout(DefaultTimeout))
	if err != nil {
		return nil, chatsync.NewErrorWithCause(chatsync.ErrCodeConfiguration, "invalid mongo configuration", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, chatsync.NewErrorWithCause(chatsync.ErrCodeStoreUnavailable, "failed to reach mongo", err)
	}

	return client, nil
}

// MessageRepository implements chatsync.MessageRepository on a MongoDB collection.
type MessageRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMessageRepository creates a repository on the default collection of db.
func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return NewMessageRepositoryWithCollection(db, DefaultCollection)
}

// NewMessageRepositoryWithCollection creates a repository on a custom collection.
func NewMessageRepositoryWithCollection(db *mongo.Database, collection string) *MessageRepository {
	return &MessageRepository{coll: db.Collection(collection), timeout: DefaultTimeout}
}

// Collection returns the underlying collection.
func (r *MessageRepository) Collection() *mongo.Collection {
	return r.coll
}

// EnsureIndexes creates the unique id index and the conversation index.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_id"),
		},
		{
			Keys:    bson.D{{Key: "wa_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("conversation_timestamp"),
		},
	})
	if err != nil {
		return wrapError("failed to create indexes", err)
	}
	return nil
}

// InsertIfAbsent stores m unless a message with the same ID exists.
func (r *MessageRepository) InsertIfAbsent(ctx context.Context, m model.Message) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, wrapError("failed to insert message", err)
	}
	return true, nil
}

// UpdateStatus overwrites the status of a message and returns the updated document.
func (r *MessageRepository) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m model.Message
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"status": string(status)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, wrapError("failed to update message status", err)
	}
	return m, true, nil
}

// DeleteByID removes a message and returns the deleted document.
func (r *MessageRepository) DeleteByID(ctx context.Context, id string) (model.Message, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m model.Message
	err := r.coll.FindOneAndDelete(ctx, bson.M{"id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, wrapError("failed to delete message", err)
	}
	return m, true, nil
}

// FindByID retrieves a message by ID.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (model.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m model.Message
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
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

	cursor, err := r.coll.Find(ctx,
		bson.M{"wa_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "id", Value: 1}}),
	)
	if err != nil {
		return nil, wrapError("failed to find conversation messages", err)
	}

	messages := []model.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, wrapError("failed to decode conversation messages", err)
	}
	return messages, nil
}

// conversationRow is one result of the conversation aggregation.
type conversationRow struct {
	ConversationID string       `bson:"_id"`
	Name           string       `bson:"name"`
	LastMessage    string       `bson:"lastMessage"`
	LastTimestamp  int64        `bson:"lastTimestamp"`
	Status         model.Status `bson:"status"`
}

// conversationPipeline groups messages by conversation, keeping the latest
// message of each. Equal timestamps fall back to the greater id.
func conversationPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}, {Key: "id", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$wa_id"},
			{Key: "name", Value: bson.D{{Key: "$first", Value: "$name"}}},
			{Key: "lastMessage", Value: bson.D{{Key: "$first", Value: "$text"}}},
			{Key: "lastTimestamp", Value: bson.D{{Key: "$first", Value: "$timestamp"}}},
			{Key: "status", Value: bson.D{{Key: "$first", Value: "$status"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastTimestamp", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

// ListConversations derives the conversation list with an aggregation over
// the whole collection.
func (r *MessageRepository) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.coll.Aggregate(ctx, conversationPipeline())
	if err != nil {
		return nil, wrapError("failed to aggregate conversations", err)
	}

	var rows []conversationRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, wrapError("failed to decode conversations", err)
	}

	conversations := make([]model.Conversation, 0, len(rows))
	for _, row := range rows {
		conversations = append(conversations, model.Conversation{
			ConversationID:  row.ConversationID,
			DisplayName:     row.Name,
			LastMessageText: row.LastMessage,
			LastTimestamp:   row.LastTimestamp,
			LastStatus:      row.Status,
		})
	}
	return conversations, nil
}

// wrapError classifies a driver error as STORE_UNAVAILABLE or DATABASE_ERROR.
func wrapError(message string, err error) error {
	if isConnectivity(err) {
		return chatsync.NewErrorWithCause(chatsync.ErrCodeStoreUnavailable, message, err)
	}
	return chatsync.NewErrorWithCause(chatsync.ErrCodeDatabase, message, err)
}

func isConnectivity(err error) bool {
	return mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded)
}
