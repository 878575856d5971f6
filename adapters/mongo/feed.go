package mongo

import (
	"context"
	"fmt"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/model"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Feed is a chatsync.ChangeFeed backed by a collection change stream.
// Updates are delivered with the post-update document (UpdateLookup).
type Feed struct {
	coll *mongo.Collection
}

// NewFeed creates a change feed on the repository's collection.
func NewFeed(repo *MessageRepository) *Feed {
	return &Feed{coll: repo.Collection()}
}

// Watch opens a change stream.
func (f *Feed) Watch(ctx context.Context) (chatsync.ChangeStream, error) {
	cs, err := f.coll.Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, chatsync.NewErrorWithCause(chatsync.ErrCodeStoreUnavailable, "failed to open change stream", err)
	}
	return &stream{cs: cs}, nil
}

type stream struct {
	cs *mongo.ChangeStream
}

// changeEvent is the subset of a change stream event the watcher needs.
type changeEvent struct {
	OperationType string         `bson:"operationType"`
	FullDocument  *model.Message `bson:"fullDocument"`
	DocumentKey   struct {
		ID bson.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
}

func (s *stream) Next(ctx context.Context) (model.Change, error) {
	if !s.cs.Next(ctx) {
		if err := ctx.Err(); err != nil {
			return model.Change{}, err
		}
		if err := s.cs.Err(); err != nil {
			return model.Change{}, chatsync.NewErrorWithCause(chatsync.ErrCodeStoreUnavailable, "change stream failed", err)
		}
		return model.Change{}, chatsync.ErrStreamClosed
	}

	var event changeEvent
	if err := s.cs.Decode(&event); err != nil {
		return model.Change{}, chatsync.NewErrorWithCause(chatsync.ErrCodeFeedObservation, "failed to decode change event", err)
	}
	return toChange(event)
}

func (s *stream) Close() error {
	return s.cs.Close(context.Background())
}

// toChange maps a change stream event to a model.Change.
//
// Delete events only carry the ObjectID, which is reported as MessageID.
// The watcher ignores deletes, so the domain id is not needed.
func toChange(event changeEvent) (model.Change, error) {
	switch event.OperationType {
	case "insert", "update", "replace":
		op := model.ChangeInsert
		if event.OperationType != "insert" {
			op = model.ChangeUpdate
		}

		change := model.Change{Op: op, Document: event.FullDocument}
		if event.FullDocument != nil {
			change.MessageID = event.FullDocument.ID
		}
		return change, nil

	case "delete":
		return model.Change{Op: model.ChangeDelete, MessageID: event.DocumentKey.ID.Hex()}, nil

	default:
		return model.Change{}, chatsync.NewError(chatsync.ErrCodeFeedObservation,
			fmt.Sprintf("unsupported change stream operation %q", event.OperationType))
	}
}
