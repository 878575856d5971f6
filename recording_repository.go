package chatsync

import (
	"context"

	"github.com/coregx/chatsync/model"
)

// RecordingRepository decorates a MessageRepository and reports every
// committed write to a ChangeRecorder. Wrap stores that have no native change
// feed with it and hand the recorder (a LocalFeed) to the Watcher.
type RecordingRepository struct {
	MessageRepository
	recorder ChangeRecorder
}

// NewRecordingRepository wraps repo so that writes are recorded to recorder.
func NewRecordingRepository(repo MessageRepository, recorder ChangeRecorder) *RecordingRepository {
	return &RecordingRepository{MessageRepository: repo, recorder: recorder}
}

// InsertIfAbsent records an insert change when the message was stored.
func (r *RecordingRepository) InsertIfAbsent(ctx context.Context, m model.Message) (bool, error) {
	inserted, err := r.MessageRepository.InsertIfAbsent(ctx, m)
	if err == nil && inserted {
		doc := m
		r.recorder.Record(model.Change{Op: model.ChangeInsert, MessageID: m.ID, Document: &doc})
	}
	return inserted, err
}

// UpdateStatus records an update change with the post-update document.
func (r *RecordingRepository) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, bool, error) {
	m, updated, err := r.MessageRepository.UpdateStatus(ctx, id, status)
	if err == nil && updated {
		doc := m
		r.recorder.Record(model.Change{Op: model.ChangeUpdate, MessageID: id, Document: &doc})
	}
	return m, updated, err
}

// DeleteByID records a delete change. Like native feeds, it carries no pre-image.
func (r *RecordingRepository) DeleteByID(ctx context.Context, id string) (model.Message, bool, error) {
	m, deleted, err := r.MessageRepository.DeleteByID(ctx, id)
	if err == nil && deleted {
		r.recorder.Record(model.Change{Op: model.ChangeDelete, MessageID: id})
	}
	return m, deleted, err
}
