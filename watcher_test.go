package chatsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/adapters/memory"
	"github.com/coregx/chatsync/model"
	"github.com/coregx/chatsync/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher_RequiresDependencies(t *testing.T) {
	_, err := chatsync.NewWatcher(chatsync.WithLogger(&chatsync.NoopLogger{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ChangeFeed is required")

	_, err = chatsync.NewWatcher(
		chatsync.WithFeed(chatsync.NewLocalFeed(0), memory.NewMessageRepository()),
		chatsync.WithLogger(&chatsync.NoopLogger{}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EventBroadcaster is required")

	_, err = chatsync.NewWatcher(chatsync.WithRetryStrategy(retry.Strategy{}))
	require.Error(t, err)
}

func TestWatcher_InsertAndUpdateEvents(t *testing.T) {
	ctx := context.Background()
	s := newSystem(t)
	assert.Equal(t, chatsync.StateUninitialized, s.watcher.State())
	s.startWatcher(t)
	assert.Equal(t, chatsync.StateWatching, s.watcher.State())

	_, err := s.ingestor.Ingest(ctx, []model.PayloadUnit{insertUnit("m1", "555", "Alice", "hi", "1000")})
	require.NoError(t, err)

	created := s.broadcaster.next(t)
	assert.Equal(t, model.EventNewMessage, created.Event)
	assert.Equal(t, model.NewMessage("m1", "555", "Alice", "hi", 1000), created.Message)

	// Scenario C: status update pushes the full updated document
	_, err = s.ingestor.Ingest(ctx, []model.PayloadUnit{statusUnit("m1", "read")})
	require.NoError(t, err)

	updated := s.broadcaster.next(t)
	assert.Equal(t, model.EventMessageUpdated, updated.Event)
	assert.Equal(t, "m1", updated.Message.ID)
	assert.Equal(t, "hi", updated.Message.Text)
	assert.Equal(t, model.StatusRead, updated.Message.Status)
}

func TestWatcher_DuplicateIngestEmitsNothing(t *testing.T) {
	ctx := context.Background()
	s := newSystem(t)
	s.startWatcher(t)

	batch := []model.PayloadUnit{insertUnit("m1", "555", "Alice", "hi", "1000")}
	_, _ = s.ingestor.Ingest(ctx, batch)
	s.broadcaster.next(t)

	_, _ = s.ingestor.Ingest(ctx, batch)
	s.broadcaster.expectNone(t)
}

func TestWatcher_DeleteChangesAreIgnored(t *testing.T) {
	ctx := context.Background()
	s := newSystem(t)
	s.startWatcher(t)

	_, _ = s.store.InsertIfAbsent(ctx, model.NewMessage("m1", "555", "Alice", "hi", 1000))
	_, _, err := s.repo.DeleteByID(ctx, "m1")
	require.NoError(t, err)

	s.broadcaster.expectNone(t)
}

// scriptedFeed replays scripted stream results and counts subscriptions.
type scriptedFeed struct {
	mu       sync.Mutex
	watchErr []error
	streams  []chatsync.ChangeStream
	watches  int
}

func (f *scriptedFeed) Watch(ctx context.Context) (chatsync.ChangeStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.watches++
	if len(f.watchErr) > 0 {
		err := f.watchErr[0]
		f.watchErr = f.watchErr[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.streams) == 0 {
		return nil, errors.New("no more streams")
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

func (f *scriptedFeed) Watches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watches
}

type step struct {
	change model.Change
	err    error
}

// scriptedStream returns its steps and then blocks until ctx is done.
type scriptedStream struct {
	steps []step
}

func (s *scriptedStream) Next(ctx context.Context) (model.Change, error) {
	if len(s.steps) > 0 {
		st := s.steps[0]
		s.steps = s.steps[1:]
		return st.change, st.err
	}
	<-ctx.Done()
	return model.Change{}, ctx.Err()
}

func (s *scriptedStream) Close() error { return nil }

func fastRetry(attempts int) retry.Strategy {
	return retry.Strategy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, ExponentialBase: 2}
}

func newScriptedWatcher(t *testing.T, feed chatsync.ChangeFeed, repo chatsync.MessageRepository, b chatsync.EventBroadcaster, attempts int) *chatsync.Watcher {
	t.Helper()
	return newScriptedWatcherWithLogger(t, feed, repo, b, attempts, &chatsync.NoopLogger{})
}

func newScriptedWatcherWithLogger(t *testing.T, feed chatsync.ChangeFeed, repo chatsync.MessageRepository, b chatsync.EventBroadcaster, attempts int, logger chatsync.Logger) *chatsync.Watcher {
	t.Helper()
	w, err := chatsync.NewWatcher(
		chatsync.WithFeed(feed, repo),
		chatsync.WithBroadcaster(b),
		chatsync.WithLogger(logger),
		chatsync.WithRetryStrategy(fastRetry(attempts)),
	)
	require.NoError(t, err)
	return w
}

func TestWatcher_ObservationErrorDoesNotStopWatching(t *testing.T) {
	doc := model.NewMessage("m2", "555", "Alice", "after error", 2000)
	feed := &scriptedFeed{streams: []chatsync.ChangeStream{&scriptedStream{steps: []step{
		{err: chatsync.NewError(chatsync.ErrCodeFeedObservation, "undecodable event")},
		{change: model.Change{Op: model.ChangeInsert, MessageID: "m2", Document: &doc}},
	}}}}
	b := newRecordingBroadcaster()
	w := newScriptedWatcher(t, feed, memory.NewMessageRepository(), b, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	e := b.next(t)
	assert.Equal(t, "m2", e.Message.ID)
	assert.Equal(t, 1, feed.Watches())

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, chatsync.StateStopped, w.State())
}

func TestWatcher_ResubscribesAfterLostStream(t *testing.T) {
	doc := model.NewMessage("m3", "555", "Alice", "after reconnect", 3000)
	feed := &scriptedFeed{
		streams: []chatsync.ChangeStream{
			&scriptedStream{steps: []step{{err: errors.New("connection reset")}}},
			&scriptedStream{steps: []step{{change: model.Change{Op: model.ChangeInsert, MessageID: "m3", Document: &doc}}}},
		},
		watchErr: []error{nil, errors.New("still down")},
	}
	b := newRecordingBroadcaster()
	logger := &capturingLogger{}
	w := newScriptedWatcherWithLogger(t, feed, memory.NewMessageRepository(), b, 5, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	e := b.next(t)
	assert.Equal(t, "m3", e.Message.ID)
	assert.Equal(t, 3, feed.Watches(), "one initial subscription, one failed and one successful resubscription")
	assert.Equal(t, chatsync.StateWatching, w.State())
	assert.True(t, logger.contains("Retry Schedule"), "the resubscription schedule is logged")

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcher_GivesUpAfterRetryBudget(t *testing.T) {
	feed := &scriptedFeed{}
	w := newScriptedWatcher(t, feed, memory.NewMessageRepository(), newRecordingBroadcaster(), 3)

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, chatsync.IsUnavailable(err))
	assert.Equal(t, 3, feed.Watches())
	assert.Equal(t, chatsync.StateStopped, w.State())
}

func TestWatcher_LooksUpMissingDocuments(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMessageRepository()
	stored := model.Message{ID: "m1", ConversationID: "555", Text: "hi", Timestamp: 1000, Status: model.StatusDelivered}
	_, _ = repo.InsertIfAbsent(ctx, stored)

	feed := &scriptedFeed{streams: []chatsync.ChangeStream{&scriptedStream{steps: []step{
		{change: model.Change{Op: model.ChangeUpdate, MessageID: "gone"}},
		{change: model.Change{Op: model.ChangeUpdate, MessageID: "m1"}},
	}}}}
	b := newRecordingBroadcaster()
	w := newScriptedWatcher(t, feed, repo, b, 1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = w.Run(runCtx) }()

	e := b.next(t)
	assert.Equal(t, model.EventMessageUpdated, e.Event)
	assert.Equal(t, stored, e.Message, "the update for a vanished document is suppressed")
	b.expectNone(t)
}

func TestWatcherState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", chatsync.StateUninitialized.String())
	assert.Equal(t, "watching", chatsync.StateWatching.String())
	assert.Equal(t, "reconnecting", chatsync.StateReconnecting.String())
	assert.Equal(t, "stopped", chatsync.StateStopped.String())
}
