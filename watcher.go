package chatsync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coregx/chatsync/metrics"
	"github.com/coregx/chatsync/model"
	"github.com/coregx/chatsync/retry"
)

// WatcherState is the lifecycle state of a Watcher.
type WatcherState int32

const (
	// StateUninitialized means Run has not subscribed yet.
	StateUninitialized WatcherState = iota

	// StateWatching means a change stream is open and being consumed.
	StateWatching

	// StateReconnecting means the stream was lost and a new one is being opened.
	StateReconnecting

	// StateStopped means Run has returned.
	StateStopped
)

// String returns the state name.
func (s WatcherState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWatching:
		return "watching"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Watcher observes the change feed and broadcasts classified domain events.
//
// Classification:
//   - insert → newMessage with the inserted document
//   - update → messageUpdated with the post-update document; when the
//     document is neither carried by the change nor found in the store the
//     event is suppressed
//   - delete → ignored; MessageService.DeleteMessage broadcasts deletions
//     itself because feeds cannot be relied on for the pre-image
//
// A per-event observation error is logged and watching continues. A lost
// stream is reopened with exponential backoff (see WithRetryStrategy).
//
// Thread safety: Run must be called once. State and Ready are safe for concurrent use.
type Watcher struct {
	feed          ChangeFeed
	repo          MessageRepository
	broadcaster   EventBroadcaster
	logger        Logger
	retryStrategy retry.Strategy

	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once
}

// NewWatcher creates a new Watcher with the provided options.
//
// Required options:
//   - WithFeed: change feed and message repository
//   - WithBroadcaster: push layer
//   - WithLogger: logger instance
//
// Optional options:
//   - WithRetryStrategy: resubscription backoff (default: retry.DefaultStrategy())
func NewWatcher(opts ...Option) (*Watcher, error) {
	w := &Watcher{
		retryStrategy: retry.DefaultStrategy(),
		ready:         make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if w.feed == nil {
		return nil, NewError(ErrCodeConfiguration, "ChangeFeed is required (use WithFeed)")
	}
	if w.repo == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithFeed)")
	}
	if w.broadcaster == nil {
		return nil, NewError(ErrCodeConfiguration, "EventBroadcaster is required (use WithBroadcaster)")
	}
	if w.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	return w, nil
}

// State returns the current lifecycle state.
func (w *Watcher) State() WatcherState {
	return WatcherState(w.state.Load())
}

// Ready is closed once the first subscription is established.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

func (w *Watcher) setState(s WatcherState) {
	w.state.Store(int32(s))
}

// Run subscribes to the feed and dispatches changes until ctx is done.
//
// It returns nil when ctx is cancelled and an unavailability error when the
// feed could not be (re)opened within the retry strategy.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.setState(StateStopped)

	stream, err := w.subscribe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return NewErrorWithCause(ErrCodeStoreUnavailable, "failed to subscribe to change feed", err)
	}
	defer func() {
		if stream != nil {
			_ = stream.Close()
		}
	}()

	w.setState(StateWatching)
	w.readyOnce.Do(func() { close(w.ready) })
	w.logger.Info("👀 Watching change feed")

	for {
		change, err := stream.Next(ctx)
		if err == nil {
			w.dispatch(ctx, change)
			continue
		}

		if ctx.Err() != nil {
			w.logger.Info("Change feed watcher stopped")
			return nil
		}

		if IsObservation(err) {
			metrics.FeedObservationErrors.Inc()
			w.logger.Warnf("⚠️ Change feed observation error: %v", err)
			continue
		}

		w.logger.Errorf("Change stream lost: %v", err)
		w.logger.Debugf("Resubscribing with %s", w.retryStrategy.GetRetrySchedule())
		_ = stream.Close()
		stream = nil

		w.setState(StateReconnecting)
		metrics.FeedReconnects.Inc()

		stream, err = w.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return NewErrorWithCause(ErrCodeStoreUnavailable, "failed to resubscribe to change feed", err)
		}

		w.setState(StateWatching)
		w.logger.Info("✅ Change feed resubscribed")
	}
}

func (w *Watcher) subscribe(ctx context.Context) (ChangeStream, error) {
	var stream ChangeStream
	err := w.retryStrategy.Do(ctx, func(ctx context.Context) error {
		s, err := w.feed.Watch(ctx)
		if err != nil {
			return err
		}
		stream = s
		return nil
	}, func(error) bool {
		return ctx.Err() == nil
	}, func(attempt int, err error) {
		w.logger.Warnf("Change feed subscription attempt %d failed: %v (retrying in %v)",
			attempt, err, w.retryStrategy.CalculateRetryDelay(attempt))
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// dispatch classifies a change and broadcasts the resulting event.
func (w *Watcher) dispatch(ctx context.Context, change model.Change) {
	metrics.FeedChanges.WithLabelValues(string(change.Op)).Inc()

	var event string
	switch change.Op {
	case model.ChangeInsert:
		event = model.EventNewMessage
	case model.ChangeUpdate:
		event = model.EventMessageUpdated
	case model.ChangeDelete:
		w.logger.Debugf("Ignoring delete change for %s", change.MessageID)
		return
	default:
		w.logger.Warnf("⚠️ Unknown change operation %q for %s", change.Op, change.MessageID)
		return
	}

	doc, ok := w.document(ctx, change)
	if !ok {
		return
	}

	if err := w.broadcaster.Broadcast(ctx, event, doc); err != nil {
		w.logger.Warnf("Failed to broadcast %s for %s: %v", event, doc.ID, err)
	}
}

// document returns the full post-change document, looking it up when the
// change does not carry it. ok=false suppresses the event.
func (w *Watcher) document(ctx context.Context, change model.Change) (model.Message, bool) {
	if change.Document != nil {
		return *change.Document, true
	}

	doc, err := w.repo.FindByID(ctx, change.MessageID)
	if err != nil {
		if IsNotFound(err) {
			w.logger.Debugf("Suppressing %s event for %s: document no longer exists", change.Op, change.MessageID)
		} else {
			w.logger.Warnf("Suppressing %s event for %s: lookup failed: %v", change.Op, change.MessageID, err)
		}
		return model.Message{}, false
	}
	return doc, true
}
