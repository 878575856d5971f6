package relica

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/model"
	"github.com/lib/pq"
)

// NotifyChannel is the Postgres NOTIFY channel written by the trigger on the
// default messages table. With a custom prefix the channel is the table name.
const NotifyChannel = DefaultTablePrefix + chatsync.MessagesTable

const (
	minReconnectInterval = 1 * time.Second
	maxReconnectInterval = 30 * time.Second
)

// PostgresFeed is a chatsync.ChangeFeed backed by LISTEN/NOTIFY.
//
// Insert and update notifications carry the changed row, so the watcher
// broadcasts the document as of the change. Rows too large for a NOTIFY
// payload and deletes carry the id only. Every Watch opens a dedicated
// listener connection.
type PostgresFeed struct {
	dsn     string
	channel string
	timeout time.Duration
	logger  chatsync.Logger
}

// NewPostgresFeed creates a feed listening on NotifyChannel.
func NewPostgresFeed(dsn string, logger chatsync.Logger) *PostgresFeed {
	return NewPostgresFeedWithPrefix(dsn, DefaultTablePrefix, logger)
}

// NewPostgresFeedWithPrefix creates a feed for the messages table of prefix.
func NewPostgresFeedWithPrefix(dsn, prefix string, logger chatsync.Logger) *PostgresFeed {
	return &PostgresFeed{
		dsn:     dsn,
		channel: prefix + chatsync.MessagesTable,
		timeout: DefaultTimeout,
		logger:  logger,
	}
}

// Channel returns the NOTIFY channel the feed listens on.
func (f *PostgresFeed) Channel() string {
	return f.channel
}

// Watch opens a listener and waits at most DefaultTimeout for it to connect.
func (f *PostgresFeed) Watch(ctx context.Context) (chatsync.ChangeStream, error) {
	listener := pq.NewListener(f.dsn, minReconnectInterval, maxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				f.logger.Warnf("Postgres listener event %d: %v", event, err)
			}
		})

	// Listen blocks until the listener connects and ignores ctx.
	connected := make(chan error, 1)
	go func() {
		if err := listener.Listen(f.channel); err != nil {
			connected <- err
			return
		}
		connected <- listener.Ping()
	}()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case err := <-connected:
		if err != nil {
			_ = listener.Close()
			return nil, chatsync.NewErrorWithCause(chatsync.ErrCodeStoreUnavailable, "failed to listen on "+f.channel, err)
		}
	case <-timer.C:
		_ = listener.Close()
		return nil, chatsync.NewError(chatsync.ErrCodeStoreUnavailable,
			fmt.Sprintf("postgres listener not connected within %v", f.timeout))
	case <-ctx.Done():
		_ = listener.Close()
		return nil, ctx.Err()
	}

	f.logger.Infof("📡 Listening for changes on %s", f.channel)
	return &postgresStream{listener: listener}, nil
}

type postgresStream struct {
	listener  *pq.Listener
	closeOnce sync.Once
	closeErr  error
}

func (s *postgresStream) Next(ctx context.Context) (model.Change, error) {
	select {
	case <-ctx.Done():
		return model.Change{}, ctx.Err()
	case n, ok := <-s.listener.Notify:
		if !ok {
			return model.Change{}, chatsync.ErrStreamClosed
		}
		// pq delivers nil after re-establishing a dropped connection
		if n == nil {
			return model.Change{}, chatsync.NewError(chatsync.ErrCodeFeedObservation,
				"listener reconnected, changes may have been missed")
		}
		return decodeNotification(n.Extra)
	}
}

func (s *postgresStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.listener.Close()
	})
	return s.closeErr
}

// notification is the trigger payload.
type notification struct {
	Op  model.ChangeOp   `json:"op"`
	ID  string           `json:"id"`
	Row *notificationRow `json:"row,omitempty"`
}

// notificationRow is row_to_json of a messages row.
type notificationRow struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderName     string       `json:"sender_name"`
	Text           string       `json:"text"`
	TimestampUnix  int64        `json:"timestamp_unix"`
	Status         model.Status `json:"status"`
}

// decodeNotification parses a trigger payload.
func decodeNotification(payload string) (model.Change, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return model.Change{}, chatsync.NewErrorWithCause(chatsync.ErrCodeFeedObservation,
			"invalid notification payload", err)
	}
	if n.ID == "" {
		return model.Change{}, chatsync.NewError(chatsync.ErrCodeFeedObservation,
			fmt.Sprintf("notification without message id: %s", payload))
	}

	change := model.Change{Op: n.Op, MessageID: n.ID}
	if n.Row != nil && n.Op != model.ChangeDelete {
		doc := model.Message{
			ID:             n.Row.ID,
			ConversationID: n.Row.ConversationID,
			SenderName:     n.Row.SenderName,
			Text:           n.Row.Text,
			Timestamp:      n.Row.TimestampUnix,
			Status:         n.Row.Status,
		}
		change.Document = &doc
	}
	return change, nil
}
