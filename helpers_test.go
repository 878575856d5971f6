package chatsync_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/adapters/memory"
	"github.com/coregx/chatsync/model"
	"github.com/stretchr/testify/require"
)

type broadcastEvent struct {
	Event   string
	Message model.Message
}

// recordingBroadcaster captures broadcasts for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
	ch     chan broadcastEvent
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{ch: make(chan broadcastEvent, 64)}
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, event string, message model.Message) error {
	e := broadcastEvent{Event: event, Message: message}
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
	b.ch <- e
	return nil
}

func (b *recordingBroadcaster) Events() []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastEvent(nil), b.events...)
}

// next waits for the next broadcast.
func (b *recordingBroadcaster) next(t *testing.T) broadcastEvent {
	t.Helper()
	select {
	case e := <-b.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return broadcastEvent{}
	}
}

// expectNone asserts that nothing is broadcast within a short window.
func (b *recordingBroadcaster) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-b.ch:
		t.Fatalf("unexpected broadcast %s for %s", e.Event, e.Message.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

// system wires a memory store, a local feed, a watcher and the services.
type system struct {
	store       *memory.MessageRepository
	feed        *chatsync.LocalFeed
	repo        chatsync.MessageRepository
	broadcaster *recordingBroadcaster
	ingestor    *chatsync.Ingestor
	service     *chatsync.MessageService
	watcher     *chatsync.Watcher
}

func newSystem(t *testing.T) *system {
	t.Helper()

	s := &system{
		store:       memory.NewMessageRepository(),
		feed:        chatsync.NewLocalFeed(0),
		broadcaster: newRecordingBroadcaster(),
	}
	s.repo = chatsync.NewRecordingRepository(s.store, s.feed)
	logger := &chatsync.NoopLogger{}

	var err error
	s.ingestor, err = chatsync.NewIngestor(
		chatsync.WithIngestorRepository(s.repo),
		chatsync.WithIngestorLogger(logger),
	)
	require.NoError(t, err)

	s.service, err = chatsync.NewMessageService(
		chatsync.WithServiceRepository(s.repo),
		chatsync.WithServiceBroadcaster(s.broadcaster),
		chatsync.WithServiceLogger(logger),
	)
	require.NoError(t, err)

	s.watcher, err = chatsync.NewWatcher(
		chatsync.WithFeed(s.feed, s.repo),
		chatsync.WithBroadcaster(s.broadcaster),
		chatsync.WithLogger(logger),
	)
	require.NoError(t, err)

	return s
}

// startWatcher runs the watcher until the test ends.
func (s *system) startWatcher(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.watcher.Run(ctx) }()

	select {
	case <-s.watcher.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func insertUnit(id, waID, name, text, timestamp string) model.PayloadUnit {
	body := fmt.Sprintf(`{"metaData":{"entry":[{"changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp",
		"contacts":[{"profile":{"name":%q},"wa_id":%q}],
		"messages":[{"from":%q,"id":%q,"timestamp":%q,"text":{"body":%q},"type":"text"}]}}]}]}}`,
		name, waID, waID, id, timestamp, text)
	return model.PayloadUnit{Source: id + ".json", Body: json.RawMessage(body)}
}

func statusUnit(id, status string) model.PayloadUnit {
	body := fmt.Sprintf(`{"metaData":{"entry":[{"changes":[{"value":{
		"statuses":[{"id":%q,"status":%q}]}}]}]}}`, id, status)
	return model.PayloadUnit{Source: "status-" + id + ".json", Body: json.RawMessage(body)}
}

// capturingLogger keeps every formatted log line.
type capturingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *capturingLogger) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *capturingLogger) Debugf(format string, args ...interface{}) { l.add(format, args...) }
func (l *capturingLogger) Infof(format string, args ...interface{})  { l.add(format, args...) }
func (l *capturingLogger) Warnf(format string, args ...interface{})  { l.add(format, args...) }
func (l *capturingLogger) Errorf(format string, args ...interface{}) { l.add(format, args...) }
func (l *capturingLogger) Info(message string)                       { l.add("%s", message) }

func (l *capturingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
