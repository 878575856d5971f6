// Package hub fans domain events out to connected WebSocket clients.
//
// The Hub implements chatsync.EventBroadcaster. Every session owns a bounded
// send buffer drained by its own write pump; Broadcast never blocks and drops
// any session whose buffer is full. There is no replay: a client that
// reconnects resyncs through the REST API.
package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/metrics"
	"github.com/coregx/chatsync/model"
	"github.com/gorilla/websocket"
)

// Diagnostic echo identity.
const (
	EchoIDPrefix       = "frontend-test-"
	EchoConversationID = "frontend_user"
	EchoSenderName     = "Frontend User"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are restricted by the CORS layer
	},
}

var _ chatsync.EventBroadcaster = (*Hub)(nil)

// Hub is the session registry and event fan-out.
//
// Thread safety: Safe for concurrent use.
type Hub struct {
	logger  chatsync.Logger
	backlog int
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]Session
}

// Option is a function that configures a Hub.
type Option func(*Hub) error

// New creates a new Hub.
//
// Optional options:
//   - WithLogger: logger instance (default: NoopLogger)
//   - WithSendBuffer: per-session send buffer (default: 64 frames)
//   - WithClock: time source for diagnostic echoes
func New(opts ...Option) (*Hub, error) {
	h := &Hub{
		logger:   &chatsync.NoopLogger{},
		backlog:  defaultBacklog,
		now:      time.Now,
		sessions: make(map[string]Session),
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, chatsync.NewErrorWithCause(chatsync.ErrCodeConfiguration, "failed to apply hub option", err)
		}
	}

	return h, nil
}

// WithLogger sets the logger instance.
func WithLogger(logger chatsync.Logger) Option {
	return func(h *Hub) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		h.logger = logger
		return nil
	}
}

// WithSendBuffer sets how many frames a session may have queued before it is dropped.
func WithSendBuffer(frames int) Option {
	return func(h *Hub) error {
		if frames <= 0 {
			return fmt.Errorf("send buffer must be positive, got %d", frames)
		}
		h.backlog = frames
		return nil
	}
}

// WithClock overrides the time source used for diagnostic echoes.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		h.now = now
		return nil
	}
}

// Register adds a session to the broadcast set.
func (h *Hub) Register(s Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	n := len(h.sessions)
	h.mu.Unlock()

	metrics.SessionsConnected.Inc()
	h.logger.Infof("🔌 Session %s connected (%d active)", s.ID(), n)
}

// Unregister removes a session and closes it. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}

	s.Close()
	metrics.SessionsConnected.Dec()
	h.logger.Infof("Session %s disconnected (%d active)", id, n)
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast sends the event to every connected session.
// Sessions that cannot accept the frame are dropped.
func (h *Hub) Broadcast(_ context.Context, event string, message model.Message) error {
	frame, err := Encode(event, message)
	if err != nil {
		return err
	}

	var slow []string

	h.mu.RLock()
	for id, s := range h.sessions {
		if !s.Send(frame) {
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	metrics.EventsBroadcast.WithLabelValues(event).Inc()

	for _, id := range slow {
		h.logger.Warnf("⚠️ Dropping session %s: send buffer full", id)
		metrics.SessionsDropped.Inc()
		h.Unregister(id)
	}

	return nil
}

// HandleClientEvent processes a frame sent by a client.
//
// The only client event is the diagnostic user-message, answered with a
// message-received broadcast carrying a synthesized echo message.
func (h *Hub) HandleClientEvent(ctx context.Context, sessionID string, frame []byte) {
	env, err := Decode(frame)
	if err != nil {
		h.logger.Warnf("Invalid frame from session %s: %v", sessionID, err)
		return
	}

	switch env.Event {
	case model.EventUserMessage:
		text := env.Text()
		h.logger.Infof("💬 Test message from session %s: %s", sessionID, text)

		if err := h.Broadcast(ctx, model.EventMessageReceived, h.echo(text)); err != nil {
			h.logger.Warnf("Failed to broadcast %s: %v", model.EventMessageReceived, err)
		}
	default:
		h.logger.Debugf("Ignoring client event %q from session %s", env.Event, sessionID)
	}
}

func (h *Hub) echo(text string) model.Message {
	now := h.now()
	return model.NewMessage(
		fmt.Sprintf("%s%d", EchoIDPrefix, now.UnixMilli()),
		EchoConversationID,
		EchoSenderName,
		"Echo: "+text,
		now.Unix(),
	)
}

// ServeWS upgrades the request to a WebSocket and runs the session until
// the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	s := newWSSession(conn, h.backlog)
	h.Register(s)
	defer h.Unregister(s.ID())

	go s.writePump()

	err = s.readPump(func(frame []byte) {
		h.HandleClientEvent(r.Context(), s.ID(), frame)
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		h.logger.Debugf("Session %s read error: %v", s.ID(), err)
	}
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Unregister(id)
	}
}
