package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coregx/chatsync/hub"
	"github.com/coregx/chatsync/model"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Conn operations that need an open connection.
var ErrNotConnected = errors.New("chatsync: not connected")

// EventHandler receives push events. It runs on the connection's read goroutine.
type EventHandler func(event string, msg model.Message)

// ResyncHandler receives the full state loaded after Reconnect.
type ResyncHandler func(Snapshot)

// Conn is a push connection with an explicit lifecycle.
//
// The server keeps no per-client state and replays nothing, so events sent
// while disconnected are lost. Reconnect therefore reloads the full state
// over REST and hands it to the resync handler.
//
// Thread safety: Safe for concurrent use.
type Conn struct {
	client   *Client
	dialer   *websocket.Dialer
	onEvent  EventHandler
	onResync ResyncHandler

	mu   sync.Mutex
	ws   *websocket.Conn
	done chan struct{}
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// OnEvent sets the push event handler.
func OnEvent(h EventHandler) ConnOption {
	return func(c *Conn) { c.onEvent = h }
}

// OnResync sets the handler called with the reloaded state after Reconnect.
func OnResync(h ResyncHandler) ConnOption {
	return func(c *Conn) { c.onResync = h }
}

// NewConn creates an unconnected push connection for the client's server.
func (c *Client) NewConn(opts ...ConnOption) *Conn {
	conn := &Conn{
		client: c,
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(conn)
	}
	return conn
}

// wsURL derives the push endpoint from the REST base URL.
func (c *Conn) wsURL() string {
	base := strings.TrimSuffix(c.client.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// Connect opens the push connection. Calling Connect on an open Conn is a
// no-op. Once the connection ends (see Done), Connect dials again.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		return nil
	}

	ws, _, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.wsURL(), err)
	}

	c.ws = ws
	c.done = make(chan struct{})
	go c.readLoop(ws, c.done)
	return nil
}

// Reconnect closes any open connection, connects again and resyncs.
func (c *Conn) Reconnect(ctx context.Context) error {
	if err := c.Close(); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}

	snap, err := c.client.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("resync failed: %w", err)
	}
	if c.onResync != nil {
		c.onResync(snap)
	}
	return nil
}

// Close closes the push connection and waits for the read loop to exit.
// It returns ErrNotConnected when the connection already ended.
func (c *Conn) Close() error {
	c.mu.Lock()
	ws, done := c.ws, c.done
	c.ws = nil
	if ws != nil {
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	c.mu.Unlock()

	if ws == nil {
		return ErrNotConnected
	}

	err := ws.Close()
	<-done
	return err
}

// Done is closed when the current connection ends, for whatever reason.
// It returns nil before the first Connect.
func (c *Conn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// SendTest sends the diagnostic user-message event. The server answers with
// a message-received broadcast.
func (c *Conn) SendTest(text string) error {
	frame, err := hub.Encode(model.EventUserMessage, text)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer func() {
		// a connection dropped by the server leaves the Conn ready for Connect
		c.mu.Lock()
		if c.ws == ws {
			c.ws = nil
		}
		c.mu.Unlock()
		_ = ws.Close()
		close(done)
	}()

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return
		}

		env, err := hub.Decode(frame)
		if err != nil {
			continue
		}

		var msg model.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			continue
		}

		if c.onEvent != nil {
			c.onEvent(env.Event, msg)
		}
	}
}
