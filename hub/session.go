package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	defaultBacklog = 64
)

// Session is one connected push client as seen by the Hub.
type Session interface {
	// ID returns the unique session id.
	ID() string

	// Send queues a frame without blocking. It returns false when the
	// session cannot accept the frame (buffer full or already closed).
	Send(frame []byte) bool

	// Close terminates the session. Safe to call more than once.
	Close()
}

// wsSession is a Session backed by a gorilla WebSocket connection.
//
// Writes happen only on the write pump goroutine; reads only on the read pump.
type wsSession struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newWSSession(conn *websocket.Conn, backlog int) *wsSession {
	return &wsSession{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, backlog),
		done: make(chan struct{}),
	}
}

func (s *wsSession) ID() string { return s.id }

func (s *wsSession) Send(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *wsSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// writePump drains the send buffer to the connection and keeps it alive
// with pings. It owns the connection and closes it on exit.
func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump delivers inbound frames to handle until the connection fails.
func (s *wsSession) readPump(handle func(frame []byte)) error {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(frame)
	}
}
