package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/adapters/memory"
	"github.com/coregx/chatsync/hub"
	"github.com/coregx/chatsync/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookPayload = `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
	"contacts":[{"wa_id":"555","profile":{"name":"Alice"}}],
	"messages":[{"id":"wamid.1","from":"555","timestamp":"1000","type":"text","text":{"body":"hi"}}]}}]}]}`

type testServer struct {
	*httptest.Server
	hub *hub.Hub
}

func newTestServer(t *testing.T, webhook WebhookConfig) *testServer {
	t.Helper()

	logger := &chatsync.NoopLogger{}
	feed := chatsync.NewLocalFeed(0)
	repo := chatsync.NewRecordingRepository(memory.NewMessageRepository(), feed)

	h, err := hub.New(hub.WithLogger(logger))
	require.NoError(t, err)

	service, err := chatsync.NewMessageService(
		chatsync.WithServiceRepository(repo),
		chatsync.WithServiceBroadcaster(h),
		chatsync.WithServiceLogger(logger),
	)
	require.NoError(t, err)

	ingestor, err := chatsync.NewIngestor(
		chatsync.WithIngestorRepository(repo),
		chatsync.WithIngestorLogger(logger),
	)
	require.NoError(t, err)

	watcher, err := chatsync.NewWatcher(
		chatsync.WithFeed(feed, repo),
		chatsync.WithBroadcaster(h),
		chatsync.WithLogger(logger),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()
	<-watcher.Ready()

	handler := NewHandler(service, ingestor, webhook, logger)
	server := httptest.NewServer(NewRouter(zerolog.Nop(), handler, h.ServeWS, nil))

	t.Cleanup(func() {
		server.Close()
		h.Close()
		cancel()
		<-done
	})

	return &testServer{Server: server, hub: h}
}

func (s *testServer) do(t *testing.T, method, path string, body string, headers map[string]string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return s.hub.Count() > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, model.Message) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env hub.Envelope
	require.NoError(t, conn.ReadJSON(&env))

	var msg model.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return env.Event, msg
}

// readUntil skips events until one named event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) model.Message {
	t.Helper()
	for {
		got, msg := readEvent(t, conn)
		if got == event {
			return msg
		}
	}
}

func TestAPI_EmptyLists(t *testing.T) {
	s := newTestServer(t, WebhookConfig{})

	status, body := s.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	status, body = s.do(t, http.MethodGet, "/api/messages/unknown", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestAPI_CreateMessage(t *testing.T) {
	s := newTestServer(t, WebhookConfig{})
	conn := s.dial(t)

	status, body := s.do(t, http.MethodPost, "/api/messages", `{"wa_id":"555","name":"Agent","text":"hello"}`, nil)
	require.Equal(t, http.StatusCreated, status)

	var resp struct {
		Message string        `json:"message"`
		Data    model.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "Message stored successfully", resp.Message)
	assert.True(t, strings.HasPrefix(resp.Data.ID, "frontend-"))
	assert.Equal(t, "555", resp.Data.ConversationID)
	assert.Equal(t, model.StatusSent, resp.Data.Status)

	event, pushed := readEvent(t, conn)
	assert.Equal(t, model.EventNewMessage, event)
	assert.Equal(t, resp.Data, pushed)

	status, body = s.do(t, http.MethodGet, "/api/messages/555", "", nil)
	require.Equal(t, http.StatusOK, status)
	var messages []model.Message
	require.NoError(t, json.Unmarshal(body, &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, resp.Data, messages[0])

	status, body = s.do(t, http.MethodGet, "/api/conversations", "", nil)
	require.Equal(t, http.StatusOK, status)
	var conversations []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &conversations))
	require.Len(t, conversations, 1)
	assert.Equal(t, "555", conversations[0]["_id"])
	assert.Equal(t, "hello", conversations[0]["lastMessage"])
}

func TestAPI_CreateMessageAliases(t *testing.T) {
	s := newTestServer(t, WebhookConfig{})

	status, body := s.do(t, http.MethodPost, "/api/messages", `{"conversationId":"777","senderName":"Bob","text":"yo"}`, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, string(body), `"wa_id":"777"`)
}

func TestAPI_CreateMessageInvalid(t *testing.T) {
	s := newTestServer(t, WebhookConfig{})

	status, body := s.do(t, http.MethodPost, "/api/messages", `{"text":"no conversation"}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), `"error"`)

	status, _ = s.do(t, http.MethodPost, "/api/messages", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_DeleteMessage(t *testing.T) {
	s := newTestServer(t, WebhookConfig{})

	status, body := s.do(t, http.MethodDelete, "/api/messages/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"Message not found","code":"NOT_FOUND"}`, string(body))

	status, _ = s.do(t, http.MethodPost, "/webhook", webhookPayload, nil)
	require.Equal(t, http.StatusOK, status)

	conn := s.dial(t)

	status, body = s.do(t, http.MethodDelete, "/api/messages/wamid.1", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Message deleted successfully")

	deleted := readUntil(t, conn, model.EventMessageDeleted)
	assert.Equal(t, model.NewMessage("wamid.1", "555", "Alice", "hi", 1000), deleted)

	status, body = s.do(t, http.MethodGet, "/api/conversations", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestAPI_WebhookVerify(t *testing.T) {
	s := newTestServer(t, WebhookConfig{VerifyToken: "secret-token"})

	status, body := s.do(t, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "12345", string(body))

	status, _ = s.do(t, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", "", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAPI_WebhookVerifyDisabledWithoutToken(t *testing.T) {
	s := newTestServer(t, WebhookConfig{})

	status, _ := s.do(t, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", "", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAPI_WebhookIngest(t *testing.T) {
	s := newTestServer(t, WebhookConfig{})
	conn := s.dial(t)

	status, body := s.do(t, http.MethodPost, "/webhook", webhookPayload, nil)
	require.Equal(t, http.StatusOK, status)

	var report model.IngestionReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, model.IngestionReport{Inserted: 1}, report)

	event, msg := readEvent(t, conn)
	assert.Equal(t, model.EventNewMessage, event)
	assert.Equal(t, "wamid.1", msg.ID)

	// redelivery is idempotent
	status, body = s.do(t, http.MethodPost, "/webhook", webhookPayload, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, model.IngestionReport{SkippedDuplicate: 1}, report)

	status, body = s.do(t, http.MethodPost, "/webhook", `{"entry":[]}`, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, model.IngestionReport{Malformed: 1}, report)
}

func TestAPI_WebhookSignature(t *testing.T) {
	secret := "app-secret"
	s := newTestServer(t, WebhookConfig{AppSecret: secret})

	status, _ := s.do(t, http.MethodPost, "/webhook", webhookPayload, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPost, "/webhook", webhookPayload,
		map[string]string{"X-Hub-Signature-256": "sha256=deadbeef"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPost, "/webhook", webhookPayload,
		map[string]string{model.SignatureHeader: model.SignPayload(secret, []byte(webhookPayload))})
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, WebhookConfig{})

	status, body := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)

	status, body = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, bytes.Contains(body, []byte("chatsync_http_requests_total")))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/messages/:id", normalizePath("/api/messages/wamid.1"))
	assert.Equal(t, "/api/messages/", normalizePath("/api/messages/"))
	assert.Equal(t, "/api/conversations", normalizePath("/api/conversations"))
}
