// Package client provides a Go client for the chatsync server: REST calls for
// the command API and a WebSocket connection for push events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coregx/chatsync/model"
)

// DefaultBaseURL is the address of a locally running server.
const DefaultBaseURL = "http://localhost:5000"

// Client is a chatsync REST API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatsync error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// doRequest performs an HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	return c.doRequestWithHeader(ctx, method, path, body, nil)
}

func (c *Client) doRequestWithHeader(ctx context.Context, method, path string, body []byte, header http.Header) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	return respBody, nil
}

// commandResponse is the body of POST and DELETE responses.
type commandResponse struct {
	Message string        `json:"message"`
	Data    model.Message `json:"data"`
}

// ListConversations returns the conversation list, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/api/conversations", nil)
	if err != nil {
		return nil, err
	}

	var conversations []model.Conversation
	if err := json.Unmarshal(respBody, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// GetMessages returns the messages of a conversation, oldest first.
func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(conversationID), nil)
	if err != nil {
		return nil, err
	}

	var messages []model.Message
	if err := json.Unmarshal(respBody, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage stores an outgoing message. The server assigns id, status and timestamp.
func (c *Client) SendMessage(ctx context.Context, conversationID, name, text string) (model.Message, error) {
	body, err := json.Marshal(map[string]string{
		"wa_id": conversationID,
		"name":  name,
		"text":  text,
	})
	if err != nil {
		return model.Message{}, err
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/api/messages", body)
	if err != nil {
		return model.Message{}, err
	}

	var resp commandResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return model.Message{}, err
	}
	return resp.Data, nil
}

// DeleteMessage deletes a message and returns it. A missing message yields
// an error for which IsNotFound reports true.
func (c *Client) DeleteMessage(ctx context.Context, id string) (model.Message, error) {
	respBody, err := c.doRequest(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(id), nil)
	if err != nil {
		return model.Message{}, err
	}

	var resp commandResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return model.Message{}, err
	}
	return resp.Data, nil
}

// Snapshot is the full client-visible state.
type Snapshot struct {
	Conversations []model.Conversation
	Messages      map[string][]model.Message
}

// Snapshot loads the conversation list and the messages of every conversation.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	conversations, err := c.ListConversations(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Conversations: conversations,
		Messages:      make(map[string][]model.Message, len(conversations)),
	}
	for _, conv := range conversations {
		messages, err := c.GetMessages(ctx, conv.ID)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Messages[conv.ID] = messages
	}
	return snap, nil
}

// PostWebhook delivers one payload to the server's webhook receiver and
// returns the server's ingestion report. The body is signed when secret is set.
//
// Ingesting through the server makes its watcher observe the writes on every
// store, including those whose change feed is local to the server process.
func (c *Client) PostWebhook(ctx context.Context, body []byte, secret string) (model.IngestionReport, error) {
	var header http.Header
	if secret != "" {
		header = http.Header{}
		header.Set(model.SignatureHeader, model.SignPayload(secret, body))
	}

	respBody, err := c.doRequestWithHeader(ctx, http.MethodPost, "/webhook", body, header)
	if err != nil {
		return model.IngestionReport{}, err
	}

	var report model.IngestionReport
	if err := json.Unmarshal(respBody, &report); err != nil {
		return model.IngestionReport{}, err
	}
	return report, nil
}
