// Package api provides HTTP handlers for the chatsync server REST API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coregx/chatsync"
	"github.com/go-chi/chi/v5"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Handler holds dependencies for API handlers.
type Handler struct {
	service  *chatsync.MessageService
	ingestor *chatsync.Ingestor
	webhook  WebhookConfig
	logger   chatsync.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	service *chatsync.MessageService,
	ingestor *chatsync.Ingestor,
	webhook WebhookConfig,
	logger chatsync.Logger,
) *Handler {
	return &Handler{
		service:  service,
		ingestor: ingestor,
		webhook:  webhook,
		logger:   logger,
	}
}

// CreateMessageBody is the POST /api/messages request body.
// The client sends wa_id and name; conversationId and senderName are accepted as aliases.
type CreateMessageBody struct {
	WaID           string `json:"wa_id"`
	Name           string `json:"name"`
	ConversationID string `json:"conversationId"`
	SenderName     string `json:"senderName"`
	Text           string `json:"text"`
}

func (b CreateMessageBody) request() chatsync.CreateMessageRequest {
	req := chatsync.CreateMessageRequest{
		ConversationID: b.WaID,
		SenderName:     b.Name,
		Text:           b.Text,
	}
	if req.ConversationID == "" {
		req.ConversationID = b.ConversationID
	}
	if req.SenderName == "" {
		req.SenderName = b.SenderName
	}
	return req
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse represents a command response.
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// HandleListConversations handles GET /api/conversations
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.service.ListConversations(r.Context())
	if err != nil {
		h.respondFailure(w, "list conversations", err)
		return
	}
	h.respondJSON(w, http.StatusOK, conversations)
}

// HandleGetMessages handles GET /api/messages/{conversationId}
func (h *Handler) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")

	messages, err := h.service.GetMessages(r.Context(), conversationID)
	if err != nil {
		h.respondFailure(w, "get messages", err)
		return
	}
	h.respondJSON(w, http.StatusOK, messages)
}

// HandleCreateMessage handles POST /api/messages
func (h *Handler) HandleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var body CreateMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	msg, err := h.service.CreateMessage(r.Context(), body.request())
	if err != nil {
		h.respondFailure(w, "create message", err)
		return
	}

	h.respondSuccess(w, http.StatusCreated, msg, "Message stored successfully")
}

// HandleDeleteMessage handles DELETE /api/messages/{id}
func (h *Handler) HandleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := h.service.DeleteMessage(r.Context(), id)
	if err != nil {
		h.respondFailure(w, "delete message", err)
		return
	}

	h.respondSuccess(w, http.StatusOK, msg, "Message deleted successfully")
}

// HandleHealth handles GET /api/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	}

	h.respondJSON(w, http.StatusOK, health)
}

// respondFailure maps a service error to a status code. Internal details are
// logged, never returned.
func (h *Handler) respondFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case chatsync.IsNotFound(err):
		h.respondError(w, http.StatusNotFound, "Message not found", chatsync.ErrCodeNotFound)
	case chatsync.IsValidation(err):
		h.respondError(w, http.StatusBadRequest, validationMessage(err), chatsync.ErrCodeValidation)
	default:
		h.logger.Errorf("Failed to %s: %v", op, err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

// validationMessage returns the field errors of a validation failure.
func validationMessage(err error) string {
	var e *chatsync.Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return "Invalid request"
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	h.respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondSuccess sends a command response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	h.respondJSON(w, status, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
