package api

import (
	"fmt"
	"html"
	"io"
	"net/http"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/model"
)

// maxWebhookBody bounds a single webhook delivery.
const maxWebhookBody = 1 << 20

// WebhookConfig configures the live webhook receiver.
type WebhookConfig struct {
	// VerifyToken answers Meta's subscription handshake. Empty disables it.
	VerifyToken string

	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret string
}

// HandleWebhookVerify handles GET /webhook (subscription handshake).
func (h *Handler) HandleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if h.webhook.VerifyToken != "" && mode == "subscribe" && token == h.webhook.VerifyToken {
		h.logger.Info("✅ Webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, html.EscapeString(challenge))
		return
	}

	h.logger.Warnf("⚠️ Webhook verification failed (mode=%q)", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleWebhook handles POST /webhook: one payload unit, ingested immediately.
//
// Malformed payloads are acknowledged with 200 so the sender does not retry
// them; the report says what was skipped. Store unavailability returns 503
// so the sender redelivers later.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Bad request", "")
		return
	}

	if h.webhook.AppSecret != "" {
		sig := r.Header.Get(model.SignatureHeader)
		if !model.VerifySignature(h.webhook.AppSecret, body, sig) {
			h.logger.Warnf("⚠️ Webhook with invalid signature rejected")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	report, err := h.ingestor.IngestUnit(r.Context(), model.NewWebhookUnit("webhook", body))
	if err != nil {
		if chatsync.IsUnavailable(err) {
			h.respondError(w, http.StatusServiceUnavailable, "Store unavailable", chatsync.ErrCodeStoreUnavailable)
			return
		}
		h.respondFailure(w, "ingest webhook", err)
		return
	}

	h.respondJSON(w, http.StatusOK, report)
}
