package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned by PayloadUnit.Extract when the unit does
// not have the expected nested webhook structure.
var ErrMalformedPayload = errors.New("malformed payload")

// PayloadUnit is one externally delivered webhook document.
// Source names the origin (file name, "webhook") for logging.
type PayloadUnit struct {
	Source string
	Body   json.RawMessage
}

// WebhookDocument is the envelope of a WhatsApp Business webhook payload
// as captured by the upstream relay.
type WebhookDocument struct {
	MetaData *WebhookMetaData `json:"metaData"`
}

// WebhookMetaData holds the Meta webhook object.
type WebhookMetaData struct {
	Object string         `json:"object,omitempty"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one business account entry.
type WebhookEntry struct {
	ID      string          `json:"id,omitempty"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange is one change notification within an entry.
type WebhookChange struct {
	Field string        `json:"field,omitempty"`
	Value *WebhookValue `json:"value"`
}

// WebhookValue carries the messages, statuses and contacts of a change.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product,omitempty"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []WebhookMessage `json:"messages,omitempty"`
	Statuses         []WebhookStatus  `json:"statuses,omitempty"`
}

// WebhookContact identifies the external party of a conversation.
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WebhookMessage is an inbound message record.
type WebhookMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type,omitempty"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// WebhookStatus is a delivery receipt. Receipts address a message either by
// its own id or by the secondary meta_msg_id.
type WebhookStatus struct {
	ID          string `json:"id"`
	MetaMsgID   string `json:"meta_msg_id,omitempty"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
}

// TargetID resolves the message a receipt refers to.
func (s WebhookStatus) TargetID() string {
	if s.ID != "" {
		return s.ID
	}
	return s.MetaMsgID
}

// StatusUpdate is a resolved status-update record.
type StatusUpdate struct {
	MessageID string
	Status    Status
}

// Extraction is the result of parsing one payload unit.
// Malformed counts records that were skipped inside an otherwise valid unit.
type Extraction struct {
	Inserts   []Message
	Statuses  []StatusUpdate
	Malformed int
}

// NewWebhookUnit builds a unit from a live webhook request body.
//
// Meta delivers the bare webhook object ({"object": ..., "entry": [...]})
// while captured files wrap it in "metaData". A bare object is wrapped so
// both forms extract the same way. Anything else is kept as is.
func NewWebhookUnit(source string, body []byte) PayloadUnit {
	var probe struct {
		MetaData json.RawMessage `json:"metaData"`
		Entry    json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.MetaData == nil && probe.Entry != nil {
		wrapped := make([]byte, 0, len(body)+len(`{"metaData":}`))
		wrapped = append(wrapped, `{"metaData":`...)
		wrapped = append(wrapped, body...)
		wrapped = append(wrapped, '}')
		return PayloadUnit{Source: source, Body: wrapped}
	}
	return PayloadUnit{Source: source, Body: body}
}

// Extract parses the unit and returns its insert and status-update records in
// entry, change and array order.
//
// A unit without metaData, entries, changes or any change value returns
// ErrMalformedPayload. Individual records missing an id, carrying an
// unparsable timestamp, or naming an unknown status are counted in
// Extraction.Malformed and skipped.
func (u PayloadUnit) Extract() (Extraction, error) {
	var ext Extraction

	var doc WebhookDocument
	if err := json.Unmarshal(u.Body, &doc); err != nil {
		return ext, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if doc.MetaData == nil || len(doc.MetaData.Entry) == 0 {
		return ext, fmt.Errorf("%w: missing metaData.entry", ErrMalformedPayload)
	}

	values := 0
	for _, entry := range doc.MetaData.Entry {
		for _, change := range entry.Changes {
			if change.Value == nil {
				continue
			}
			values++
			extractValue(change.Value, &ext)
		}
	}
	if values == 0 {
		return ext, fmt.Errorf("%w: missing changes[].value", ErrMalformedPayload)
	}

	return ext, nil
}

func extractValue(v *WebhookValue, ext *Extraction) {
	for _, wm := range v.Messages {
		msg, ok := messageFromWebhook(wm, v.Contacts)
		if !ok {
			ext.Malformed++
			continue
		}
		ext.Inserts = append(ext.Inserts, msg)
	}

	for _, ws := range v.Statuses {
		target := ws.TargetID()
		status := Status(strings.ToLower(ws.Status))
		if target == "" || !status.IsValid() {
			ext.Malformed++
			continue
		}
		ext.Statuses = append(ext.Statuses, StatusUpdate{MessageID: target, Status: status})
	}
}

func messageFromWebhook(wm WebhookMessage, contacts []WebhookContact) (Message, bool) {
	// the outgoing prefix is reserved for ids minted by the command API
	if wm.ID == "" || strings.HasPrefix(wm.ID, OutgoingIDPrefix) {
		return Message{}, false
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(wm.Timestamp), 10, 64)
	if err != nil {
		return Message{}, false
	}

	contact := contactFor(wm.From, contacts)
	conversationID := wm.From
	name := ""
	if contact != nil {
		if contact.WaID != "" {
			conversationID = contact.WaID
		}
		name = contact.Profile.Name
	}
	if conversationID == "" {
		return Message{}, false
	}

	text := ""
	if wm.Text != nil {
		text = wm.Text.Body
	}

	return NewMessage(wm.ID, conversationID, name, text, ts), true
}

// contactFor picks the contact matching from, or the first contact.
func contactFor(from string, contacts []WebhookContact) *WebhookContact {
	if len(contacts) == 0 {
		return nil
	}
	for i := range contacts {
		if from != "" && contacts[i].WaID == from {
			return &contacts[i]
		}
	}
	return &contacts[0]
}
