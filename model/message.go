package model

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Status is the delivery state of a message.
//
// Status normally moves sent → delivered → read, but updates may arrive out of
// order and simply overwrite the stored value.
type Status string

const (
	// StatusSent is the initial status of every message.
	StatusSent Status = "sent"

	// StatusDelivered indicates the recipient device received the message.
	StatusDelivered Status = "delivered"

	// StatusRead indicates the recipient opened the message.
	StatusRead Status = "read"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead:
		return true
	}
	return false
}

// OutgoingIDPrefix marks messages created through the command API.
// Externally sourced ids never carry it.
const OutgoingIDPrefix = "frontend-"

// Message is a single chat message.
//
// A message is immutable once created except for Status. The ID is globally
// unique; the store rejects a second insert with the same ID as a no-op.
//
// The JSON form is the client wire format: the conversation id travels as
// "wa_id", the sender as "name" and the timestamp as a decimal string of unix seconds.
type Message struct {
	ID             string `json:"id" db:"id" bson:"id"`
	ConversationID string `json:"wa_id" db:"conversation_id" bson:"wa_id"`
	SenderName     string `json:"name" db:"sender_name" bson:"name"`
	Text           string `json:"text" db:"text" bson:"text"`
	Timestamp      int64  `json:"timestamp,string" db:"timestamp_unix" bson:"timestamp"`
	Status         Status `json:"status" db:"status" bson:"status"`
}

// TableName returns the database table name for Message.
func (m Message) TableName() string {
	return tablePrefix + "messages"
}

// NewMessage creates a message with status sent.
func NewMessage(id, conversationID, senderName, text string, timestamp int64) Message {
	return Message{
		ID:             id,
		ConversationID: conversationID,
		SenderName:     senderName,
		Text:           text,
		Timestamp:      timestamp,
		Status:         StatusSent,
	}
}

// IsOutgoing reports whether the message was created through the command API.
func (m Message) IsOutgoing() bool {
	return strings.HasPrefix(m.ID, OutgoingIDPrefix)
}

// Time returns the message timestamp as time.Time.
func (m Message) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// Validate checks the message before it is written to a store.
func (m Message) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required, validation.Length(1, 255)),
		validation.Field(&m.ConversationID, validation.Required, validation.Length(1, 255)),
		validation.Field(&m.Timestamp, validation.Min(int64(0))),
		validation.Field(&m.Status, validation.Required, validation.In(StatusSent, StatusDelivered, StatusRead)),
	)
}
