package model

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Conversation is the derived view of a conversation: its most recent message.
// Conversations are never stored; they are computed from messages on every read.
type Conversation struct {
	ConversationID  string
	DisplayName     string
	LastMessageText string
	LastTimestamp   int64
	LastStatus      Status
}

// conversationJSON is the client wire format of a Conversation.
type conversationJSON struct {
	ID            string `json:"_id"`
	Name          string `json:"name"`
	LastMessage   string `json:"lastMessage"`
	LastTimestamp string `json:"lastTimestamp"`
	Status        Status `json:"status"`
}

// MarshalJSON implements json.Marshaler.
func (c Conversation) MarshalJSON() ([]byte, error) {
	return json.Marshal(conversationJSON{
		ID:            c.ConversationID,
		Name:          c.DisplayName,
		LastMessage:   c.LastMessageText,
		LastTimestamp: strconv.FormatInt(c.LastTimestamp, 10),
		Status:        c.LastStatus,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var raw conversationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := strconv.ParseInt(raw.LastTimestamp, 10, 64)
	if err != nil && raw.LastTimestamp != "" {
		return err
	}
	*c = Conversation{
		ConversationID:  raw.ID,
		DisplayName:     raw.Name,
		LastMessageText: raw.LastMessage,
		LastTimestamp:   ts,
		LastStatus:      raw.Status,
	}
	return nil
}

// ConversationFromMessage builds the conversation summary represented by m.
func ConversationFromMessage(m Message) Conversation {
	return Conversation{
		ConversationID:  m.ConversationID,
		DisplayName:     m.SenderName,
		LastMessageText: m.Text,
		LastTimestamp:   m.Timestamp,
		LastStatus:      m.Status,
	}
}

// NewerThan reports whether m should represent its conversation instead of other.
// The higher timestamp wins; equal timestamps fall back to the greater id.
func (m Message) NewerThan(other Message) bool {
	if m.Timestamp != other.Timestamp {
		return m.Timestamp > other.Timestamp
	}
	return m.ID > other.ID
}

// ProjectConversations computes the conversation list from a set of messages.
//
// The result holds one entry per conversation id, built from that
// conversation's most recent message, sorted by LastTimestamp descending.
// Conversations with equal timestamps are ordered by conversation id.
func ProjectConversations(messages []Message) []Conversation {
	latest := make(map[string]Message, len(messages))
	for _, m := range messages {
		current, ok := latest[m.ConversationID]
		if !ok || m.NewerThan(current) {
			latest[m.ConversationID] = m
		}
	}

	conversations := make([]Conversation, 0, len(latest))
	for _, m := range latest {
		conversations = append(conversations, ConversationFromMessage(m))
	}
	SortConversations(conversations)
	return conversations
}

// SortConversations orders conversations by LastTimestamp descending.
func SortConversations(conversations []Conversation) {
	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].LastTimestamp != conversations[j].LastTimestamp {
			return conversations[i].LastTimestamp > conversations[j].LastTimestamp
		}
		return conversations[i].ConversationID < conversations[j].ConversationID
	})
}

// SortMessages orders messages by timestamp ascending, then id ascending.
func SortMessages(messages []Message) {
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].Timestamp != messages[j].Timestamp {
			return messages[i].Timestamp < messages[j].Timestamp
		}
		return messages[i].ID < messages[j].ID
	})
}
