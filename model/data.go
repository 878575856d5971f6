// Package model contains the domain models and wire formats of the chat sync system.
package model

// tablePrefix is the default table prefix used by TableName methods.
// Repositories may override it (see adapters/relica).
const tablePrefix = "chat_"

// Push event names. These are part of the client wire contract.
const (
	// EventNewMessage is broadcast when a message is inserted into the store.
	EventNewMessage = "newMessage"

	// EventMessageUpdated is broadcast when a message status changes.
	EventMessageUpdated = "messageUpdated"

	// EventMessageDeleted is broadcast by the delete command with the full deleted message.
	EventMessageDeleted = "messageDeleted"

	// EventUserMessage is the client-to-server diagnostic event.
	EventUserMessage = "user-message"

	// EventMessageReceived acknowledges EventUserMessage.
	EventMessageReceived = "message-received"
)
