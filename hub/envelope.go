package hub

import (
	"encoding/json"
	"fmt"
)

// Envelope is the frame exchanged over a push session in both directions:
//
//	{"event": "newMessage", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals event and payload into a wire frame.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", event, err)
	}
	return frame, nil
}

// Decode parses a wire frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("invalid envelope: event is required")
	}
	return env, nil
}

// Text returns the payload as text. A JSON string is unquoted; any other
// payload is returned as its raw JSON.
func (e Envelope) Text() string {
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return s
	}
	return string(e.Data)
}
