// Package hub fans session events out to websocket clients
// using the channel-based broadcast pattern.
package hub

import "encoding/json"

// Message is one pre-encoded text frame.
type Message struct {
	Data []byte
}

// Event is the envelope written to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewMessage creates a message from pre-encoded bytes.
func NewMessage(data []byte) Message {
	return Message{Data: data}
}

// EncodeEvent wraps v in an Event envelope.
func EncodeEvent(typ string, v any) (Message, error) {
	data, err := json.Marshal(Event{Type: typ, Data: v})
	if err != nil {
		return Message{}, err
	}
	return NewMessage(data), nil
}
