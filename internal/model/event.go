package model

import (
	"encoding/json"
	"fmt"
)

// Wire event types carried over the realtime channel.
const (
	EventNewMessage   = "newMessage"
	EventMessagesRead = "messagesRead"
	EventOnlineUsers  = "onlineUsers"
)

// Event is the envelope for every realtime frame in both directions.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ReadReceipt tells the original sender that reader has seen their messages.
type ReadReceipt struct {
	SenderID string `json:"senderId"`
	ReaderID string `json:"readerId"`
}

// NewEvent marshals payload into an envelope of the given type.
func NewEvent(typ string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{Type: typ, Payload: raw}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
