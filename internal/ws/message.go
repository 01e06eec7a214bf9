package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeHello   MessageType = "hello"   // sent once after connect
	MessageTypeChanged MessageType = "changed" // an entity was written
)

// Message is pushed from the server to every connected browser
type Message struct {
	Type      MessageType `json:"type"`
	Entity    string      `json:"entity,omitempty"`
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage creates a new message with a generated request ID
func NewMessage(msgType MessageType, entity string) *Message {
	return &Message{
		Type:      msgType,
		Entity:    entity,
		RequestID: uuid.New().String(),
		Timestamp: time.Now(),
	}
}

// NewChanged creates the notification sent after a write to entity
func NewChanged(entity string) *Message {
	return NewMessage(MessageTypeChanged, entity)
}

// Encode marshals the message for the wire
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
