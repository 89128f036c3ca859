package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"certdash/internal/core"
)

// messageVersion is bumped when ActivityMessage changes shape.
const messageVersion = 1

var ErrInvalidMessage = errors.New("invalid activity message")

// ActivityMessage wraps an activity event on the wire.
type ActivityMessage struct {
	Version   int                `json:"version"`
	Event     core.ActivityEvent `json:"event"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewActivityMessage wraps e for publishing.
func NewActivityMessage(e core.ActivityEvent) *ActivityMessage {
	return &ActivityMessage{
		Version:   messageVersion,
		Event:     e,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ActivityMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivityMessageFromJSON decodes a message and rejects ones without an
// event id or kind.
func ActivityMessageFromJSON(data []byte) (*ActivityMessage, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event.ID == "" || msg.Event.Kind == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}
