package domain

import "time"

// Stream event types, published after the durable write succeeds.
const (
	StreamMessageCreated  = "message.created"
	StreamMessageReaction = "message.reaction"
	StreamMessageSeen     = "message.seen"
)

// StreamEvent is the record other services consume from the event stream.
type StreamEvent struct {
	Type      string    `json:"type"`
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	At        time.Time `json:"at"`
	Data      any       `json:"data,omitempty"`
}
