package domain

import "encoding/json"

// Inbound payloads.

type NewMessageRequest struct {
	ChatID      string       `json:"chatId" validate:"required"`
	Members     []string     `json:"members"`
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments" validate:"dive"`
}

type TypingRequest struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Members []string `json:"members"`
}

type ReactionRequest struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
	UserID    string `json:"userId"`
}

type SeenRequest struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	UserID    string `json:"userId"`
}

type MembershipRequest struct {
	UserID  string   `json:"userId" validate:"required"`
	Members []string `json:"members"`
}

// Outbound payloads.

type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LiveMessage struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	Sender      Sender       `json:"sender"`
	Chat        string       `json:"chat"`
	CreatedAt   string       `json:"createdAt"`
	Reactions   []Reaction   `json:"reactions"`
	Seen        bool         `json:"seen"`
}

type NewMessageEvent struct {
	ChatID  string      `json:"chatId"`
	Message LiveMessage `json:"message"`
}

type ChatEvent struct {
	ChatID string `json:"chatId"`
}

type ReactionEvent struct {
	MessageID string            `json:"messageId"`
	ChatID    string            `json:"chatId"`
	Reactions []GroupedReaction `json:"reactions"`
}

type SeenEvent struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Seen      bool   `json:"seen"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type CallRejectedEvent struct {
	To      string `json:"to,omitempty"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

type CallEndedEvent struct {
	From json.RawMessage `json:"from"`
}
