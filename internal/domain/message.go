package domain

import (
	"time"
)

type Attachment struct {
	URL      string `bson:"url" json:"url" validate:"required"`
	PublicID string `bson:"public_id" json:"public_id" validate:"required"`
}

// Reaction is a single (user, emoji) pair on a message. A message holds at most
// one entry per pair.
type Reaction struct {
	UserID string `bson:"user_id" json:"userId" validate:"required"`
	Emoji  string `bson:"emoji" json:"emoji" validate:"required"`
}

// Message is the persisted chat message. Content may be empty only when at
// least one attachment is present.
type Message struct {
	ID          string       `bson:"_id" json:"id"`
	Content     string       `bson:"content,omitempty" json:"content,omitempty"`
	Attachments []Attachment `bson:"attachments" json:"attachments" validate:"dive"`
	SenderID    string       `bson:"sender_id" json:"sender" validate:"required"`
	ChatID      string       `bson:"chat_id" json:"chat" validate:"required"`
	Reactions   []Reaction   `bson:"reactions" json:"reactions" validate:"dive"`
	Seen        bool         `bson:"seen" json:"seen"`
	CreatedAt   time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updatedAt"`
}

func (m *Message) Validate() error {
	return ValidateStruct(m)
}

// Clone returns a deep copy so stores can hand out messages without sharing slices.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Attachments != nil {
		out.Attachments = append(make([]Attachment, 0, len(m.Attachments)), m.Attachments...)
	}
	if m.Reactions != nil {
		out.Reactions = append(make([]Reaction, 0, len(m.Reactions)), m.Reactions...)
	}
	return &out
}

type Chat struct {
	ID      string   `bson:"_id" json:"id"`
	Members []string `bson:"members" json:"members"`
}
