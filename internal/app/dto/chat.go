package dto

import (
	"time"

	domainchat "gigsocket/internal/domain/chat"
)

// Conversation describes chat metadata.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversationId"`
	SenderID        string    `json:"senderId"`
	Body            *string   `json:"body,omitempty"`
	Image           *string   `json:"image,omitempty"`
	IsRead          bool      `json:"isRead"`
	IsSystemMessage bool      `json:"isSystemMessage"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ConversationEvent announces a conversation to a participant. Created is
// false when an existing conversation was reused.
type ConversationEvent struct {
	ConversationID string       `json:"conversationId"`
	Conversation   Conversation `json:"conversation"`
	Created        bool         `json:"created"`
}

type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Status         string `json:"status"`
}

type ReadEvent struct {
	ConversationID string   `json:"conversationId"`
	ReaderID       string   `json:"readerId"`
	MessageIDs     []string `json:"messageIds"`
}

type DeletedEvent struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	DeletedBy      string `json:"deletedBy"`
}

func ConversationFromDomain(c *domainchat.Conversation) Conversation {
	return Conversation{
		ID:            c.ID,
		Participants:  []string{c.Members[0], c.Members[1]},
		CreatedAt:     c.CreatedAt,
		LastMessageAt: c.LastMessageAt,
	}
}

func MessageFromDomain(m *domainchat.Message) ChatMessage {
	return ChatMessage{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		SenderID:        m.SenderID,
		Body:            m.Body,
		Image:           m.Image,
		IsRead:          m.IsRead,
		IsSystemMessage: m.IsSystemMessage,
		CreatedAt:       m.CreatedAt,
	}
}
