package chat

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrMessageNotFound      = errors.New("chat: message not found")
	ErrNotParticipant       = errors.New("chat: user is not an active participant")
	ErrNoRecipient          = errors.New("chat: conversation has no other active participant")
	ErrSelfConversation     = errors.New("chat: cannot start a conversation with yourself")
	ErrEmptyMessage         = errors.New("chat: message needs a body or an attachment")
	ErrAlreadyDeleted       = errors.New("chat: message already deleted")
	ErrNotSender            = errors.New("chat: only the sender can delete a message")
)

// Conversation is always between exactly two users.
type Conversation struct {
	ID            string
	Members       [2]string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

type Participant struct {
	ConversationID string
	UserID         string
	LeftAt         *time.Time
	HasSeenLatest  bool
}

func (p Participant) Active() bool {
	return p.LeftAt == nil
}

type Message struct {
	ID              string
	ConversationID  string
	SenderID        string
	Body            *string
	Image           *string
	IsRead          bool
	IsSystemMessage bool
	CreatedAt       time.Time
}

// DeletedMessage hides a message from a single viewer.
type DeletedMessage struct {
	MessageID string
	UserID    string
	DeletedAt time.Time
}

type Repository interface {
	// ConversationBetween returns the conversation whose two members are a and
	// b and neither has left. It returns ErrConversationNotFound otherwise.
	ConversationBetween(ctx context.Context, a, b string) (*Conversation, error)
	CreateConversation(ctx context.Context, c *Conversation) error
	Participants(ctx context.Context, conversationID string) ([]Participant, error)
	CreateMessage(ctx context.Context, m *Message) error
	// Touch bumps lastMessageAt and clears hasSeenLatest for everyone but senderID.
	Touch(ctx context.Context, conversationID, senderID string, at time.Time) error
	// MarkRead flags unread messages not sent by readerID and returns their ids.
	MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error)
	SetSeenLatest(ctx context.Context, conversationID, userID string) error
	MessageByID(ctx context.Context, conversationID, messageID string) (*Message, error)
	IsDeleted(ctx context.Context, messageID, userID string) (bool, error)
	MarkDeleted(ctx context.Context, d DeletedMessage) error
}

func NewConversation(id, a, b string, now time.Time) (*Conversation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, errors.New("chat: both members are required")
	}
	if a == b {
		return nil, ErrSelfConversation
	}
	return &Conversation{
		ID:            id,
		Members:       [2]string{a, b},
		CreatedAt:     now.UTC(),
		LastMessageAt: now.UTC(),
	}, nil
}

// Participants returns the rows created alongside the conversation.
func (c *Conversation) Participants() []Participant {
	return []Participant{
		{ConversationID: c.ID, UserID: c.Members[0], HasSeenLatest: true},
		{ConversationID: c.ID, UserID: c.Members[1], HasSeenLatest: true},
	}
}

func (c *Conversation) Has(userID string) bool {
	return c.Members[0] == userID || c.Members[1] == userID
}

// OtherParticipant checks that actorID is an active participant and returns
// the single other active participant.
func OtherParticipant(participants []Participant, actorID string) (string, error) {
	actorActive := false
	other := ""
	for _, p := range participants {
		if !p.Active() {
			continue
		}
		if p.UserID == actorID {
			actorActive = true
			continue
		}
		if other != "" && other != p.UserID {
			return "", ErrNoRecipient
		}
		other = p.UserID
	}
	if !actorActive {
		return "", ErrNotParticipant
	}
	if other == "" {
		return "", ErrNoRecipient
	}
	return other, nil
}

// SamePair reports whether the participants are exactly a and b, all active.
func SamePair(participants []Participant, a, b string) bool {
	if len(participants) != 2 {
		return false
	}
	seen := map[string]bool{}
	for _, p := range participants {
		if !p.Active() {
			return false
		}
		seen[p.UserID] = true
	}
	return seen[a] && seen[b] && a != b
}

type MessageParams struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	Image          string
	System         bool
	CreatedAt      time.Time
}

func NewMessage(p MessageParams) (*Message, error) {
	body := strings.TrimSpace(p.Body)
	image := strings.TrimSpace(p.Image)
	if body == "" && image == "" {
		return nil, ErrEmptyMessage
	}
	m := &Message{
		ID:              p.ID,
		ConversationID:  p.ConversationID,
		SenderID:        p.SenderID,
		IsSystemMessage: p.System,
		CreatedAt:       p.CreatedAt.UTC(),
	}
	if body != "" {
		m.Body = &body
	}
	if image != "" {
		m.Image = &image
	}
	return m, nil
}
