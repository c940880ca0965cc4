package memory

import (
	"context"
	"time"

	domainchat "gigsocket/internal/domain/chat"
)

type ChatRepository struct {
	store *Store
}

func (r *ChatRepository) ConversationBetween(ctx context.Context, a, b string) (*domainchat.Conversation, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.conversations {
		if c.Has(a) && c.Has(b) && domainchat.SamePair(s.participants[id], a, b) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domainchat.ErrConversationNotFound
}

func (r *ChatRepository) CreateConversation(ctx context.Context, c *domainchat.Conversation) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.conversations[c.ID] = &cp
	s.participants[c.ID] = c.Participants()
	return nil
}

func (r *ChatRepository) Participants(ctx context.Context, conversationID string) ([]domainchat.Participant, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return append([]domainchat.Participant(nil), s.participants[conversationID]...), nil
}

func (r *ChatRepository) CreateMessage(ctx context.Context, m *domainchat.Message) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[m.ConversationID]; !ok {
		return domainchat.ErrConversationNotFound
	}
	cp := *m
	s.messages[m.ID] = &cp
	s.order = append(s.order, m.ID)
	return nil
}

func (r *ChatRepository) Touch(ctx context.Context, conversationID, senderID string, at time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	c.LastMessageAt = at.UTC()
	rows := s.participants[conversationID]
	for i := range rows {
		if rows[i].UserID != senderID {
			rows[i].HasSeenLatest = false
		}
	}
	return nil
}

func (r *ChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, id := range s.order {
		m := s.messages[id]
		if m.ConversationID != conversationID || m.SenderID == readerID || m.IsRead {
			continue
		}
		m.IsRead = true
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *ChatRepository) SetSeenLatest(ctx context.Context, conversationID, userID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.participants[conversationID]
	for i := range rows {
		if rows[i].UserID == userID {
			rows[i].HasSeenLatest = true
			return nil
		}
	}
	return domainchat.ErrNotParticipant
}

func (r *ChatRepository) MessageByID(ctx context.Context, conversationID, messageID string) (*domainchat.Message, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	if !ok || m.ConversationID != conversationID {
		return nil, domainchat.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *ChatRepository) IsDeleted(ctx context.Context, messageID, userID string) (bool, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.deletions[messageID][userID]
	return ok, nil
}

func (r *ChatRepository) MarkDeleted(ctx context.Context, d domainchat.DeletedMessage) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deletions[d.MessageID][d.UserID]; ok {
		return domainchat.ErrAlreadyDeleted
	}
	if s.deletions[d.MessageID] == nil {
		s.deletions[d.MessageID] = make(map[string]domainchat.DeletedMessage)
	}
	s.deletions[d.MessageID][d.UserID] = d
	return nil
}

// Messages returns the stored messages of a conversation in send order,
// including ones hidden by deletion markers.
func (s *Store) Messages(conversationID string) []domainchat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domainchat.Message
	for _, id := range s.order {
		if m := s.messages[id]; m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out
}

// SetLeft marks userID as having left the conversation.
func (s *Store) SetLeft(conversationID, userID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.participants[conversationID]
	for i := range rows {
		if rows[i].UserID == userID {
			left := at
			rows[i].LeftAt = &left
		}
	}
}

// ParticipantRows returns the participant rows of a conversation.
func (s *Store) ParticipantRows(conversationID string) []domainchat.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domainchat.Participant(nil), s.participants[conversationID]...)
}

// ConversationCount returns how many conversations exist.
func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
