package scylla

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	domainchat "gigsocket/internal/domain/chat"
)

var errNoSession = errors.New("scylla session not initialized")

// ChatRepository stores conversations and messages in Scylla. Writes that
// span tables go through logged batches.
type ChatRepository struct {
	session *gocql.Session
	logger  *slog.Logger
}

var _ domainchat.Repository = (*ChatRepository)(nil)

func NewChatRepository(session *gocql.Session, logger *slog.Logger) *ChatRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatRepository{session: session, logger: logger}
}

func (s *ChatRepository) query(ctx context.Context, stmt string, args ...any) *gocql.Query {
	return s.session.Query(stmt, args...).WithContext(ctx)
}

func (s *ChatRepository) ConversationBetween(ctx context.Context, a, b string) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	iter := s.query(ctx, `SELECT conversation_id FROM conversations_by_member WHERE user_id = ? AND other_id = ?`, a, b).Iter()
	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		rows, err := s.Participants(ctx, id)
		if errors.Is(err, domainchat.ErrConversationNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !domainchat.SamePair(rows, a, b) {
			continue
		}
		return s.conversation(ctx, id)
	}
	return nil, domainchat.ErrConversationNotFound
}

func (s *ChatRepository) conversation(ctx context.Context, id string) (*domainchat.Conversation, error) {
	var (
		members []string
		c       = domainchat.Conversation{ID: id}
	)
	err := s.query(ctx, `SELECT members, created_at, last_message_at FROM conversations WHERE id = ? LIMIT 1`, id).
		Consistency(gocql.One).
		Scan(&members, &c.CreatedAt, &c.LastMessageAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, domainchat.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	copy(c.Members[:], members)
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastMessageAt = c.LastMessageAt.UTC()
	return &c, nil
}

func (s *ChatRepository) CreateConversation(ctx context.Context, c *domainchat.Conversation) error {
	if s.session == nil {
		return errNoSession
	}
	a, b := c.Members[0], c.Members[1]
	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO conversations (id, members, created_at, last_message_at) VALUES (?, ?, ?, ?)`,
		c.ID, []string{a, b}, c.CreatedAt.UTC(), c.LastMessageAt.UTC())
	batch.Query(`INSERT INTO conversations_by_member (user_id, other_id, conversation_id) VALUES (?, ?, ?)`, a, b, c.ID)
	batch.Query(`INSERT INTO conversations_by_member (user_id, other_id, conversation_id) VALUES (?, ?, ?)`, b, a, c.ID)
	for _, p := range c.Participants() {
		batch.Query(`INSERT INTO participants (conversation_id, user_id, has_seen_latest) VALUES (?, ?, ?)`,
			c.ID, p.UserID, p.HasSeenLatest)
	}
	return s.session.ExecuteBatch(batch)
}

func (s *ChatRepository) Participants(ctx context.Context, conversationID string) ([]domainchat.Participant, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	iter := s.query(ctx, `SELECT user_id, left_at, has_seen_latest FROM participants WHERE conversation_id = ?`, conversationID).Iter()
	var (
		rows   []domainchat.Participant
		userID string
		leftAt time.Time
		seen   bool
	)
	for iter.Scan(&userID, &leftAt, &seen) {
		rows = append(rows, participantRow(conversationID, userID, leftAt, seen))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domainchat.ErrConversationNotFound
	}
	return rows, nil
}

func (s *ChatRepository) CreateMessage(ctx context.Context, m *domainchat.Message) error {
	if s.session == nil {
		return errNoSession
	}
	return s.query(ctx,
		`INSERT INTO messages (conversation_id, created_at, message_id, sender_id, body, image, is_read, is_system) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.CreatedAt.UTC(), m.ID, m.SenderID, deref(m.Body), deref(m.Image), m.IsRead, m.IsSystemMessage,
	).Consistency(gocql.Quorum).Exec()
}

func (s *ChatRepository) Touch(ctx context.Context, conversationID, senderID string, at time.Time) error {
	rows, err := s.Participants(ctx, conversationID)
	if err != nil {
		return err
	}
	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE conversations SET last_message_at = ? WHERE id = ?`, at.UTC(), conversationID)
	for _, p := range rows {
		if p.UserID == senderID {
			continue
		}
		batch.Query(`UPDATE participants SET has_seen_latest = false WHERE conversation_id = ? AND user_id = ?`, conversationID, p.UserID)
	}
	return s.session.ExecuteBatch(batch)
}

type messageKey struct {
	id        string
	sender    string
	createdAt time.Time
}

func (s *ChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	iter := s.query(ctx,
		`SELECT message_id, sender_id, created_at FROM messages WHERE conversation_id = ? AND is_read = false ALLOW FILTERING`,
		conversationID).Iter()
	var (
		keys []messageKey
		k    messageKey
	)
	for iter.Scan(&k.id, &k.sender, &k.createdAt) {
		keys = append(keys, k)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	unread := unreadFrom(keys, readerID)
	if len(unread) == 0 {
		return nil, nil
	}
	batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	ids := make([]string, 0, len(unread))
	for _, k := range unread {
		batch.Query(`UPDATE messages SET is_read = true WHERE conversation_id = ? AND created_at = ? AND message_id = ?`,
			conversationID, k.createdAt, k.id)
		ids = append(ids, k.id)
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *ChatRepository) SetSeenLatest(ctx context.Context, conversationID, userID string) error {
	if s.session == nil {
		return errNoSession
	}
	applied, err := s.query(ctx,
		`UPDATE participants SET has_seen_latest = true WHERE conversation_id = ? AND user_id = ? IF EXISTS`,
		conversationID, userID).MapScanCAS(map[string]any{})
	if err != nil {
		return err
	}
	if !applied {
		return domainchat.ErrNotParticipant
	}
	return nil
}

func (s *ChatRepository) MessageByID(ctx context.Context, conversationID, messageID string) (*domainchat.Message, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	var (
		m           = domainchat.Message{ID: messageID, ConversationID: conversationID}
		body, image string
	)
	err := s.query(ctx,
		`SELECT sender_id, body, image, is_read, is_system, created_at FROM messages WHERE conversation_id = ? AND message_id = ? LIMIT 1 ALLOW FILTERING`,
		conversationID, messageID).
		Consistency(gocql.One).
		Scan(&m.SenderID, &body, &image, &m.IsRead, &m.IsSystemMessage, &m.CreatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, domainchat.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Body, m.Image = ref(body), ref(image)
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (s *ChatRepository) IsDeleted(ctx context.Context, messageID, userID string) (bool, error) {
	if s.session == nil {
		return false, errNoSession
	}
	var at time.Time
	err := s.query(ctx, `SELECT deleted_at FROM deleted_messages WHERE message_id = ? AND user_id = ?`, messageID, userID).Scan(&at)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *ChatRepository) MarkDeleted(ctx context.Context, d domainchat.DeletedMessage) error {
	if s.session == nil {
		return errNoSession
	}
	applied, err := s.query(ctx,
		`INSERT INTO deleted_messages (message_id, user_id, deleted_at) VALUES (?, ?, ?) IF NOT EXISTS`,
		d.MessageID, d.UserID, d.DeletedAt.UTC()).MapScanCAS(map[string]any{})
	if err != nil {
		return err
	}
	if !applied {
		return domainchat.ErrAlreadyDeleted
	}
	return nil
}

func participantRow(conversationID, userID string, leftAt time.Time, seen bool) domainchat.Participant {
	p := domainchat.Participant{ConversationID: conversationID, UserID: userID, HasSeenLatest: seen}
	if !leftAt.IsZero() {
		at := leftAt.UTC()
		p.LeftAt = &at
	}
	return p
}

// unreadFrom keeps the messages readerID did not send, in send order.
func unreadFrom(keys []messageKey, readerID string) []messageKey {
	out := keys[:0:0]
	for _, k := range keys {
		if k.sender != readerID {
			out = append(out, k)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
