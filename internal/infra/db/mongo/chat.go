package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "gigsocket/internal/domain/chat"
)

// ChatRepository keeps participants embedded in their conversation document,
// so reading them never needs a second round trip.
type ChatRepository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	deleted       *mongo.Collection
}

func NewChatRepository(db *mongo.Database) *ChatRepository {
	return &ChatRepository{
		conversations: db.Collection(colConversations),
		messages:      db.Collection(colMessages),
		deleted:       db.Collection(colDeleted),
	}
}

type participantDocument struct {
	UserID        string     `bson:"user_id"`
	LeftAt        *time.Time `bson:"left_at,omitempty"`
	HasSeenLatest bool       `bson:"has_seen_latest"`
}

type conversationDocument struct {
	ID            string                `bson:"_id"`
	Members       []string              `bson:"members"`
	Participants  []participantDocument `bson:"participants"`
	CreatedAt     time.Time             `bson:"created_at"`
	LastMessageAt time.Time             `bson:"last_message_at"`
}

func (d conversationDocument) toDomain() (*domainchat.Conversation, []domainchat.Participant) {
	c := &domainchat.Conversation{ID: d.ID, CreatedAt: d.CreatedAt.UTC(), LastMessageAt: d.LastMessageAt.UTC()}
	copy(c.Members[:], d.Members)
	rows := make([]domainchat.Participant, 0, len(d.Participants))
	for _, p := range d.Participants {
		rows = append(rows, domainchat.Participant{ConversationID: d.ID, UserID: p.UserID, LeftAt: p.LeftAt, HasSeenLatest: p.HasSeenLatest})
	}
	return c, rows
}

type messageDocument struct {
	ID              string    `bson:"_id"`
	ConversationID  string    `bson:"conversation_id"`
	SenderID        string    `bson:"sender_id"`
	Body            *string   `bson:"body,omitempty"`
	Image           *string   `bson:"image,omitempty"`
	IsRead          bool      `bson:"is_read"`
	IsSystemMessage bool      `bson:"is_system_message"`
	CreatedAt       time.Time `bson:"created_at"`
}

func (r *ChatRepository) ConversationBetween(ctx context.Context, a, b string) (*domainchat.Conversation, error) {
	cur, err := r.conversations.Find(ctx, bson.M{"members": bson.M{"$all": []string{a, b}}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc conversationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		c, rows := doc.toDomain()
		if domainchat.SamePair(rows, a, b) {
			return c, nil
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return nil, domainchat.ErrConversationNotFound
}

func (r *ChatRepository) CreateConversation(ctx context.Context, c *domainchat.Conversation) error {
	doc := conversationDocument{
		ID:            c.ID,
		Members:       []string{c.Members[0], c.Members[1]},
		CreatedAt:     c.CreatedAt.UTC(),
		LastMessageAt: c.LastMessageAt.UTC(),
	}
	for _, p := range c.Participants() {
		doc.Participants = append(doc.Participants, participantDocument{UserID: p.UserID, HasSeenLatest: p.HasSeenLatest})
	}
	_, err := r.conversations.InsertOne(ctx, doc)
	return err
}

func (r *ChatRepository) Participants(ctx context.Context, conversationID string) ([]domainchat.Participant, error) {
	var doc conversationDocument
	if err := r.conversations.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	_, rows := doc.toDomain()
	return rows, nil
}

func (r *ChatRepository) CreateMessage(ctx context.Context, m *domainchat.Message) error {
	_, err := r.messages.InsertOne(ctx, messageDocument{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		SenderID:        m.SenderID,
		Body:            m.Body,
		Image:           m.Image,
		IsRead:          m.IsRead,
		IsSystemMessage: m.IsSystemMessage,
		CreatedAt:       m.CreatedAt.UTC(),
	})
	return err
}

func (r *ChatRepository) Touch(ctx context.Context, conversationID, senderID string, at time.Time) error {
	res, err := r.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{
			"last_message_at":                       at.UTC(),
			"participants.$[other].has_seen_latest": false,
		}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []any{bson.M{"other.user_id": bson.M{"$ne": senderID}}},
		}),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error) {
	filter := bson.M{"conversation_id": conversationID, "sender_id": bson.M{"$ne": readerID}, "is_read": false}
	cur, err := r.messages.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	if _, err := r.messages.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": bson.M{"is_read": true}}); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *ChatRepository) SetSeenLatest(ctx context.Context, conversationID, userID string) error {
	res, err := r.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID, "participants.user_id": userID},
		bson.M{"$set": bson.M{"participants.$.has_seen_latest": true}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrNotParticipant
	}
	return nil
}

func (r *ChatRepository) MessageByID(ctx context.Context, conversationID, messageID string) (*domainchat.Message, error) {
	var doc messageDocument
	err := r.messages.FindOne(ctx, bson.M{"_id": messageID, "conversation_id": conversationID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domainchat.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domainchat.Message{
		ID:              doc.ID,
		ConversationID:  doc.ConversationID,
		SenderID:        doc.SenderID,
		Body:            doc.Body,
		Image:           doc.Image,
		IsRead:          doc.IsRead,
		IsSystemMessage: doc.IsSystemMessage,
		CreatedAt:       doc.CreatedAt.UTC(),
	}, nil
}

func (r *ChatRepository) IsDeleted(ctx context.Context, messageID, userID string) (bool, error) {
	n, err := r.deleted.CountDocuments(ctx, bson.M{"_id": deletionID(messageID, userID)}, options.Count().SetLimit(1))
	return n > 0, err
}

func (r *ChatRepository) MarkDeleted(ctx context.Context, d domainchat.DeletedMessage) error {
	_, err := r.deleted.InsertOne(ctx, bson.M{
		"_id":        deletionID(d.MessageID, d.UserID),
		"message_id": d.MessageID,
		"user_id":    d.UserID,
		"deleted_at": d.DeletedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return domainchat.ErrAlreadyDeleted
	}
	return err
}

func deletionID(messageID, userID string) string {
	return messageID + ":" + userID
}
