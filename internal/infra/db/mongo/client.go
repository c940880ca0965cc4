package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colBookings      = "bookings"
	colSlotLocks     = "booking_slot_locks"
	colPosts         = "posts"
	colUsers         = "users"
	colCredits       = "credit_transactions"
	colNotifications = "notifications"
	colReviews       = "reviews"
	colConversations = "conversations"
	colMessages      = "messages"
	colDeleted       = "deleted_messages"
)

type Client struct {
	DB *mongo.Database
}

func New(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Ping(ctx, nil); err != nil {
		_ = m.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on. Collections
// owned by the CRUD application only get lookup indexes.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		colBookings: {
			{Keys: bson.D{{Key: "freelancer_id", Value: 1}, {Key: "day", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "freelancer_id", Value: 1}, {Key: "client_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colPosts: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "target_user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colReviews: {
			{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "reviewer_id", Value: 1}}},
		},
		colConversations: {
			{Keys: bson.D{{Key: "members", Value: 1}}},
		},
		colMessages: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for name, models := range specs {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("indexes for %s: %w", name, err)
		}
	}
	return nil
}
