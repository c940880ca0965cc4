package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainnotification "gigsocket/internal/domain/notification"
)

type NotificationRepository struct {
	col     *mongo.Collection
	reviews *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{col: db.Collection(colNotifications), reviews: db.Collection(colReviews)}
}

type notificationDocument struct {
	ID           string    `bson:"_id"`
	Type         string    `bson:"type"`
	TargetUserID string    `bson:"target_user_id"`
	ReferenceID  string    `bson:"reference_id"`
	IsRead       bool      `bson:"is_read"`
	CreatedAt    time.Time `bson:"created_at"`
}

func (r *NotificationRepository) Create(ctx context.Context, n *domainnotification.Notification) error {
	_, err := r.col.InsertOne(ctx, notificationDocument{
		ID:           n.ID,
		Type:         string(n.Type),
		TargetUserID: n.TargetUserID,
		ReferenceID:  n.ReferenceID,
		IsRead:       n.IsRead,
		CreatedAt:    n.CreatedAt.UTC(),
	})
	return err
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID string) ([]*domainnotification.Notification, error) {
	cur, err := r.col.Find(ctx, bson.M{"target_user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []notificationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainnotification.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, &domainnotification.Notification{
			ID:           d.ID,
			Type:         domainnotification.Type(d.Type),
			TargetUserID: d.TargetUserID,
			ReferenceID:  d.ReferenceID,
			IsRead:       d.IsRead,
			CreatedAt:    d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// HasReviewed reads the review collection the CRUD application writes.
func (r *NotificationRepository) HasReviewed(ctx context.Context, bookingID, userID string) (bool, error) {
	n, err := r.reviews.CountDocuments(ctx, bson.M{"booking_id": bookingID, "reviewer_id": userID}, options.Count().SetLimit(1))
	return n > 0, err
}
