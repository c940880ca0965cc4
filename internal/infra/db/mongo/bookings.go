package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "gigsocket/internal/domain/booking"
)

// codeWriteConflict is returned to the second of two transactions writing the
// same document.
const codeWriteConflict = 112

type BookingRepository struct {
	col   *mongo.Collection
	locks *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection(colBookings), locks: db.Collection(colSlotLocks)}
}

func (r *BookingRepository) ByID(ctx context.Context, id string) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// LockSlot writes the freelancer's day lock document inside the caller's
// transaction. A concurrent transaction holding the same lock fails with a
// write conflict, reported as ErrSlotTaken.
func (r *BookingRepository) LockSlot(ctx context.Context, freelancerID string, day time.Time) error {
	day = domainbooking.DayOf(day)
	_, err := r.locks.UpdateOne(ctx,
		bson.M{"_id": slotLockID(freelancerID, day)},
		bson.M{
			"$inc": bson.M{"version": 1},
			"$set": bson.M{"freelancer_id": freelancerID, "day": day, "locked_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if isWriteConflict(err) || mongo.IsDuplicateKeyError(err) {
		return domainbooking.ErrSlotTaken
	}
	return err
}

func (r *BookingRepository) ActiveOnDay(ctx context.Context, freelancerID string, day time.Time, excludeID string) (*domainbooking.Booking, error) {
	filter := bson.M{
		"freelancer_id": freelancerID,
		"day":           domainbooking.DayOf(day),
		"status":        bson.M{"$in": []string{string(domainbooking.StatusPending), string(domainbooking.StatusConfirmed)}},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	var doc bookingDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) Create(ctx context.Context, b *domainbooking.Booking) error {
	_, err := r.col.InsertOne(ctx, newBookingDocument(b))
	return err
}

func (r *BookingRepository) Update(ctx context.Context, b *domainbooking.Booking) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": b.ID}, newBookingDocument(b))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainbooking.ErrNotFound
	}
	return nil
}

func (r *BookingRepository) HasConfirmedBetween(ctx context.Context, freelancerID, clientID string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"freelancer_id": freelancerID,
		"client_id":     clientID,
		"status":        string(domainbooking.StatusConfirmed),
	}, options.Count().SetLimit(1))
	return n > 0, err
}

type bookingDocument struct {
	ID           string     `bson:"_id"`
	PostID       string     `bson:"post_id"`
	ClientID     string     `bson:"client_id"`
	FreelancerID string     `bson:"freelancer_id"`
	Date         time.Time  `bson:"date"`
	Day          time.Time  `bson:"day"`
	StartTime    *time.Time `bson:"start_time,omitempty"`
	EndTime      *time.Time `bson:"end_time,omitempty"`
	Quantity     int        `bson:"quantity"`
	TotalAmount  float64    `bson:"total_amount"`
	Status       string     `bson:"status"`
	Description  string     `bson:"description,omitempty"`
	CancelReason string     `bson:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:           b.ID,
		PostID:       b.PostID,
		ClientID:     b.ClientID,
		FreelancerID: b.FreelancerID,
		Date:         b.Date.UTC(),
		Day:          b.Day(),
		StartTime:    utcPtr(b.StartTime),
		EndTime:      utcPtr(b.EndTime),
		Quantity:     b.Quantity,
		TotalAmount:  b.TotalAmount,
		Status:       string(b.Status),
		Description:  b.Description,
		CancelReason: b.CancelReason,
		CreatedAt:    b.CreatedAt.UTC(),
		UpdatedAt:    b.UpdatedAt.UTC(),
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	return &domainbooking.Booking{
		ID:           d.ID,
		PostID:       d.PostID,
		ClientID:     d.ClientID,
		FreelancerID: d.FreelancerID,
		Date:         d.Date.UTC(),
		StartTime:    utcPtr(d.StartTime),
		EndTime:      utcPtr(d.EndTime),
		Quantity:     d.Quantity,
		TotalAmount:  d.TotalAmount,
		Status:       domainbooking.Status(d.Status),
		Description:  d.Description,
		CancelReason: d.CancelReason,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

func slotLockID(freelancerID string, day time.Time) string {
	return freelancerID + ":" + day.Format(time.DateOnly)
}

func isWriteConflict(err error) bool {
	if err == nil {
		return false
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(codeWriteConflict)
	}
	return false
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
