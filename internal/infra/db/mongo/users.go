package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domainposts "gigsocket/internal/domain/posts"
	domainuser "gigsocket/internal/domain/user"
)

type UserRepository struct {
	col     *mongo.Collection
	credits *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(colUsers), credits: db.Collection(colCredits)}
}

func (r *UserRepository) ByID(ctx context.Context, id string) (*domainuser.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	return r.findOne(ctx, bson.M{"email": domainuser.NormalizeEmail(email)})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domainuser.User, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) Create(ctx context.Context, u *domainuser.User) error {
	_, err := r.col.InsertOne(ctx, newUserDocument(u))
	if mongo.IsDuplicateKeyError(err) {
		return domainuser.ErrEmailAlreadyUsed
	}
	return err
}

func (r *UserRepository) Save(ctx context.Context, u *domainuser.User) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{
		"name":          u.Name,
		"password_hash": u.PasswordHash,
		"role":          string(u.Role),
		"account_type":  string(u.AccountType),
		"credits":       u.Credits,
		"updated_at":    u.UpdatedAt.UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainuser.ErrNotFound
	}
	return nil
}

func (r *UserRepository) RecordCredit(ctx context.Context, tx domainuser.CreditTransaction) error {
	_, err := r.credits.InsertOne(ctx, bson.M{
		"_id":          tx.ID,
		"user_id":      tx.UserID,
		"amount":       tx.Amount,
		"reason":       tx.Reason,
		"reference_id": tx.ReferenceID,
		"created_at":   tx.CreatedAt.UTC(),
	})
	return err
}

type userDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	AccountType  string    `bson:"account_type"`
	Credits      int       `bson:"credits"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func newUserDocument(u *domainuser.User) userDocument {
	return userDocument{
		ID:           u.ID,
		Email:        domainuser.NormalizeEmail(u.Email),
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		AccountType:  string(u.AccountType),
		Credits:      u.Credits,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain() *domainuser.User {
	role := domainuser.Role(d.Role)
	if role == "" {
		role = domainuser.RoleUser
	}
	account := domainuser.AccountType(d.AccountType)
	if account == "" {
		account = domainuser.AccountFree
	}
	return &domainuser.User{
		ID:           d.ID,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		Role:         role,
		AccountType:  account,
		Credits:      d.Credits,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

// PostRepository reads the posts the CRUD application owns.
type PostRepository struct {
	col *mongo.Collection
}

func NewPostRepository(db *mongo.Database) *PostRepository {
	return &PostRepository{col: db.Collection(colPosts)}
}

type postDocument struct {
	ID         string   `bson:"_id"`
	OwnerID    string   `bson:"owner_id"`
	Title      string   `bson:"title"`
	FixedPrice *float64 `bson:"fixed_price,omitempty"`
	HourlyRate *float64 `bson:"hourly_rate,omitempty"`
}

func (r *PostRepository) ByID(ctx context.Context, id string) (*domainposts.Post, error) {
	var doc postDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainposts.ErrNotFound
		}
		return nil, err
	}
	return &domainposts.Post{ID: doc.ID, OwnerID: doc.OwnerID, Title: doc.Title, FixedPrice: doc.FixedPrice, HourlyRate: doc.HourlyRate}, nil
}

func (r *PostRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"owner_id": ownerID})
	return int(n), err
}
