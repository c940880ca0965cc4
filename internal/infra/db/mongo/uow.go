package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"gigsocket/internal/app/uow"
	domainbooking "gigsocket/internal/domain/booking"
	domainposts "gigsocket/internal/domain/posts"
	domainuser "gigsocket/internal/domain/user"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
// Repositories run inside the transaction through the session context that
// uow.Run injects.
type Factory struct {
	DB *mongo.Database

	BookingRepo domainbooking.Repository
	PostRepo    domainposts.Repository
	UserRepo    domainuser.Repository
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

func NewFactory(db *mongo.Database) Factory {
	return Factory{
		DB:          db,
		BookingRepo: NewBookingRepository(db),
		PostRepo:    NewPostRepository(db),
		UserRepo:    NewUserRepository(db),
	}
}

// Begin starts a MongoDB session/transaction.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if opts.ReadOnly {
		txnOpts = txnOpts.SetReadConcern(readconcern.Majority())
	}
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{
		session:  session,
		bookings: f.BookingRepo,
		posts:    f.PostRepo,
		users:    f.UserRepo,
	}, nil
}

type Unit struct {
	session mongo.Session

	bookings domainbooking.Repository
	posts    domainposts.Repository
	users    domainuser.Repository
}

func (u *Unit) Bookings() domainbooking.Repository { return u.bookings }
func (u *Unit) Posts() domainposts.Repository      { return u.posts }
func (u *Unit) Users() domainuser.Repository       { return u.users }

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}
