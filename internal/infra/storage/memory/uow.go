package memory

import (
	"context"
	"errors"
	"sync"

	"gigsocket/internal/app/uow"
	domainbooking "gigsocket/internal/domain/booking"
	domainposts "gigsocket/internal/domain/posts"
	domainuser "gigsocket/internal/domain/user"
)

var ErrUnitClosed = errors.New("memory: unit of work already finished")

// Factory starts units of work over a Store.
type Factory struct {
	Store *Store
}

// Begin blocks until no other unit is open, then works on a private copy of
// the transactional tables.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, errors.New("memory: unit of work factory missing store")
	}
	if err := lockCtx(ctx, &f.Store.txMu); err != nil {
		return nil, err
	}
	f.Store.mu.RLock()
	snapshot := f.Store.data.clone()
	f.Store.mu.RUnlock()

	u := &Unit{store: f.Store, data: snapshot, readOnly: opts.ReadOnly}
	local := func(write bool, fn func(t *tables) error) error {
		if u.done {
			return ErrUnitClosed
		}
		return fn(u.data)
	}
	u.bookings = &BookingRepository{access: local}
	u.posts = &PostRepository{access: local}
	u.users = &UserRepository{access: local}
	return u, nil
}

type Unit struct {
	store    *Store
	data     *tables
	readOnly bool
	done     bool

	bookings *BookingRepository
	posts    *PostRepository
	users    *UserRepository
}

func (u *Unit) Bookings() domainbooking.Repository { return u.bookings }
func (u *Unit) Posts() domainposts.Repository      { return u.posts }
func (u *Unit) Users() domainuser.Repository       { return u.users }

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return ErrUnitClosed
	}
	u.done = true
	if !u.readOnly {
		u.store.mu.Lock()
		u.store.data = u.data
		u.store.mu.Unlock()
	}
	u.store.txMu.Unlock()
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.txMu.Unlock()
	return nil
}

// lockCtx acquires mu unless ctx ends first.
func lockCtx(ctx context.Context, mu *sync.Mutex) error {
	if mu.TryLock() {
		return nil
	}
	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return ctx.Err()
	}
}
