package memory

import (
	"context"

	domainposts "gigsocket/internal/domain/posts"
	domainuser "gigsocket/internal/domain/user"
)

// UserRepository stores users in memory. Not suitable for production.
type UserRepository struct {
	access accessFunc
}

func (r *UserRepository) ByID(ctx context.Context, id string) (*domainuser.User, error) {
	var out *domainuser.User
	err := r.access(false, func(t *tables) error {
		u, ok := t.users[id]
		if !ok {
			return domainuser.ErrNotFound
		}
		cp := *u
		out = &cp
		return nil
	})
	return out, err
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	var out *domainuser.User
	email = domainuser.NormalizeEmail(email)
	err := r.access(false, func(t *tables) error {
		for _, u := range t.users {
			if u.Email == email {
				cp := *u
				out = &cp
				return nil
			}
		}
		return domainuser.ErrNotFound
	})
	return out, err
}

func (r *UserRepository) Create(ctx context.Context, u *domainuser.User) error {
	return r.access(true, func(t *tables) error {
		for _, existing := range t.users {
			if existing.Email == u.Email {
				return domainuser.ErrEmailAlreadyUsed
			}
		}
		cp := *u
		t.users[u.ID] = &cp
		return nil
	})
}

func (r *UserRepository) Save(ctx context.Context, u *domainuser.User) error {
	return r.access(true, func(t *tables) error {
		if _, ok := t.users[u.ID]; !ok {
			return domainuser.ErrNotFound
		}
		cp := *u
		t.users[u.ID] = &cp
		return nil
	})
}

func (r *UserRepository) RecordCredit(ctx context.Context, tx domainuser.CreditTransaction) error {
	return r.access(true, func(t *tables) error {
		t.credits = append(t.credits, tx)
		return nil
	})
}

type PostRepository struct {
	access accessFunc
}

func (r *PostRepository) ByID(ctx context.Context, id string) (*domainposts.Post, error) {
	var out *domainposts.Post
	err := r.access(false, func(t *tables) error {
		p, ok := t.posts[id]
		if !ok {
			return domainposts.ErrNotFound
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (r *PostRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	n := 0
	err := r.access(false, func(t *tables) error {
		for _, p := range t.posts {
			if p.OwnerID == ownerID {
				n++
			}
		}
		return nil
	})
	return n, err
}
