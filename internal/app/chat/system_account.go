package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainuser "gigsocket/internal/domain/user"
)

const systemAccountName = "System"

type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(hash, password string) (bool, error)
	// Stale reports a hash that should be recomputed at the current cost.
	Stale(hash string) bool
}

// EnsureSystemAccount returns the account that authors system messages,
// creating it on first use. An existing account whose hash no longer matches
// password, or was made at another cost, is rehashed.
func EnsureSystemAccount(ctx context.Context, users domainuser.Repository, hasher PasswordHasher, email, password string, now time.Time, newID func() string) (*domainuser.User, error) {
	existing, err := users.ByEmail(ctx, email)
	if err == nil {
		return refreshSystemPassword(ctx, users, hasher, existing, password, now)
	}
	if !errors.Is(err, domainuser.ErrNotFound) {
		return nil, fmt.Errorf("find system account: %w", err)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash system password: %w", err)
	}
	u, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           newID(),
		Email:        email,
		Name:         systemAccountName,
		PasswordHash: hash,
		Role:         domainuser.RoleSystem,
		AccountType:  domainuser.AccountPremium,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("build system account: %w", err)
	}
	if err := users.Create(ctx, u); err != nil {
		// Another instance created it first.
		if errors.Is(err, domainuser.ErrEmailAlreadyUsed) {
			return users.ByEmail(ctx, email)
		}
		return nil, fmt.Errorf("create system account: %w", err)
	}
	return u, nil
}

func refreshSystemPassword(ctx context.Context, users domainuser.Repository, hasher PasswordHasher, u *domainuser.User, password string, now time.Time) (*domainuser.User, error) {
	ok, err := hasher.Matches(u.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("check system password: %w", err)
	}
	if ok && !hasher.Stale(u.PasswordHash) {
		return u, nil
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash system password: %w", err)
	}
	u.PasswordHash = hash
	u.UpdatedAt = now
	if err := users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save system account: %w", err)
	}
	return u, nil
}
