package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired          = errors.New("user: id is required")
	ErrEmailRequired       = errors.New("user: email is required")
	ErrPasswordHashMissing = errors.New("user: password hash is required")
	ErrNameRequired        = errors.New("user: name is required")
	ErrEmailAlreadyUsed    = errors.New("user: email already used")
	ErrNotFound            = errors.New("user: not found")
	ErrNoCredits           = errors.New("user: no credits left")
)

type Role string

const (
	RoleUser   Role = "USER"
	RoleSystem Role = "SYSTEM"
)

type AccountType string

const (
	AccountFree    AccountType = "FREE"
	AccountPremium AccountType = "PREMIUM"
)

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	AccountType  AccountType
	Credits      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreditTransaction is the ledger row written whenever credits move.
type CreditTransaction struct {
	ID          string
	UserID      string
	Amount      int
	Reason      string
	ReferenceID string
	CreatedAt   time.Time
}

type Repository interface {
	ByID(ctx context.Context, id string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	Save(ctx context.Context, u *User) error
	RecordCredit(ctx context.Context, tx CreditTransaction) error
}

type CreateParams struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	AccountType  AccountType
	CreatedAt    time.Time
}

func NewUser(params CreateParams) (*User, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, ErrIDRequired
	}
	email := NormalizeEmail(params.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if strings.TrimSpace(params.PasswordHash) == "" {
		return nil, ErrPasswordHashMissing
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	role := params.Role
	if role == "" {
		role = RoleUser
	}
	account := params.AccountType
	if account == "" {
		account = AccountFree
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &User{
		ID:           id,
		Email:        email,
		Name:         name,
		PasswordHash: params.PasswordHash,
		Role:         role,
		AccountType:  account,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ConsumeCredit takes one credit for confirming a booking. Premium accounts
// are not charged and get a nil transaction back.
func (u *User) ConsumeCredit(id, bookingID string, now time.Time) (*CreditTransaction, error) {
	if u.AccountType == AccountPremium {
		return nil, nil
	}
	if u.Credits <= 0 {
		return nil, ErrNoCredits
	}
	u.Credits--
	u.UpdatedAt = now.UTC()
	return &CreditTransaction{
		ID:          id,
		UserID:      u.ID,
		Amount:      -1,
		Reason:      "BOOKING_CONFIRMED",
		ReferenceID: bookingID,
		CreatedAt:   now.UTC(),
	}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
