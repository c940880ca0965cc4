package notification

import (
	"context"
	"errors"
	"time"
)

var ErrTargetRequired = errors.New("notification: target user is required")

type Type string

const (
	TypeBooking Type = "BOOKING"
	TypeChat    Type = "CHAT"
)

type Notification struct {
	ID           string
	Type         Type
	TargetUserID string
	ReferenceID  string
	IsRead       bool
	CreatedAt    time.Time
}

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID string) ([]*Notification, error)
}

func New(id string, typ Type, target, reference string, now time.Time) (*Notification, error) {
	if target == "" {
		return nil, ErrTargetRequired
	}
	return &Notification{
		ID:           id,
		Type:         typ,
		TargetUserID: target,
		ReferenceID:  reference,
		CreatedAt:    now.UTC(),
	}, nil
}
