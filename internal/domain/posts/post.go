package posts

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("posts: not found")

// Post is the slice of a marketplace listing the booking flow needs:
// who offers it and how it is priced.
type Post struct {
	ID         string
	OwnerID    string
	Title      string
	FixedPrice *float64
	HourlyRate *float64
}

type Repository interface {
	ByID(ctx context.Context, id string) (*Post, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}

// UnitPrice prefers the fixed price, then the hourly rate, then zero.
func (p *Post) UnitPrice() float64 {
	switch {
	case p.FixedPrice != nil:
		return *p.FixedPrice
	case p.HourlyRate != nil:
		return *p.HourlyRate
	default:
		return 0
	}
}
