package memory

import (
	"context"
	"time"

	domainbooking "gigsocket/internal/domain/booking"
)

type accessFunc func(write bool, fn func(t *tables) error) error

type BookingRepository struct {
	access accessFunc
}

func (r *BookingRepository) ByID(ctx context.Context, id string) (*domainbooking.Booking, error) {
	var out *domainbooking.Booking
	err := r.access(false, func(t *tables) error {
		b, ok := t.bookings[id]
		if !ok {
			return domainbooking.ErrNotFound
		}
		out = cloneBooking(b)
		return nil
	})
	return out, err
}

// LockSlot is a no-op: a unit of work already excludes every other writer.
func (r *BookingRepository) LockSlot(ctx context.Context, freelancerID string, day time.Time) error {
	return nil
}

func (r *BookingRepository) ActiveOnDay(ctx context.Context, freelancerID string, day time.Time, excludeID string) (*domainbooking.Booking, error) {
	var out *domainbooking.Booking
	day = domainbooking.DayOf(day)
	err := r.access(false, func(t *tables) error {
		for _, b := range t.bookings {
			if b.ID == excludeID || b.FreelancerID != freelancerID || !b.Status.Active() {
				continue
			}
			if b.Day().Equal(day) {
				out = cloneBooking(b)
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *BookingRepository) Create(ctx context.Context, b *domainbooking.Booking) error {
	return r.access(true, func(t *tables) error {
		t.bookings[b.ID] = cloneBooking(b)
		return nil
	})
}

func (r *BookingRepository) Update(ctx context.Context, b *domainbooking.Booking) error {
	return r.access(true, func(t *tables) error {
		if _, ok := t.bookings[b.ID]; !ok {
			return domainbooking.ErrNotFound
		}
		t.bookings[b.ID] = cloneBooking(b)
		return nil
	})
}

func (r *BookingRepository) HasConfirmedBetween(ctx context.Context, freelancerID, clientID string) (bool, error) {
	found := false
	err := r.access(false, func(t *tables) error {
		for _, b := range t.bookings {
			if b.FreelancerID == freelancerID && b.ClientID == clientID && b.Status == domainbooking.StatusConfirmed {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}
