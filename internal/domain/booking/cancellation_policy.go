package booking

import (
	"errors"
	"time"
)

var (
	ErrSameDayNotice = errors.New("same-day bookings can only be cancelled at least 2 hours before the scheduled time")
	ErrAdvanceNotice = errors.New("bookings for future dates can only be cancelled at least 24 hours before the scheduled time")
)

// CancellationPolicy bounds when a client may cancel. Freelancers may always cancel.
type CancellationPolicy struct {
	GracePeriod   time.Duration
	SameDayNotice time.Duration
	AdvanceNotice time.Duration
}

func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		GracePeriod:   30 * time.Minute,
		SameDayNotice: 2 * time.Hour,
		AdvanceNotice: 24 * time.Hour,
	}
}

func (p CancellationPolicy) Check(b *Booking, actor Role, now time.Time) error {
	if actor != RoleClient {
		return nil
	}
	if now.Sub(b.CreatedAt) <= p.GracePeriod {
		return nil
	}
	untilStart := b.StartsAt().Sub(now)
	if DayOf(b.Date).Equal(DayOf(now)) {
		if untilStart < p.SameDayNotice {
			return ErrSameDayNotice
		}
		return nil
	}
	if untilStart < p.AdvanceNotice {
		return ErrAdvanceNotice
	}
	return nil
}
