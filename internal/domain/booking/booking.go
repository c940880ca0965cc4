package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigsocket/internal/domain/shared/events"
)

var (
	ErrNotFound          = errors.New("booking: not found")
	ErrInvalidQuantity   = errors.New("booking: quantity must be positive")
	ErrInvalidSchedule   = errors.New("booking: end time must be after start time")
	ErrInvalidTransition = errors.New("booking: invalid state transition")
	ErrAlreadyInStatus   = errors.New("booking: already in requested status")
	ErrActorNotAllowed   = errors.New("booking: actor not allowed to issue event")
	ErrUnknownEvent      = errors.New("booking: unknown event type")
	ErrSlotTaken         = errors.New("booking: date already booked")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusDeclined  Status = "DECLINED"
	StatusCompleted Status = "COMPLETED"
)

// Active reports whether the booking still occupies its freelancer's day.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleFreelancer Role = "FREELANCER"
)

type Booking struct {
	ID           string
	PostID       string
	ClientID     string
	FreelancerID string
	Date         time.Time
	StartTime    *time.Time
	EndTime      *time.Time
	Quantity     int
	TotalAmount  float64
	Status       Status
	Description  string
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id string) (*Booking, error)
	// LockSlot serialises writers of the freelancer's day until the
	// surrounding unit of work ends.
	LockSlot(ctx context.Context, freelancerID string, day time.Time) error
	// ActiveOnDay returns the PENDING or CONFIRMED booking on the day, if any,
	// skipping excludeID.
	ActiveOnDay(ctx context.Context, freelancerID string, day time.Time, excludeID string) (*Booking, error)
	Create(ctx context.Context, b *Booking) error
	Update(ctx context.Context, b *Booking) error
	HasConfirmedBetween(ctx context.Context, freelancerID, clientID string) (bool, error)
}

type CreateParams struct {
	ID           string
	PostID       string
	ClientID     string
	FreelancerID string
	Date         time.Time
	StartTime    *time.Time
	EndTime      *time.Time
	Quantity     int
	UnitPrice    float64
	Description  string
	CreatedAt    time.Time
}

func New(params CreateParams) (*Booking, error) {
	if params.ID == "" {
		return nil, errors.New("booking: id required")
	}
	if params.ClientID == "" || params.FreelancerID == "" {
		return nil, errors.New("booking: client and freelancer required")
	}
	if params.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := checkSchedule(params.StartTime, params.EndTime); err != nil {
		return nil, err
	}
	b := &Booking{
		ID:           params.ID,
		PostID:       params.PostID,
		ClientID:     params.ClientID,
		FreelancerID: params.FreelancerID,
		Date:         params.Date.UTC(),
		StartTime:    params.StartTime,
		EndTime:      params.EndTime,
		Quantity:     params.Quantity,
		TotalAmount:  TotalFor(params.Quantity, params.UnitPrice),
		Status:       StatusPending,
		Description:  params.Description,
		CreatedAt:    params.CreatedAt,
		UpdatedAt:    params.CreatedAt,
	}
	b.Record(Created{BookingID: b.ID, PostID: b.PostID, ClientID: b.ClientID, FreelancerID: b.FreelancerID, Date: b.Date, At: b.CreatedAt})
	return b, nil
}

func TotalFor(quantity int, unitPrice float64) float64 {
	return float64(quantity) * unitPrice
}

// DayOf truncates t to the start of its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (b *Booking) Day() time.Time {
	return DayOf(b.Date)
}

// RoleOf reports which side of the booking userID is on.
func (b *Booking) RoleOf(userID string) (Role, bool) {
	switch userID {
	case b.ClientID:
		return RoleClient, true
	case b.FreelancerID:
		return RoleFreelancer, true
	default:
		return "", false
	}
}

// Apply moves the booking to the status the event maps to.
func (b *Booking) Apply(ev EventType, actor Role, now time.Time) error {
	if ev == EventCreated {
		return ErrInvalidTransition
	}
	next, err := StatusFor(ev)
	if err != nil {
		return err
	}
	if !actorMayIssue(ev, actor) {
		return fmt.Errorf("%w: %s cannot issue %s", ErrActorNotAllowed, actor, ev)
	}
	if b.Status == next && ev != EventUpdated {
		return fmt.Errorf("%w: booking is already %s", ErrAlreadyInStatus, next)
	}
	if !transitionAllowed(b.Status, ev) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, b.Status)
	}
	prev := b.Status
	b.Status = next
	b.UpdatedAt = now
	changed := StatusChanged{BookingID: b.ID, Event: ev, From: prev, To: next, At: now}
	if next == StatusCancelled {
		changed.Reason = b.CancelReason
	}
	b.Record(changed)
	return nil
}

// Reschedule replaces the booking's date and optional times.
func (b *Booking) Reschedule(date time.Time, start, end *time.Time) error {
	if err := checkSchedule(start, end); err != nil {
		return err
	}
	b.Date = date.UTC()
	b.StartTime = start
	b.EndTime = end
	return nil
}

func (b *Booking) Revise(description *string, quantity *int, unitPrice float64) error {
	if quantity != nil {
		if *quantity <= 0 {
			return ErrInvalidQuantity
		}
		b.Quantity = *quantity
	}
	if description != nil {
		b.Description = *description
	}
	b.TotalAmount = TotalFor(b.Quantity, unitPrice)
	return nil
}

// StartsAt is the start time when known, otherwise the booked date.
func (b *Booking) StartsAt() time.Time {
	if b.StartTime != nil {
		return *b.StartTime
	}
	return b.Date
}

func checkSchedule(start, end *time.Time) error {
	if start != nil && end != nil && !end.After(*start) {
		return ErrInvalidSchedule
	}
	return nil
}
