package booking

import (
	"context"

	"gigsocket/internal/app/apperr"
	"gigsocket/internal/app/dto"
	"gigsocket/internal/app/validation"
	domainbooking "gigsocket/internal/domain/booking"
)

// Event is the closed set of booking events a client can send. Handlers
// implement Visitor, so a new kind does not compile until every handler
// covers it.
type Event interface {
	Type() domainbooking.EventType
	Accept(ctx context.Context, actorID string, v Visitor) error
	sealed()
}

type Visitor interface {
	Created(ctx context.Context, actorID string, ev Created) error
	Confirmed(ctx context.Context, actorID string, ev Confirmed) error
	Declined(ctx context.Context, actorID string, ev Declined) error
	Cancelled(ctx context.Context, actorID string, ev Cancelled) error
	Completed(ctx context.Context, actorID string, ev Completed) error
	Rescheduled(ctx context.Context, actorID string, ev Rescheduled) error
	Updated(ctx context.Context, actorID string, ev Updated) error
}

type Created struct {
	PostID      string  `json:"postId" validate:"required"`
	Date        string  `json:"date" validate:"required,date_any"`
	StartTime   *string `json:"startTime,omitempty" validate:"omitempty,date_any"`
	EndTime     *string `json:"endTime,omitempty" validate:"omitempty,date_any"`
	Description string  `json:"description" validate:"required,min=5,max=500"`
	Quantity    *int    `json:"quantity,omitempty" validate:"omitempty,gt=0"`
}

// Target names an existing booking. The ids are checked against the stored
// record before anything changes.
type Target struct {
	BookingID    string `json:"bookingId" validate:"required"`
	ClientID     string `json:"clientId" validate:"required"`
	FreelancerID string `json:"freelancerId" validate:"required"`
}

type Confirmed struct {
	Target
}

type Declined struct {
	Target
}

type Cancelled struct {
	Target
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type Completed struct {
	Target
}

type Rescheduled struct {
	Target
	Date      *string `json:"date,omitempty" validate:"omitempty,date_any"`
	StartTime *string `json:"startTime,omitempty" validate:"omitempty,date_any"`
	EndTime   *string `json:"endTime,omitempty" validate:"omitempty,date_any"`
}

type Updated struct {
	Target
	Description *string `json:"description,omitempty" validate:"omitempty,min=5,max=500"`
	Quantity    *int    `json:"quantity,omitempty" validate:"omitempty,gt=0"`
}

func (Created) Type() domainbooking.EventType     { return domainbooking.EventCreated }
func (Confirmed) Type() domainbooking.EventType   { return domainbooking.EventConfirmed }
func (Declined) Type() domainbooking.EventType    { return domainbooking.EventDeclined }
func (Cancelled) Type() domainbooking.EventType   { return domainbooking.EventCancelled }
func (Completed) Type() domainbooking.EventType   { return domainbooking.EventCompleted }
func (Rescheduled) Type() domainbooking.EventType { return domainbooking.EventRescheduled }
func (Updated) Type() domainbooking.EventType     { return domainbooking.EventUpdated }

func (e Created) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Created(ctx, actorID, e)
}
func (e Confirmed) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Confirmed(ctx, actorID, e)
}
func (e Declined) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Declined(ctx, actorID, e)
}
func (e Cancelled) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Cancelled(ctx, actorID, e)
}
func (e Completed) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Completed(ctx, actorID, e)
}
func (e Rescheduled) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Rescheduled(ctx, actorID, e)
}
func (e Updated) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Updated(ctx, actorID, e)
}

func (Created) sealed()     {}
func (Confirmed) sealed()   {}
func (Declined) sealed()    {}
func (Cancelled) sealed()   {}
func (Completed) sealed()   {}
func (Rescheduled) sealed() {}
func (Updated) sealed()     {}

// Decode turns an envelope into a typed event. Unknown types are rejected.
func Decode(v *validation.Validator, env dto.EventEnvelope) (Event, error) {
	switch domainbooking.EventType(env.Type) {
	case domainbooking.EventCreated:
		return decodeInto[Created](v, env)
	case domainbooking.EventConfirmed:
		return decodeInto[Confirmed](v, env)
	case domainbooking.EventDeclined:
		return decodeInto[Declined](v, env)
	case domainbooking.EventCancelled:
		return decodeInto[Cancelled](v, env)
	case domainbooking.EventCompleted:
		return decodeInto[Completed](v, env)
	case domainbooking.EventRescheduled:
		return decodeInto[Rescheduled](v, env)
	case domainbooking.EventUpdated:
		return decodeInto[Updated](v, env)
	default:
		return nil, apperr.Validation("invalid booking event type").WithDetails(map[string]any{"type": env.Type})
	}
}

func decodeInto[T Event](v *validation.Validator, env dto.EventEnvelope) (Event, error) {
	var ev T
	if err := v.Decode(env.Payload, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
