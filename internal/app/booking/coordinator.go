package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigsocket/internal/app/apperr"
	"gigsocket/internal/app/dto"
	"gigsocket/internal/app/eventstream"
	"gigsocket/internal/app/policies"
	"gigsocket/internal/app/uow"
	"gigsocket/internal/app/validation"
	domainbooking "gigsocket/internal/domain/booking"
	domainnotification "gigsocket/internal/domain/notification"
	domainposts "gigsocket/internal/domain/posts"
	domainuser "gigsocket/internal/domain/user"
)

// Notifier creates and delivers the notification for a booking event.
type Notifier interface {
	Booking(ctx context.Context, b *domainbooking.Booking, ev domainbooking.EventType) (*domainnotification.Notification, error)
}

// ConversationSeeder opens the chat between the two parties of a confirmed booking.
type ConversationSeeder interface {
	SeedBookingConversation(ctx context.Context, b *domainbooking.Booking) error
}

type Dependencies struct {
	UoW       uow.UoWFactory
	Posts     domainposts.Repository
	Notifier  Notifier
	Deliverer policies.Deliverer
	Seeder    ConversationSeeder
	Events    eventstream.Publisher
	Validator *validation.Validator
	Logger    *slog.Logger
	Policy    *domainbooking.CancellationPolicy
	Clock     func() time.Time
	IDs       func() string
}

// Coordinator runs the booking state machine for inbound BOOKING frames.
type Coordinator struct {
	uow       uow.UoWFactory
	posts     domainposts.Repository
	notifier  Notifier
	deliverer policies.Deliverer
	seeder    ConversationSeeder
	stream    *eventstream.Stream
	validator *validation.Validator
	logger    *slog.Logger
	policy    domainbooking.CancellationPolicy
	now       func() time.Time
	newID     func() string
}

func NewCoordinator(deps Dependencies) *Coordinator {
	if deps.UoW == nil || deps.Posts == nil || deps.Notifier == nil || deps.Deliverer == nil {
		panic("booking: uow, posts, notifier and deliverer are required")
	}
	c := &Coordinator{
		uow:       deps.UoW,
		posts:     deps.Posts,
		notifier:  deps.Notifier,
		deliverer: deps.Deliverer,
		seeder:    deps.Seeder,
		validator: deps.Validator,
		logger:    deps.Logger,
		policy:    domainbooking.DefaultCancellationPolicy(),
		now:       deps.Clock,
		newID:     deps.IDs,
	}
	if deps.Policy != nil {
		c.policy = *deps.Policy
	}
	if c.validator == nil {
		c.validator = validation.New()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	c.stream = eventstream.NewStream(deps.Events, c.newID)
	return c
}

// Handle decodes one BOOKING frame and runs it.
func (c *Coordinator) Handle(ctx context.Context, actorID string, env dto.EventEnvelope) error {
	ev, err := Decode(c.validator, env)
	if err != nil {
		return err
	}
	return ev.Accept(ctx, actorID, c)
}

func (c *Coordinator) Created(ctx context.Context, actorID string, ev Created) error {
	date, start, end, err := parseSchedule(&ev.Date, ev.StartTime, ev.EndTime)
	if err != nil {
		return err
	}
	quantity := 1
	if ev.Quantity != nil {
		quantity = *ev.Quantity
	}

	post, err := c.posts.ByID(ctx, ev.PostID)
	if err != nil {
		return translate(err, "load post")
	}
	if post.OwnerID == actorID {
		return apperr.Forbidden("you cannot book your own post")
	}

	b, err := domainbooking.New(domainbooking.CreateParams{
		ID:           c.newID(),
		PostID:       post.ID,
		ClientID:     actorID,
		FreelancerID: post.OwnerID,
		Date:         *date,
		StartTime:    start,
		EndTime:      end,
		Quantity:     quantity,
		UnitPrice:    post.UnitPrice(),
		Description:  ev.Description,
		CreatedAt:    c.now(),
	})
	if err != nil {
		return translate(err, "build booking")
	}

	err = uow.Run(ctx, c.uow, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		return reserveSlot(ctx, unit.Bookings(), b, func() error {
			return unit.Bookings().Create(ctx, b)
		})
	})
	if err != nil {
		return translate(err, "create booking")
	}
	c.logger.InfoContext(ctx, "booking created", "booking_id", b.ID, "client_id", b.ClientID, "freelancer_id", b.FreelancerID)
	return c.afterCommit(ctx, actorID, b, domainbooking.EventCreated)
}

func (c *Coordinator) Confirmed(ctx context.Context, actorID string, ev Confirmed) error {
	return c.transition(ctx, actorID, ev.Target, ev.Type(), transitionHooks{
		after: func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
			return c.consumeCredit(ctx, unit.Users(), b)
		},
	})
}

func (c *Coordinator) Declined(ctx context.Context, actorID string, ev Declined) error {
	return c.transition(ctx, actorID, ev.Target, ev.Type(), transitionHooks{})
}

func (c *Coordinator) Cancelled(ctx context.Context, actorID string, ev Cancelled) error {
	return c.transition(ctx, actorID, ev.Target, ev.Type(), transitionHooks{
		before: func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, role domainbooking.Role) error {
			if err := c.policy.Check(b, role, c.now()); err != nil {
				return apperr.Validation("cancellation failed: " + err.Error())
			}
			b.CancelReason = strings.TrimSpace(ev.Reason)
			return nil
		},
	})
}

func (c *Coordinator) Completed(ctx context.Context, actorID string, ev Completed) error {
	return c.transition(ctx, actorID, ev.Target, ev.Type(), transitionHooks{})
}

func (c *Coordinator) Rescheduled(ctx context.Context, actorID string, ev Rescheduled) error {
	date, start, end, err := parseSchedule(ev.Date, ev.StartTime, ev.EndTime)
	if err != nil {
		return err
	}
	return c.transition(ctx, actorID, ev.Target, ev.Type(), transitionHooks{
		after: func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
			if date == nil && start == nil && end == nil {
				return nil
			}
			newDate := b.Date
			if date != nil {
				newDate = *date
			}
			if err := b.Reschedule(newDate, start, end); err != nil {
				return err
			}
			return reserveSlot(ctx, unit.Bookings(), b, func() error { return nil })
		},
	})
}

func (c *Coordinator) Updated(ctx context.Context, actorID string, ev Updated) error {
	return c.transition(ctx, actorID, ev.Target, ev.Type(), transitionHooks{
		after: func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
			if ev.Description == nil && ev.Quantity == nil {
				return nil
			}
			post, err := unit.Posts().ByID(ctx, b.PostID)
			if err != nil {
				return err
			}
			return b.Revise(ev.Description, ev.Quantity, post.UnitPrice())
		},
	})
}

type transitionHooks struct {
	// before runs on the stored booking ahead of the status change.
	before func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, role domainbooking.Role) error
	// after runs once the status has changed, inside the same unit.
	after func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error
}

func (c *Coordinator) transition(ctx context.Context, actorID string, target Target, ev domainbooking.EventType, hooks transitionHooks) error {
	var updated *domainbooking.Booking
	err := uow.Run(ctx, c.uow, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, target.BookingID)
		if err != nil {
			return err
		}
		if b.ClientID != target.ClientID || b.FreelancerID != target.FreelancerID {
			return apperr.Forbidden("booking parties do not match")
		}
		role, ok := b.RoleOf(actorID)
		if !ok {
			return apperr.Forbidden("you are not a party to this booking")
		}
		if hooks.before != nil {
			if err := hooks.before(ctx, unit, b, role); err != nil {
				return err
			}
		}
		if err := b.Apply(ev, role, c.now()); err != nil {
			return err
		}
		if hooks.after != nil {
			if err := hooks.after(ctx, unit, b); err != nil {
				return err
			}
		}
		if err := unit.Bookings().Update(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return translate(err, "update booking")
	}
	c.logger.InfoContext(ctx, "booking status changed", "booking_id", updated.ID, "event", ev, "status", updated.Status)
	return c.afterCommit(ctx, actorID, updated, ev)
}

// afterCommit runs the deliveries for a persisted change: the notification
// to the counterpart first, then the echo to the requester.
func (c *Coordinator) afterCommit(ctx context.Context, actorID string, b *domainbooking.Booking, ev domainbooking.EventType) error {
	pending := b.Drain()
	if _, err := c.notifier.Booking(ctx, b, ev); err != nil {
		return err
	}
	echo := dto.OutboundMessage{Type: dto.MessageBooking, Action: string(ev), Payload: dto.BookingFromDomain(b)}
	if err := c.deliverer.Deliver(ctx, actorID, echo); err != nil {
		return apperr.Internal("deliver booking echo", err)
	}
	if ev == domainbooking.EventConfirmed && c.seeder != nil {
		if err := c.seeder.SeedBookingConversation(ctx, b); err != nil {
			c.logger.WarnContext(ctx, "seed booking conversation failed", "booking_id", b.ID, "error", err)
		}
	}
	if err := c.stream.Emit(ctx, pending...); err != nil {
		c.logger.WarnContext(ctx, "publish booking events failed", "booking_id", b.ID, "error", err)
	}
	return nil
}

func (c *Coordinator) consumeCredit(ctx context.Context, users domainuser.Repository, b *domainbooking.Booking) error {
	freelancer, err := users.ByID(ctx, b.FreelancerID)
	if err != nil {
		return err
	}
	tx, err := freelancer.ConsumeCredit(c.newID(), b.ID, c.now())
	if err != nil || tx == nil {
		return err
	}
	if err := users.Save(ctx, freelancer); err != nil {
		return err
	}
	return users.RecordCredit(ctx, *tx)
}

// reserveSlot locks the freelancer's day, fails if another active booking
// holds it, and runs write while the lock is held.
func reserveSlot(ctx context.Context, repo domainbooking.Repository, b *domainbooking.Booking, write func() error) error {
	day := b.Day()
	if err := repo.LockSlot(ctx, b.FreelancerID, day); err != nil {
		return err
	}
	existing, err := repo.ActiveOnDay(ctx, b.FreelancerID, day, b.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domainbooking.ErrSlotTaken
	}
	return write()
}

func parseSchedule(date, start, end *string) (*time.Time, *time.Time, *time.Time, error) {
	parse := func(field string, raw *string) (*time.Time, error) {
		if raw == nil || *raw == "" {
			return nil, nil
		}
		t, err := validation.ParseDate(*raw)
		if err != nil {
			return nil, apperr.Validation(field + " must be a date (YYYY-MM-DD or RFC 3339)")
		}
		return &t, nil
	}
	d, err := parse("date", date)
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := parse("startTime", start)
	if err != nil {
		return nil, nil, nil, err
	}
	e, err := parse("endTime", end)
	if err != nil {
		return nil, nil, nil, err
	}
	return d, s, e, nil
}

func translate(err error, op string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, domainbooking.ErrSlotTaken):
		return apperr.Conflict("date already booked")
	case errors.Is(err, domainbooking.ErrAlreadyInStatus), errors.Is(err, domainbooking.ErrInvalidTransition):
		return apperr.Conflict(err.Error())
	case errors.Is(err, domainuser.ErrNoCredits):
		return apperr.Conflict("freelancer has no credits left to confirm bookings")
	case errors.Is(err, domainbooking.ErrActorNotAllowed):
		return apperr.Forbidden(err.Error())
	case errors.Is(err, domainbooking.ErrInvalidQuantity), errors.Is(err, domainbooking.ErrInvalidSchedule):
		return apperr.Validation(err.Error())
	case errors.Is(err, domainbooking.ErrUnknownEvent):
		return apperr.Validation("invalid booking event type")
	case errors.Is(err, domainbooking.ErrNotFound):
		return apperr.NotFound("booking")
	case errors.Is(err, domainposts.ErrNotFound):
		return apperr.NotFound("post")
	case errors.Is(err, domainuser.ErrNotFound):
		return apperr.NotFound("user")
	default:
		return apperr.Internal(op, err)
	}
}
