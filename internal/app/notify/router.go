package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gigsocket/internal/app/apperr"
	"gigsocket/internal/app/dto"
	"gigsocket/internal/app/policies"
	domainbooking "gigsocket/internal/domain/booking"
	domainchat "gigsocket/internal/domain/chat"
	domainnotification "gigsocket/internal/domain/notification"
)

// Router persists a notification for the single party an event concerns and
// delivers it to them.
type Router struct {
	store     domainnotification.Repository
	deliverer policies.Deliverer
	reviews   policies.ReviewChecker
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Router)

func WithReviews(reviews policies.ReviewChecker) Option {
	return func(r *Router) { r.reviews = reviews }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func WithIDs(newID func() string) Option {
	return func(r *Router) { r.newID = newID }
}

func NewRouter(store domainnotification.Repository, deliverer policies.Deliverer, logger *slog.Logger, opts ...Option) *Router {
	if store == nil || deliverer == nil {
		panic("notify: store and deliverer required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		store:     store,
		deliverer: deliverer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Booking notifies the party the event type points at.
func (r *Router) Booking(ctx context.Context, b *domainbooking.Booking, ev domainbooking.EventType) (*domainnotification.Notification, error) {
	recipient, err := domainbooking.RecipientFor(ev, b)
	if err != nil {
		return nil, apperr.Validation("unsupported booking event").WithDetails(map[string]any{"type": string(ev)})
	}
	canReview, err := r.canReview(ctx, b, recipient)
	if err != nil {
		return nil, apperr.Internal("check review state", err)
	}
	n, err := r.persist(ctx, domainnotification.TypeBooking, recipient, b.ID)
	if err != nil {
		return nil, err
	}
	msg := dto.OutboundMessage{
		Type:   dto.MessageNotification,
		Action: string(ev),
		Payload: dto.BookingNotification{
			Notification: dto.NotificationFromDomain(n),
			Booking:      dto.BookingFromDomain(b),
			CanReview:    canReview,
		},
	}
	if err := r.deliverer.Deliver(ctx, recipient, msg); err != nil {
		return n, apperr.Internal("deliver booking notification", err)
	}
	return n, nil
}

// RecordChat stores the notification telling recipientID about m. It does
// not deliver it; callers persist before anything reaches a socket.
func (r *Router) RecordChat(ctx context.Context, recipientID string, m *domainchat.Message) (*domainnotification.Notification, error) {
	return r.persist(ctx, domainnotification.TypeChat, recipientID, m.ConversationID)
}

// DeliverChat sends a notification stored by RecordChat to its target.
func (r *Router) DeliverChat(ctx context.Context, n *domainnotification.Notification, m *domainchat.Message) error {
	msg := dto.OutboundMessage{
		Type:   dto.MessageNotification,
		Action: "MESSAGE",
		Payload: dto.ChatNotification{
			Notification: dto.NotificationFromDomain(n),
			Message:      dto.MessageFromDomain(m),
		},
	}
	if err := r.deliverer.Deliver(ctx, n.TargetUserID, msg); err != nil {
		return apperr.Internal("deliver chat notification", err)
	}
	return nil
}

func (r *Router) persist(ctx context.Context, typ domainnotification.Type, target, reference string) (*domainnotification.Notification, error) {
	n, err := domainnotification.New(r.newID(), typ, target, reference, r.now())
	if err != nil {
		if errors.Is(err, domainnotification.ErrTargetRequired) {
			return nil, apperr.Validation("notification target missing")
		}
		return nil, apperr.Internal("build notification", err)
	}
	if err := r.store.Create(ctx, n); err != nil {
		return nil, apperr.Internal("persist notification", err)
	}
	r.logger.DebugContext(ctx, "notification stored", "id", n.ID, "type", n.Type, "target", target)
	return n, nil
}

func (r *Router) canReview(ctx context.Context, b *domainbooking.Booking, recipient string) (bool, error) {
	if recipient != b.ClientID || b.Status != domainbooking.StatusCompleted {
		return false, nil
	}
	if r.reviews == nil {
		return true, nil
	}
	reviewed, err := r.reviews.HasReviewed(ctx, b.ID, recipient)
	if err != nil {
		return false, err
	}
	return !reviewed, nil
}
