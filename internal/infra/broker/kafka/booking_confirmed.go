package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	domainbooking "gigsocket/internal/domain/booking"
	"gigsocket/internal/infra/obs"
)

const bookingConfirmedType = "booking.confirmed"

// Inbox remembers which events a consumer already handled.
type Inbox interface {
	// Seen claims eventID and reports whether it was claimed before.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Forget releases a claim so a redelivery is handled again.
	Forget(ctx context.Context, eventID string) error
}

type BookingLoader interface {
	ByID(ctx context.Context, id string) (*domainbooking.Booking, error)
}

type Seeder interface {
	SeedBookingConversation(ctx context.Context, b *domainbooking.Booking) error
}

// BookingConfirmedHandler seeds the system conversation for bookings the CRUD
// application confirmed outside the socket.
type BookingConfirmedHandler struct {
	inbox    Inbox
	bookings BookingLoader
	seeder   Seeder
	source   string
	metrics  *obs.Metrics
	logger   *slog.Logger
}

func NewBookingConfirmedHandler(inbox Inbox, bookings BookingLoader, seeder Seeder, source string, metrics *obs.Metrics, logger *slog.Logger) *BookingConfirmedHandler {
	if inbox == nil || bookings == nil || seeder == nil {
		panic("kafka: inbox, bookings and seeder are required")
	}
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingConfirmedHandler{inbox: inbox, bookings: bookings, seeder: seeder, source: source, metrics: metrics, logger: logger}
}

type bookingRef struct {
	BookingID string `json:"bookingId"`
	ID        string `json:"id"`
}

func (r bookingRef) id() string {
	if r.BookingID != "" {
		return r.BookingID
	}
	return r.ID
}

// Handle returns an error only when a retry could succeed. Undecodable and
// irrelevant messages are acknowledged.
func (h *BookingConfirmedHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt CloudEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.count("unknown", "malformed")
		h.logger.WarnContext(ctx, "dropping undecodable kafka event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	typ := strings.TrimSuffix(evt.Type, ".v1")
	if typ != bookingConfirmedType {
		h.count(typ, "ignored")
		return nil
	}
	if h.source != "" && evt.Source == h.source {
		h.count(typ, "own_source")
		return nil
	}
	var ref bookingRef
	if err := json.Unmarshal(evt.Data, &ref); err != nil || ref.id() == "" || evt.ID == "" {
		h.count(typ, "malformed")
		h.logger.WarnContext(ctx, "dropping booking.confirmed without ids", "event_id", evt.ID, "offset", msg.Offset)
		return nil
	}

	seen, err := h.inbox.Seen(ctx, evt.ID)
	if err != nil {
		h.count(typ, "error")
		return fmt.Errorf("inbox claim %s: %w", evt.ID, err)
	}
	if seen {
		h.count(typ, "duplicate")
		return nil
	}
	if err := h.seed(ctx, ref.id()); err != nil {
		h.count(typ, "error")
		if ferr := h.inbox.Forget(ctx, evt.ID); ferr != nil {
			h.logger.ErrorContext(ctx, "inbox release failed", "event_id", evt.ID, "error", ferr)
		}
		return err
	}
	h.count(typ, "ok")
	return nil
}

func (h *BookingConfirmedHandler) seed(ctx context.Context, bookingID string) error {
	b, err := h.bookings.ByID(ctx, bookingID)
	if errors.Is(err, domainbooking.ErrNotFound) {
		h.logger.WarnContext(ctx, "booking.confirmed for unknown booking", "booking_id", bookingID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	if b.Status != domainbooking.StatusConfirmed {
		h.logger.InfoContext(ctx, "booking no longer confirmed, not seeding", "booking_id", bookingID, "status", b.Status)
		return nil
	}
	if err := h.seeder.SeedBookingConversation(ctx, b); err != nil {
		return fmt.Errorf("seed conversation for %s: %w", bookingID, err)
	}
	return nil
}

func (h *BookingConfirmedHandler) count(typ, outcome string) {
	h.metrics.ConsumedEvents.WithLabelValues(typ, outcome).Inc()
}
