package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigsocket/internal/app/apperr"
	"gigsocket/internal/app/dto"
	"gigsocket/internal/app/policies"
	"gigsocket/internal/app/validation"
	domainbooking "gigsocket/internal/domain/booking"
	domainchat "gigsocket/internal/domain/chat"
	domainnotification "gigsocket/internal/domain/notification"
	domainposts "gigsocket/internal/domain/posts"
	domainuser "gigsocket/internal/domain/user"
)

// BookingGreeting is posted by the system account when a booking is confirmed.
const BookingGreeting = "Your booking has been confirmed. Use this conversation to arrange the details."

// Notifier stores and later delivers the notification for a new chat message.
type Notifier interface {
	RecordChat(ctx context.Context, recipientID string, m *domainchat.Message) (*domainnotification.Notification, error)
	DeliverChat(ctx context.Context, n *domainnotification.Notification, m *domainchat.Message) error
}

// BookingLookup answers whether a freelancer and a client share a confirmed booking.
type BookingLookup interface {
	HasConfirmedBetween(ctx context.Context, freelancerID, clientID string) (bool, error)
}

type Dependencies struct {
	Chat         domainchat.Repository
	Users        domainuser.Repository
	Posts        domainposts.Repository
	Bookings     BookingLookup
	Notifier     Notifier
	Deliverer    policies.Deliverer
	Attachments  policies.AttachmentResolver
	SystemUserID string
	Validator    *validation.Validator
	Logger       *slog.Logger
	Clock        func() time.Time
	IDs          func() string
}

// Coordinator runs inbound CHAT frames and seeds booking conversations.
type Coordinator struct {
	chat         domainchat.Repository
	users        domainuser.Repository
	posts        domainposts.Repository
	bookings     BookingLookup
	notifier     Notifier
	deliverer    policies.Deliverer
	attachments  policies.AttachmentResolver
	systemUserID string
	validator    *validation.Validator
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

var errNoSystemAccount = errors.New("chat: system account not configured")

func NewCoordinator(deps Dependencies) *Coordinator {
	if deps.Chat == nil || deps.Users == nil || deps.Posts == nil || deps.Bookings == nil || deps.Deliverer == nil {
		panic("chat: chat, users, posts, bookings and deliverer are required")
	}
	c := &Coordinator{
		chat:         deps.Chat,
		users:        deps.Users,
		posts:        deps.Posts,
		bookings:     deps.Bookings,
		notifier:     deps.Notifier,
		deliverer:    deps.Deliverer,
		attachments:  deps.Attachments,
		systemUserID: deps.SystemUserID,
		validator:    deps.Validator,
		logger:       deps.Logger,
		now:          deps.Clock,
		newID:        deps.IDs,
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
	return c
}

// Handle decodes one CHAT frame and runs it.
func (c *Coordinator) Handle(ctx context.Context, actorID string, env dto.EventEnvelope) error {
	ev, err := Decode(c.validator, env)
	if err != nil {
		return err
	}
	return ev.Accept(ctx, actorID, c)
}

func (c *Coordinator) StartConversation(ctx context.Context, actorID string, ev StartConversation) error {
	recipientID := strings.TrimSpace(ev.RecipientID)
	if recipientID == actorID {
		return apperr.Validation("cannot start a conversation with yourself")
	}
	if _, err := c.users.ByID(ctx, actorID); err != nil {
		return translate(err, "load initiator")
	}
	if _, err := c.users.ByID(ctx, recipientID); err != nil {
		return translate(err, "load recipient")
	}

	existing, err := c.chat.ConversationBetween(ctx, actorID, recipientID)
	switch {
	case err == nil:
		return c.announce(ctx, existing, false, actorID)
	case !errors.Is(err, domainchat.ErrConversationNotFound):
		return translate(err, "find conversation")
	}

	if err := c.checkEligible(ctx, actorID, recipientID); err != nil {
		return err
	}
	conv, err := c.createConversation(ctx, actorID, recipientID)
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "conversation created", "conversation_id", conv.ID, "initiator_id", actorID)
	return c.announce(ctx, conv, true, actorID, recipientID)
}

func (c *Coordinator) Send(ctx context.Context, actorID string, ev Send) error {
	recipientID, err := c.recipient(ctx, ev.ConversationID, actorID)
	if err != nil {
		return err
	}
	attachment, err := pickAttachment(ev)
	if err != nil {
		return err
	}
	if strings.TrimSpace(ev.Body) == "" && attachment == "" {
		return apperr.Validation("message needs a body or an attachment")
	}
	if attachment != "" && c.attachments != nil {
		if attachment, err = c.attachments.Resolve(ctx, attachment); err != nil {
			return translate(err, "resolve attachment")
		}
	}

	msg, err := domainchat.NewMessage(domainchat.MessageParams{
		ID:             c.newID(),
		ConversationID: ev.ConversationID,
		SenderID:       actorID,
		Body:           ev.Body,
		Image:          attachment,
		CreatedAt:      c.now(),
	})
	if err != nil {
		return translate(err, "build message")
	}
	if err := c.persistMessage(ctx, msg); err != nil {
		return err
	}
	var note *domainnotification.Notification
	if c.notifier != nil {
		if note, err = c.notifier.RecordChat(ctx, recipientID, msg); err != nil {
			return err
		}
	}

	payload := dto.MessageFromDomain(msg)
	if err := c.deliver(ctx, EventSent, payload, recipientID); err != nil {
		return err
	}
	if err := c.deliver(ctx, EventDelivered, payload, actorID); err != nil {
		return err
	}
	if note != nil {
		if err := c.notifier.DeliverChat(ctx, note, msg); err != nil {
			return err
		}
	}
	c.logger.DebugContext(ctx, "message sent", "conversation_id", msg.ConversationID, "message_id", msg.ID)
	return nil
}

func (c *Coordinator) Typing(ctx context.Context, actorID string, ev Typing) error {
	recipientID, err := c.recipient(ctx, ev.ConversationID, actorID)
	if err != nil {
		return err
	}
	payload := dto.TypingEvent{
		ConversationID: ev.ConversationID,
		UserID:         actorID,
		Status:         string(ev.Type()),
	}
	return c.deliver(ctx, ev.Type(), payload, recipientID)
}

func (c *Coordinator) Read(ctx context.Context, actorID string, ev Read) error {
	recipientID, err := c.recipient(ctx, ev.ConversationID, actorID)
	if err != nil {
		return err
	}
	ids, err := c.chat.MarkRead(ctx, ev.ConversationID, actorID)
	if err != nil {
		return translate(err, "mark messages read")
	}
	if err := c.chat.SetSeenLatest(ctx, ev.ConversationID, actorID); err != nil {
		return translate(err, "mark conversation seen")
	}
	if ids == nil {
		ids = []string{}
	}
	payload := dto.ReadEvent{ConversationID: ev.ConversationID, ReaderID: actorID, MessageIDs: ids}
	return c.deliver(ctx, EventRead, payload, recipientID, actorID)
}

func (c *Coordinator) Delete(ctx context.Context, actorID string, ev Delete) error {
	recipientID, err := c.recipient(ctx, ev.ConversationID, actorID)
	if err != nil {
		return err
	}
	msg, err := c.chat.MessageByID(ctx, ev.ConversationID, ev.MessageID)
	if err != nil {
		return translate(err, "load message")
	}
	if msg.SenderID != actorID {
		return apperr.Forbidden("only the sender can delete a message")
	}
	deleted, err := c.chat.IsDeleted(ctx, msg.ID, actorID)
	if err != nil {
		return translate(err, "check deletion")
	}
	if deleted {
		return apperr.Conflict("message already deleted")
	}
	marker := domainchat.DeletedMessage{MessageID: msg.ID, UserID: actorID, DeletedAt: c.now()}
	if err := c.chat.MarkDeleted(ctx, marker); err != nil {
		return translate(err, "delete message")
	}
	payload := dto.DeletedEvent{ConversationID: ev.ConversationID, MessageID: msg.ID, DeletedBy: actorID}
	return c.deliver(ctx, EventDeleted, payload, recipientID, actorID)
}

// SeedBookingConversation opens (or reuses) the conversation between the
// parties of a confirmed booking and posts the system greeting into it.
func (c *Coordinator) SeedBookingConversation(ctx context.Context, b *domainbooking.Booking) error {
	if c.systemUserID == "" {
		return apperr.Internal("seed booking conversation", errNoSystemAccount)
	}
	conv, err := c.chat.ConversationBetween(ctx, b.FreelancerID, b.ClientID)
	created := false
	if errors.Is(err, domainchat.ErrConversationNotFound) {
		conv, err = c.createConversation(ctx, b.FreelancerID, b.ClientID)
		if err != nil {
			return err
		}
		created = true
	} else if err != nil {
		return translate(err, "find conversation")
	}

	msg, err := domainchat.NewMessage(domainchat.MessageParams{
		ID:             c.newID(),
		ConversationID: conv.ID,
		SenderID:       c.systemUserID,
		Body:           BookingGreeting,
		System:         true,
		CreatedAt:      c.now(),
	})
	if err != nil {
		return translate(err, "build system message")
	}
	if err := c.persistMessage(ctx, msg); err != nil {
		return err
	}

	if created {
		if err := c.announce(ctx, conv, true, b.FreelancerID, b.ClientID); err != nil {
			return err
		}
	}
	c.logger.InfoContext(ctx, "booking conversation seeded", "booking_id", b.ID, "conversation_id", conv.ID, "created", created)
	return c.deliver(ctx, EventSent, dto.MessageFromDomain(msg), b.FreelancerID, b.ClientID)
}

// recipient checks that actorID is an active participant and returns the
// other one.
func (c *Coordinator) recipient(ctx context.Context, conversationID, actorID string) (string, error) {
	participants, err := c.chat.Participants(ctx, conversationID)
	if err != nil {
		return "", translate(err, "load participants")
	}
	other, err := domainchat.OtherParticipant(participants, actorID)
	if err != nil {
		return "", translate(err, "resolve recipient")
	}
	return other, nil
}

// checkEligible requires a confirmed booking when exactly one side is a
// freelancer, i.e. owns at least one post.
func (c *Coordinator) checkEligible(ctx context.Context, actorID, recipientID string) error {
	actorPosts, err := c.posts.CountByOwner(ctx, actorID)
	if err != nil {
		return translate(err, "count initiator posts")
	}
	recipientPosts, err := c.posts.CountByOwner(ctx, recipientID)
	if err != nil {
		return translate(err, "count recipient posts")
	}
	actorFreelancer, recipientFreelancer := actorPosts > 0, recipientPosts > 0
	if actorFreelancer == recipientFreelancer {
		return nil
	}
	freelancerID, clientID := actorID, recipientID
	if recipientFreelancer {
		freelancerID, clientID = recipientID, actorID
	}
	ok, err := c.bookings.HasConfirmedBetween(ctx, freelancerID, clientID)
	if err != nil {
		return translate(err, "check bookings")
	}
	if !ok {
		return apperr.Forbidden("a confirmed booking is required before messaging")
	}
	return nil
}

func (c *Coordinator) createConversation(ctx context.Context, a, b string) (*domainchat.Conversation, error) {
	conv, err := domainchat.NewConversation(c.newID(), a, b, c.now())
	if err != nil {
		return nil, translate(err, "build conversation")
	}
	if err := c.chat.CreateConversation(ctx, conv); err != nil {
		return nil, translate(err, "create conversation")
	}
	return conv, nil
}

func (c *Coordinator) persistMessage(ctx context.Context, msg *domainchat.Message) error {
	if err := c.chat.CreateMessage(ctx, msg); err != nil {
		return translate(err, "create message")
	}
	if err := c.chat.Touch(ctx, msg.ConversationID, msg.SenderID, msg.CreatedAt); err != nil {
		return translate(err, "touch conversation")
	}
	return nil
}

// announce sends CONVERSATION_CREATED for a new conversation and
// CONVERSATION_FOUND for one that already existed.
func (c *Coordinator) announce(ctx context.Context, conv *domainchat.Conversation, created bool, userIDs ...string) error {
	payload := dto.ConversationEvent{
		ConversationID: conv.ID,
		Conversation:   dto.ConversationFromDomain(conv),
		Created:        created,
	}
	action := EventConversationFound
	if created {
		action = EventConversationCreated
	}
	return c.deliver(ctx, action, payload, userIDs...)
}

func (c *Coordinator) deliver(ctx context.Context, action EventType, payload any, userIDs ...string) error {
	msg := dto.OutboundMessage{Type: dto.MessageChat, Action: string(action), Payload: payload}
	for _, id := range userIDs {
		if err := c.deliverer.Deliver(ctx, id, msg); err != nil {
			return apperr.Internal("deliver chat "+strings.ToLower(string(action)), err)
		}
	}
	return nil
}

// pickAttachment accepts image or a single-entry files list, not two
// different attachments.
func pickAttachment(ev Send) (string, error) {
	image := strings.TrimSpace(ev.Image)
	if len(ev.Files) == 0 {
		return image, nil
	}
	file := strings.TrimSpace(ev.Files[0])
	if image != "" && image != file {
		return "", apperr.Validation("a message carries at most one attachment")
	}
	return file, nil
}

func translate(err error, op string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound):
		return apperr.NotFound("conversation")
	case errors.Is(err, domainchat.ErrMessageNotFound):
		return apperr.NotFound("message")
	case errors.Is(err, domainchat.ErrNotParticipant):
		return apperr.Forbidden("you are not a participant of this conversation")
	case errors.Is(err, domainchat.ErrNoRecipient):
		return apperr.Forbidden("conversation has no other active participant")
	case errors.Is(err, domainchat.ErrNotSender):
		return apperr.Forbidden(err.Error())
	case errors.Is(err, domainchat.ErrAlreadyDeleted):
		return apperr.Conflict("message already deleted")
	case errors.Is(err, domainchat.ErrSelfConversation), errors.Is(err, domainchat.ErrEmptyMessage):
		return apperr.Validation(strings.TrimPrefix(err.Error(), "chat: "))
	case errors.Is(err, domainuser.ErrNotFound):
		return apperr.NotFound("user")
	default:
		return apperr.Internal(op, err)
	}
}
