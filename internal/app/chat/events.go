package chat

import (
	"context"

	"gigsocket/internal/app/apperr"
	"gigsocket/internal/app/dto"
	"gigsocket/internal/app/validation"
)

type EventType string

const (
	EventStartConversation   EventType = "START_CONVERSATION"
	EventConversationCreated EventType = "CONVERSATION_CREATED"
	EventConversationFound   EventType = "CONVERSATION_FOUND"
	EventSent                EventType = "SENT"
	EventDelivered           EventType = "DELIVERED"
	EventTyping              EventType = "TYPING"
	EventStoppedTyping       EventType = "STOPPED_TYPING"
	EventRead                EventType = "READ"
	EventDeleted             EventType = "DELETED"
)

// Event is the closed set of chat events a client can send.
type Event interface {
	Type() EventType
	Accept(ctx context.Context, actorID string, v Visitor) error
	sealed()
}

type Visitor interface {
	StartConversation(ctx context.Context, actorID string, ev StartConversation) error
	Send(ctx context.Context, actorID string, ev Send) error
	Typing(ctx context.Context, actorID string, ev Typing) error
	Read(ctx context.Context, actorID string, ev Read) error
	Delete(ctx context.Context, actorID string, ev Delete) error
}

type StartConversation struct {
	RecipientID string `json:"recipientId" validate:"required"`
}

type Send struct {
	ConversationID string   `json:"conversationId" validate:"required"`
	Body           string   `json:"body,omitempty" validate:"max=5000"`
	Image          string   `json:"image,omitempty" validate:"max=1024"`
	Files          []string `json:"files,omitempty" validate:"max=1,dive,required,max=1024"`
}

// Typing covers both TYPING and STOPPED_TYPING; Stopped is set by Decode.
type Typing struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Stopped        bool   `json:"-"`
}

type Read struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type Delete struct {
	ConversationID string `json:"conversationId" validate:"required"`
	MessageID      string `json:"messageId" validate:"required"`
}

func (StartConversation) Type() EventType { return EventStartConversation }
func (Send) Type() EventType              { return EventSent }
func (Read) Type() EventType              { return EventRead }
func (Delete) Type() EventType            { return EventDeleted }

func (e Typing) Type() EventType {
	if e.Stopped {
		return EventStoppedTyping
	}
	return EventTyping
}

func (e StartConversation) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.StartConversation(ctx, actorID, e)
}
func (e Send) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Send(ctx, actorID, e)
}
func (e Typing) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Typing(ctx, actorID, e)
}
func (e Read) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Read(ctx, actorID, e)
}
func (e Delete) Accept(ctx context.Context, actorID string, v Visitor) error {
	return v.Delete(ctx, actorID, e)
}

func (StartConversation) sealed() {}
func (Send) sealed()              {}
func (Typing) sealed()            {}
func (Read) sealed()              {}
func (Delete) sealed()            {}

// Decode turns an envelope into a typed event. Unknown types are rejected.
func Decode(v *validation.Validator, env dto.EventEnvelope) (Event, error) {
	switch EventType(env.Type) {
	case EventStartConversation:
		return decodeInto[StartConversation](v, env)
	case EventSent:
		return decodeInto[Send](v, env)
	case EventTyping, EventStoppedTyping:
		var ev Typing
		if err := v.Decode(env.Payload, &ev); err != nil {
			return nil, err
		}
		ev.Stopped = EventType(env.Type) == EventStoppedTyping
		return ev, nil
	case EventRead:
		return decodeInto[Read](v, env)
	case EventDeleted:
		return decodeInto[Delete](v, env)
	default:
		return nil, apperr.Validation("invalid chat event type").WithDetails(map[string]any{"type": env.Type})
	}
}

func decodeInto[T Event](v *validation.Validator, env dto.EventEnvelope) (Event, error) {
	var ev T
	if err := v.Decode(env.Payload, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
