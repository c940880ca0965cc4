package dto

import "encoding/json"

type MessageType string

const (
	MessageBooking      MessageType = "BOOKING"
	MessageChat         MessageType = "CHAT"
	MessageNotification MessageType = "NOTIFICATION"
	MessageError        MessageType = "ERROR"
)

// InboundFrame is what a client writes on the socket.
type InboundFrame struct {
	Event MessageType   `json:"event"`
	Data  EventEnvelope `json:"data"`
}

// EventEnvelope carries the event type and its still-encoded payload.
type EventEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// OutboundMessage is what the server writes to a client.
type OutboundMessage struct {
	Type    MessageType `json:"type"`
	Action  string      `json:"action,omitempty"`
	Payload any         `json:"payload"`
}

type ErrorPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status"`
}

func NewError(message, details string, status int) OutboundMessage {
	return OutboundMessage{
		Type:    MessageError,
		Payload: ErrorPayload{Success: false, Error: message, Details: details, Status: status},
	}
}
