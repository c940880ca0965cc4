package policies

import (
	"context"

	"gigsocket/internal/app/dto"
)

// Deliverer routes a message to whichever process holds the user's connection.
// Delivery is best-effort: a nil error means the message was handed to the
// broker, not that a client received it.
type Deliverer interface {
	Deliver(ctx context.Context, userID string, msg dto.OutboundMessage) error
}
