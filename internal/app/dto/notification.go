package dto

import (
	"time"

	domainnotification "gigsocket/internal/domain/notification"
)

type Notification struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	TargetUserID string    `json:"targetUserId"`
	ReferenceID  string    `json:"referenceId"`
	IsRead       bool      `json:"isRead"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BookingNotification is the NOTIFICATION payload for booking events.
type BookingNotification struct {
	Notification Notification `json:"notification"`
	Booking      Booking      `json:"booking"`
	CanReview    bool         `json:"canReview"`
}

// ChatNotification is the NOTIFICATION payload for new chat messages.
type ChatNotification struct {
	Notification Notification `json:"notification"`
	Message      ChatMessage  `json:"message"`
}

func NotificationFromDomain(n *domainnotification.Notification) Notification {
	return Notification{
		ID:           n.ID,
		Type:         string(n.Type),
		TargetUserID: n.TargetUserID,
		ReferenceID:  n.ReferenceID,
		IsRead:       n.IsRead,
		CreatedAt:    n.CreatedAt,
	}
}
