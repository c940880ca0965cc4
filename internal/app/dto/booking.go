package dto

import (
	"time"

	domainbooking "gigsocket/internal/domain/booking"
)

type Booking struct {
	ID           string     `json:"id"`
	PostID       string     `json:"postId"`
	ClientID     string     `json:"clientId"`
	FreelancerID string     `json:"freelancerId"`
	Date         time.Time  `json:"date"`
	StartTime    *time.Time `json:"startTime,omitempty"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Quantity     int        `json:"quantity"`
	TotalAmount  float64    `json:"totalAmount"`
	Status       string     `json:"status"`
	Description  string     `json:"description"`
	CancelReason string     `json:"cancelReason,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func BookingFromDomain(b *domainbooking.Booking) Booking {
	return Booking{
		ID:           b.ID,
		PostID:       b.PostID,
		ClientID:     b.ClientID,
		FreelancerID: b.FreelancerID,
		Date:         b.Date,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		Quantity:     b.Quantity,
		TotalAmount:  b.TotalAmount,
		Status:       string(b.Status),
		Description:  b.Description,
		CancelReason: b.CancelReason,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}
