package booking

import "time"

type Created struct {
	BookingID    string
	PostID       string
	ClientID     string
	FreelancerID string
	Date         time.Time
	At           time.Time
}

func (e Created) EventName() string     { return "booking.created" }
func (e Created) AggregateID() string   { return e.BookingID }
func (e Created) OccurredAt() time.Time { return e.At }

type StatusChanged struct {
	BookingID string
	Event     EventType
	From      Status
	To        Status
	Reason    string `json:",omitempty"`
	At        time.Time
}

func (e StatusChanged) EventName() string     { return "booking.status_changed" }
func (e StatusChanged) AggregateID() string   { return e.BookingID }
func (e StatusChanged) OccurredAt() time.Time { return e.At }
