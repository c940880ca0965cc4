package booking

import "fmt"

type EventType string

const (
	EventCreated     EventType = "CREATED"
	EventConfirmed   EventType = "CONFIRMED"
	EventCancelled   EventType = "CANCELLED"
	EventDeclined    EventType = "DECLINED"
	EventCompleted   EventType = "COMPLETED"
	EventRescheduled EventType = "RESCHEDULED"
	EventUpdated     EventType = "UPDATED"
)

var statusByEvent = map[EventType]Status{
	EventCreated:     StatusPending,
	EventUpdated:     StatusPending,
	EventRescheduled: StatusPending,
	EventConfirmed:   StatusConfirmed,
	EventCancelled:   StatusCancelled,
	EventDeclined:    StatusDeclined,
	EventCompleted:   StatusCompleted,
}

var recipientByEvent = map[EventType]Role{
	EventCreated:     RoleFreelancer,
	EventUpdated:     RoleFreelancer,
	EventCancelled:   RoleFreelancer,
	EventRescheduled: RoleFreelancer,
	EventConfirmed:   RoleClient,
	EventDeclined:    RoleClient,
	EventCompleted:   RoleClient,
}

// issuers lists who may send each mutating event; a nil entry means either side.
var issuers = map[EventType][]Role{
	EventConfirmed:   {RoleFreelancer},
	EventDeclined:    {RoleFreelancer},
	EventCompleted:   {RoleFreelancer},
	EventUpdated:     {RoleClient},
	EventRescheduled: {RoleClient},
	EventCancelled:   nil,
}

var transitions = map[Status][]EventType{
	StatusPending:   {EventConfirmed, EventDeclined, EventCancelled, EventUpdated},
	StatusConfirmed: {EventCancelled, EventCompleted, EventRescheduled, EventUpdated},
}

// StatusFor returns the status an event leaves a booking in.
func StatusFor(ev EventType) (Status, error) {
	status, ok := statusByEvent[ev]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}
	return status, nil
}

// RecipientFor returns the single user notified about ev on b.
func RecipientFor(ev EventType, b *Booking) (string, error) {
	role, ok := recipientByEvent[ev]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}
	if role == RoleClient {
		return b.ClientID, nil
	}
	return b.FreelancerID, nil
}

func actorMayIssue(ev EventType, actor Role) bool {
	allowed, ok := issuers[ev]
	if !ok {
		return false
	}
	if allowed == nil {
		return actor == RoleClient || actor == RoleFreelancer
	}
	for _, r := range allowed {
		if r == actor {
			return true
		}
	}
	return false
}

func transitionAllowed(from Status, ev EventType) bool {
	for _, candidate := range transitions[from] {
		if candidate == ev {
			return true
		}
	}
	return false
}
