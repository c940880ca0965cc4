package memory

import (
	"context"

	domainnotification "gigsocket/internal/domain/notification"
)

type NotificationRepository struct {
	store *Store
}

func (r *NotificationRepository) Create(ctx context.Context, n *domainnotification.Notification) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID string) ([]*domainnotification.Notification, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domainnotification.Notification
	for _, n := range s.notifications {
		if n.TargetUserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

// HasReviewed implements the review lookup used for canReview.
func (r *NotificationRepository) HasReviewed(ctx context.Context, bookingID, userID string) (bool, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reviews[bookingID][userID], nil
}
