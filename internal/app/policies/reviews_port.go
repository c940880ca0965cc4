package policies

import "context"

type ReviewChecker interface {
	HasReviewed(ctx context.Context, bookingID, userID string) (bool, error)
}
