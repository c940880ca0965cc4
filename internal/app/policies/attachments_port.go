package policies

import "context"

// AttachmentResolver turns an uploaded object key into the URL stored on a
// chat message. It fails when the object does not exist.
type AttachmentResolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}
