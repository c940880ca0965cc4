// Package apptest holds fakes shared by the application-layer tests.
package apptest

import (
	"context"
	"strconv"
	"sync"

	"gigsocket/internal/app/dto"
)

type Delivery struct {
	UserID  string
	Message dto.OutboundMessage
}

// RecordingDeliverer captures deliveries instead of publishing them.
type RecordingDeliverer struct {
	mu         sync.Mutex
	deliveries []Delivery
	// FailFor makes Deliver fail for the listed message types.
	FailFor map[dto.MessageType]error
}

func (d *RecordingDeliverer) Deliver(ctx context.Context, userID string, msg dto.OutboundMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.FailFor[msg.Type]; err != nil {
		return err
	}
	d.deliveries = append(d.deliveries, Delivery{UserID: userID, Message: msg})
	return nil
}

func (d *RecordingDeliverer) All() []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Delivery(nil), d.deliveries...)
}

// For returns the messages delivered to userID in order.
func (d *RecordingDeliverer) For(userID string) []dto.OutboundMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dto.OutboundMessage
	for _, del := range d.deliveries {
		if del.UserID == userID {
			out = append(out, del.Message)
		}
	}
	return out
}

func (d *RecordingDeliverer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = nil
}

// Sequence returns an id generator yielding prefix-1, prefix-2, ...
func Sequence(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
