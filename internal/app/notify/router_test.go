package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsocket/internal/app/apperr"
	"gigsocket/internal/app/apptest"
	"gigsocket/internal/app/dto"
	domainbooking "gigsocket/internal/domain/booking"
	domainchat "gigsocket/internal/domain/chat"
	"gigsocket/internal/infra/storage/memory"
)

var clock = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newRouter(store *memory.Store, deliverer *apptest.RecordingDeliverer) *Router {
	return NewRouter(store.Notifications(), deliverer, nil,
		WithClock(func() time.Time { return clock }),
		WithIDs(apptest.Sequence("ntf")),
		WithReviews(store.Notifications()))
}

func booking(status domainbooking.Status) *domainbooking.Booking {
	return &domainbooking.Booking{ID: "b1", ClientID: "client", FreelancerID: "freelancer", Status: status, Quantity: 1}
}

func TestBooking_SingleRecipient(t *testing.T) {
	tests := []struct {
		event     domainbooking.EventType
		status    domainbooking.Status
		recipient string
	}{
		{domainbooking.EventCreated, domainbooking.StatusPending, "freelancer"},
		{domainbooking.EventUpdated, domainbooking.StatusPending, "freelancer"},
		{domainbooking.EventCancelled, domainbooking.StatusCancelled, "freelancer"},
		{domainbooking.EventRescheduled, domainbooking.StatusPending, "freelancer"},
		{domainbooking.EventConfirmed, domainbooking.StatusConfirmed, "client"},
		{domainbooking.EventDeclined, domainbooking.StatusDeclined, "client"},
		{domainbooking.EventCompleted, domainbooking.StatusCompleted, "client"},
	}
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			store := memory.NewStore()
			deliverer := &apptest.RecordingDeliverer{}
			r := newRouter(store, deliverer)

			n, err := r.Booking(context.Background(), booking(tt.status), tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.recipient, n.TargetUserID)
			assert.Equal(t, "b1", n.ReferenceID)
			assert.Equal(t, clock, n.CreatedAt)

			all := deliverer.All()
			require.Len(t, all, 1)
			assert.Equal(t, tt.recipient, all[0].UserID)
			assert.Equal(t, dto.MessageNotification, all[0].Message.Type)
			assert.Equal(t, string(tt.event), all[0].Message.Action)

			stored, err := store.Notifications().ListForUser(context.Background(), tt.recipient)
			require.NoError(t, err)
			require.Len(t, stored, 1)
			assert.Equal(t, n.ID, stored[0].ID)
		})
	}
}

func TestBooking_UnknownEventFailsClosed(t *testing.T) {
	store := memory.NewStore()
	deliverer := &apptest.RecordingDeliverer{}
	r := newRouter(store, deliverer)

	_, err := r.Booking(context.Background(), booking(domainbooking.StatusPending), "ARCHIVED")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
	assert.Empty(t, deliverer.All())
	for _, user := range []string{"client", "freelancer"} {
		stored, err := store.Notifications().ListForUser(context.Background(), user)
		require.NoError(t, err)
		assert.Empty(t, stored)
	}
}

func TestBooking_CanReview(t *testing.T) {
	store := memory.NewStore()
	deliverer := &apptest.RecordingDeliverer{}
	r := newRouter(store, deliverer)

	_, err := r.Booking(context.Background(), booking(domainbooking.StatusCompleted), domainbooking.EventCompleted)
	require.NoError(t, err)
	payload := deliverer.For("client")[0].Payload.(dto.BookingNotification)
	assert.True(t, payload.CanReview)

	store.PutReview("b1", "client")
	deliverer.Reset()
	_, err = r.Booking(context.Background(), booking(domainbooking.StatusCompleted), domainbooking.EventCompleted)
	require.NoError(t, err)
	payload = deliverer.For("client")[0].Payload.(dto.BookingNotification)
	assert.False(t, payload.CanReview)

	deliverer.Reset()
	_, err = r.Booking(context.Background(), booking(domainbooking.StatusConfirmed), domainbooking.EventConfirmed)
	require.NoError(t, err)
	payload = deliverer.For("client")[0].Payload.(dto.BookingNotification)
	assert.False(t, payload.CanReview)
}

func TestBooking_DeliveryFailureKeepsRecord(t *testing.T) {
	store := memory.NewStore()
	deliverer := &apptest.RecordingDeliverer{FailFor: map[dto.MessageType]error{dto.MessageNotification: errors.New("broker down")}}
	r := newRouter(store, deliverer)

	n, err := r.Booking(context.Background(), booking(domainbooking.StatusPending), domainbooking.EventCreated)
	assert.True(t, apperr.HasCode(err, apperr.CodeInternal))
	require.NotNil(t, n)
	stored, err := store.Notifications().ListForUser(context.Background(), "freelancer")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestChat(t *testing.T) {
	store := memory.NewStore()
	deliverer := &apptest.RecordingDeliverer{}
	r := newRouter(store, deliverer)
	body := "hello"
	msg := &domainchat.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", Body: &body, CreatedAt: clock}

	n, err := r.RecordChat(context.Background(), "bob", msg)
	require.NoError(t, err)
	assert.Equal(t, "c1", n.ReferenceID)
	assert.Equal(t, "CHAT", string(n.Type))
	assert.Empty(t, deliverer.All(), "recording delivers nothing")
	stored, err := store.Notifications().ListForUser(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	require.NoError(t, r.DeliverChat(context.Background(), n, msg))

	toBob := deliverer.For("bob")
	require.Len(t, toBob, 1)
	assert.Equal(t, "MESSAGE", toBob[0].Action)
	payload := toBob[0].Payload.(dto.ChatNotification)
	assert.Equal(t, "m1", payload.Message.ID)
	assert.Empty(t, deliverer.For("alice"))

	_, err = r.RecordChat(context.Background(), "", msg)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}
