package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsocket/internal/app/eventstream"
	domainbooking "gigsocket/internal/domain/booking"
	"gigsocket/internal/infra/obs"
	"gigsocket/internal/infra/storage/memory"
)

var occurred = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func header(msg *sarama.ProducerMessage, key string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublisher_WritesCloudEvents(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	metrics := obs.NewMetrics()
	pub := NewPublisher(producer, EventsTopic("gigs"), "gigsocket", metrics)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "gigs.booking.events.v1", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "b1", string(key))
		assert.Equal(t, "application/cloudevents+json", header(msg, "content-type"))
		assert.Equal(t, "booking.created.v1", header(msg, "ce_type"))
		assert.Equal(t, "gigsocket", header(msg, "ce_source"))

		raw, err := msg.Value.Encode()
		require.NoError(t, err)
		var evt CloudEvent
		require.NoError(t, json.Unmarshal(raw, &evt))
		assert.Equal(t, "1.0", evt.SpecVersion)
		assert.Equal(t, "ev-1", evt.ID)
		assert.Equal(t, "b1", evt.Subject)
		assert.True(t, occurred.Equal(evt.Time))
		assert.JSONEq(t, `{"BookingID":"b1"}`, string(evt.Data))
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	err := pub.Publish(context.Background(),
		eventstream.EventRecord{ID: "ev-1", Name: "booking.created", Payload: []byte(`{"BookingID":"b1"}`), OccurredAt: occurred, Aggregate: "b1"},
		eventstream.EventRecord{ID: "ev-2", Name: "booking.status_changed", Payload: []byte(`{}`), OccurredAt: occurred, Aggregate: "b1"},
	)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PublishedEvents.WithLabelValues("ok")))
	require.NoError(t, pub.Close())
}

func TestPublisher_Failure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	metrics := obs.NewMetrics()
	pub := NewPublisher(producer, EventsTopic(""), "gigsocket", metrics)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := pub.Publish(context.Background(), eventstream.EventRecord{ID: "ev-1", Name: "booking.created", Payload: []byte(`{}`), Aggregate: "b1"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishedEvents.WithLabelValues("error")))
	require.NoError(t, pub.Close())
}

func TestPublisher_NothingToSend(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	pub := NewPublisher(producer, EventsTopic("gigs"), "gigsocket", nil)
	require.NoError(t, pub.Publish(context.Background()))
	require.NoError(t, pub.Close())
}

type seederFunc func(ctx context.Context, b *domainbooking.Booking) error

func (f seederFunc) SeedBookingConversation(ctx context.Context, b *domainbooking.Booking) error {
	return f(ctx, b)
}

func consumerMessage(t *testing.T, evt CloudEvent) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "gigs.crud.bookings.v1", Value: raw}
}

func confirmed(id, bookingID, source string) CloudEvent {
	return CloudEvent{
		SpecVersion: "1.0",
		ID:          id,
		Type:        "booking.confirmed.v1",
		Source:      source,
		Time:        occurred,
		Data:        json.RawMessage(`{"bookingId":"` + bookingID + `"}`),
	}
}

type handlerFixture struct {
	store   *memory.Store
	seeded  []string
	fail    error
	metrics *obs.Metrics
	handler *BookingConfirmedHandler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{store: memory.NewStore(), metrics: obs.NewMetrics()}
	f.store.PutBooking(domainbooking.Booking{ID: "b1", ClientID: "client", FreelancerID: "freelancer", Status: domainbooking.StatusConfirmed, Quantity: 1, Date: occurred})
	f.store.PutBooking(domainbooking.Booking{ID: "b2", ClientID: "client", FreelancerID: "freelancer", Status: domainbooking.StatusCancelled, Quantity: 1, Date: occurred})
	seeder := seederFunc(func(ctx context.Context, b *domainbooking.Booking) error {
		if f.fail != nil {
			return f.fail
		}
		f.seeded = append(f.seeded, b.ID)
		return nil
	})
	f.handler = NewBookingConfirmedHandler(memory.NewInbox(), f.store.Bookings(), seeder, "gigsocket", f.metrics, nil)
	return f
}

func TestBookingConfirmedHandler_SeedsOnce(t *testing.T) {
	f := newHandlerFixture()
	msg := consumerMessage(t, confirmed("ev-1", "b1", "crud-app"))

	require.NoError(t, f.handler.Handle(context.Background(), msg))
	require.NoError(t, f.handler.Handle(context.Background(), msg))

	assert.Equal(t, []string{"b1"}, f.seeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConsumedEvents.WithLabelValues("booking.confirmed", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConsumedEvents.WithLabelValues("booking.confirmed", "duplicate")))
}

func TestBookingConfirmedHandler_Skips(t *testing.T) {
	tests := []struct {
		name string
		msg  func(t *testing.T) *sarama.ConsumerMessage
	}{
		{"own source", func(t *testing.T) *sarama.ConsumerMessage {
			return consumerMessage(t, confirmed("ev-1", "b1", "gigsocket"))
		}},
		{"other type", func(t *testing.T) *sarama.ConsumerMessage {
			evt := confirmed("ev-1", "b1", "crud-app")
			evt.Type = "booking.created.v1"
			return consumerMessage(t, evt)
		}},
		{"not json", func(t *testing.T) *sarama.ConsumerMessage {
			return &sarama.ConsumerMessage{Value: []byte("{")}
		}},
		{"no booking id", func(t *testing.T) *sarama.ConsumerMessage {
			evt := confirmed("ev-1", "", "crud-app")
			return consumerMessage(t, evt)
		}},
		{"unknown booking", func(t *testing.T) *sarama.ConsumerMessage {
			return consumerMessage(t, confirmed("ev-1", "missing", "crud-app"))
		}},
		{"booking no longer confirmed", func(t *testing.T) *sarama.ConsumerMessage {
			return consumerMessage(t, confirmed("ev-1", "b2", "crud-app"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			require.NoError(t, f.handler.Handle(context.Background(), tt.msg(t)))
			assert.Empty(t, f.seeded)
		})
	}
}

func TestBookingConfirmedHandler_FailureReleasesClaim(t *testing.T) {
	f := newHandlerFixture()
	msg := consumerMessage(t, confirmed("ev-1", "b1", "crud-app"))

	f.fail = errors.New("mongo down")
	require.Error(t, f.handler.Handle(context.Background(), msg))
	assert.Empty(t, f.seeded)

	f.fail = nil
	require.NoError(t, f.handler.Handle(context.Background(), msg))
	assert.Equal(t, []string{"b1"}, f.seeded)
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	marked []int64
}

func (s *fakeSession) Context() context.Context { return context.Background() }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type handlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

func (f handlerFunc) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

func TestGroupHandler_MarksOnlyHandledMessages(t *testing.T) {
	claim := fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	for i := int64(0); i < 3; i++ {
		claim.messages <- &sarama.ConsumerMessage{Offset: i}
	}
	close(claim.messages)

	h := groupHandler{handler: handlerFunc(func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		if msg.Offset == 1 {
			return errors.New("retry later")
		}
		return nil
	}), logger: slog.Default()}
	sess := &fakeSession{}
	require.NoError(t, h.ConsumeClaim(sess, claim))
	assert.Equal(t, []int64{0, 2}, sess.marked)
}
