package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsocket/internal/app/uow"
	domainbooking "gigsocket/internal/domain/booking"
	domainchat "gigsocket/internal/domain/chat"
)

var day = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func TestUnit_CommitPublishesWrites(t *testing.T) {
	store := NewStore()
	factory := Factory{Store: store}

	err := uow.Run(context.Background(), factory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Bookings().Create(ctx, &domainbooking.Booking{ID: "b1", FreelancerID: "f", Date: day, Status: domainbooking.StatusPending})
	})
	require.NoError(t, err)

	got, err := store.Bookings().ByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "f", got.FreelancerID)
}

func TestUnit_RollbackDiscardsWrites(t *testing.T) {
	store := NewStore()
	factory := Factory{Store: store}
	boom := errors.New("boom")

	err := uow.Run(context.Background(), factory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		if err := unit.Bookings().Create(ctx, &domainbooking.Booking{ID: "b1", FreelancerID: "f", Date: day}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.BookingCount())

	_, err = store.Bookings().ByID(context.Background(), "b1")
	assert.ErrorIs(t, err, domainbooking.ErrNotFound)
}

func TestUnit_BeginHonoursContext(t *testing.T) {
	store := NewStore()
	factory := Factory{Store: store}

	held, err := factory.Begin(context.Background(), uow.TxOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = factory.Begin(ctx, uow.TxOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Rollback(context.Background()))
	next, err := factory.Begin(context.Background(), uow.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, next.Commit(context.Background()))
}

func TestBookingRepository_ActiveOnDay(t *testing.T) {
	store := NewStore()
	store.PutBooking(domainbooking.Booking{ID: "b1", FreelancerID: "f", Date: day.Add(15 * time.Hour), Status: domainbooking.StatusConfirmed})
	store.PutBooking(domainbooking.Booking{ID: "b2", FreelancerID: "f", Date: day.AddDate(0, 0, 1), Status: domainbooking.StatusPending})
	store.PutBooking(domainbooking.Booking{ID: "b3", FreelancerID: "f", Date: day.AddDate(0, 0, 2), Status: domainbooking.StatusCancelled})
	repo := store.Bookings()
	ctx := context.Background()

	got, err := repo.ActiveOnDay(ctx, "f", day.Add(3*time.Hour), "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b1", got.ID)

	got, err = repo.ActiveOnDay(ctx, "f", day, "b1")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.ActiveOnDay(ctx, "f", day.AddDate(0, 0, 2), "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.ActiveOnDay(ctx, "other", day, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChatRepository_ReadAndDelete(t *testing.T) {
	store := NewStore()
	repo := store.Chat()
	ctx := context.Background()

	conv, err := domainchat.NewConversation("c1", "a", "b", day)
	require.NoError(t, err)
	require.NoError(t, repo.CreateConversation(ctx, conv))

	found, err := repo.ConversationBetween(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "c1", found.ID)

	m1, _ := domainchat.NewMessage(domainchat.MessageParams{ID: "m1", ConversationID: "c1", SenderID: "a", Body: "hi", CreatedAt: day})
	m2, _ := domainchat.NewMessage(domainchat.MessageParams{ID: "m2", ConversationID: "c1", SenderID: "b", Body: "yo", CreatedAt: day})
	require.NoError(t, repo.CreateMessage(ctx, m1))
	require.NoError(t, repo.CreateMessage(ctx, m2))
	require.NoError(t, repo.Touch(ctx, "c1", "a", day.Add(time.Minute)))

	rows := store.ParticipantRows("c1")
	for _, p := range rows {
		assert.Equal(t, p.UserID == "a", p.HasSeenLatest, p.UserID)
	}

	ids, err := repo.MarkRead(ctx, "c1", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)

	again, err := repo.MarkRead(ctx, "c1", "b")
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, repo.MarkDeleted(ctx, domainchat.DeletedMessage{MessageID: "m1", UserID: "a", DeletedAt: day}))
	assert.ErrorIs(t, repo.MarkDeleted(ctx, domainchat.DeletedMessage{MessageID: "m1", UserID: "a", DeletedAt: day}), domainchat.ErrAlreadyDeleted)
	assert.Len(t, store.Messages("c1"), 2)

	store.SetLeft("c1", "b", day)
	_, err = repo.ConversationBetween(ctx, "a", "b")
	assert.ErrorIs(t, err, domainchat.ErrConversationNotFound)
}
