package memory

import (
	"sync"

	domainbooking "gigsocket/internal/domain/booking"
	domainchat "gigsocket/internal/domain/chat"
	domainnotification "gigsocket/internal/domain/notification"
	domainposts "gigsocket/internal/domain/posts"
	"gigsocket/internal/domain/shared/events"
	domainuser "gigsocket/internal/domain/user"
)

// Store keeps every collection in process memory. Units of work run one at a
// time against a copy of the transactional tables, which is swapped in on
// commit. Not suitable for production.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *tables

	conversations map[string]*domainchat.Conversation
	participants  map[string][]domainchat.Participant
	messages      map[string]*domainchat.Message
	order         []string
	deletions     map[string]map[string]domainchat.DeletedMessage

	notifications []*domainnotification.Notification
	reviews       map[string]map[string]bool
}

type tables struct {
	bookings map[string]*domainbooking.Booking
	posts    map[string]*domainposts.Post
	users    map[string]*domainuser.User
	credits  []domainuser.CreditTransaction
}

func NewStore() *Store {
	return &Store{
		data: &tables{
			bookings: make(map[string]*domainbooking.Booking),
			posts:    make(map[string]*domainposts.Post),
			users:    make(map[string]*domainuser.User),
		},
		conversations: make(map[string]*domainchat.Conversation),
		participants:  make(map[string][]domainchat.Participant),
		messages:      make(map[string]*domainchat.Message),
		deletions:     make(map[string]map[string]domainchat.DeletedMessage),
		reviews:       make(map[string]map[string]bool),
	}
}

func (t *tables) clone() *tables {
	out := &tables{
		bookings: make(map[string]*domainbooking.Booking, len(t.bookings)),
		posts:    make(map[string]*domainposts.Post, len(t.posts)),
		users:    make(map[string]*domainuser.User, len(t.users)),
		credits:  append([]domainuser.CreditTransaction(nil), t.credits...),
	}
	for id, b := range t.bookings {
		out.bookings[id] = cloneBooking(b)
	}
	for id, p := range t.posts {
		cp := *p
		out.posts[id] = &cp
	}
	for id, u := range t.users {
		cp := *u
		out.users[id] = &cp
	}
	return out
}

// access runs fn against the live tables. Writers also take txMu so they
// cannot be lost under a concurrent unit's commit.
func (s *Store) access(write bool, fn func(t *tables) error) error {
	if write {
		s.txMu.Lock()
		defer s.txMu.Unlock()
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(s.data)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) Bookings() *BookingRepository {
	return &BookingRepository{access: s.access}
}

func (s *Store) Posts() *PostRepository {
	return &PostRepository{access: s.access}
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{access: s.access}
}

func (s *Store) Chat() *ChatRepository {
	return &ChatRepository{store: s}
}

func (s *Store) Notifications() *NotificationRepository {
	return &NotificationRepository{store: s}
}

// PutPost seeds a post, standing in for the CRUD application.
func (s *Store) PutPost(p domainposts.Post) {
	_ = s.access(true, func(t *tables) error {
		t.posts[p.ID] = &p
		return nil
	})
}

// PutUser seeds a user, standing in for the CRUD application.
func (s *Store) PutUser(u domainuser.User) {
	_ = s.access(true, func(t *tables) error {
		t.users[u.ID] = &u
		return nil
	})
}

// PutBooking seeds a booking as it would already exist in the shared store.
func (s *Store) PutBooking(b domainbooking.Booking) {
	_ = s.access(true, func(t *tables) error {
		t.bookings[b.ID] = cloneBooking(&b)
		return nil
	})
}

// PutReview records that userID reviewed bookingID.
func (s *Store) PutReview(bookingID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reviews[bookingID] == nil {
		s.reviews[bookingID] = make(map[string]bool)
	}
	s.reviews[bookingID][userID] = true
}

// CreditTransactions returns the credit ledger.
func (s *Store) CreditTransactions() []domainuser.CreditTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domainuser.CreditTransaction(nil), s.data.credits...)
}

// BookingCount returns how many bookings exist.
func (s *Store) BookingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.bookings)
}

func cloneBooking(b *domainbooking.Booking) *domainbooking.Booking {
	cp := *b
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}
