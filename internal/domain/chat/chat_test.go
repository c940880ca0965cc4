package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOtherParticipant(t *testing.T) {
	left := time.Now()
	tests := []struct {
		name    string
		rows    []Participant
		actor   string
		want    string
		wantErr error
	}{
		{"two active", []Participant{{UserID: "a"}, {UserID: "b"}}, "a", "b", nil},
		{"actor left", []Participant{{UserID: "a", LeftAt: &left}, {UserID: "b"}}, "a", "", ErrNotParticipant},
		{"outsider", []Participant{{UserID: "a"}, {UserID: "b"}}, "c", "", ErrNotParticipant},
		{"other left", []Participant{{UserID: "a"}, {UserID: "b", LeftAt: &left}}, "a", "", ErrNoRecipient},
		{"three parties", []Participant{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}}, "a", "", ErrNoRecipient},
		{"none", nil, "a", "", ErrNotParticipant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OtherParticipant(tt.rows, tt.actor)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSamePair(t *testing.T) {
	left := time.Now()
	assert.True(t, SamePair([]Participant{{UserID: "a"}, {UserID: "b"}}, "b", "a"))
	assert.False(t, SamePair([]Participant{{UserID: "a"}, {UserID: "c"}}, "a", "b"))
	assert.False(t, SamePair([]Participant{{UserID: "a"}, {UserID: "b", LeftAt: &left}}, "a", "b"))
	assert.False(t, SamePair([]Participant{{UserID: "a"}}, "a", "b"))
}

func TestNewConversation(t *testing.T) {
	c, err := NewConversation("c1", "a", "b", time.Now())
	require.NoError(t, err)
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.Len(t, c.Participants(), 2)

	_, err = NewConversation("c2", "a", "a", time.Now())
	assert.ErrorIs(t, err, ErrSelfConversation)
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage(MessageParams{ID: "m1", ConversationID: "c1", SenderID: "a", Body: " hi "})
	require.NoError(t, err)
	require.NotNil(t, m.Body)
	assert.Equal(t, "hi", *m.Body)
	assert.Nil(t, m.Image)
	assert.False(t, m.IsRead)

	_, err = NewMessage(MessageParams{ID: "m2", ConversationID: "c1", SenderID: "a", Body: "  "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
