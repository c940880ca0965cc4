package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser(CreateParams{ID: "u1", Email: "  System@Example.COM ", Name: "System", PasswordHash: "hash", Role: RoleSystem})
	require.NoError(t, err)
	assert.Equal(t, "system@example.com", u.Email)
	assert.Equal(t, AccountFree, u.AccountType)
	assert.Equal(t, RoleSystem, u.Role)

	_, err = NewUser(CreateParams{ID: "u1", Email: "a@b.c", Name: "x"})
	assert.ErrorIs(t, err, ErrPasswordHashMissing)
}

func TestConsumeCredit(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	free := &User{ID: "f", AccountType: AccountFree, Credits: 1}
	tx, err := free.ConsumeCredit("tx1", "b1", now)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, 0, free.Credits)
	assert.Equal(t, -1, tx.Amount)
	assert.Equal(t, "b1", tx.ReferenceID)

	_, err = free.ConsumeCredit("tx2", "b2", now)
	assert.ErrorIs(t, err, ErrNoCredits)

	premium := &User{ID: "p", AccountType: AccountPremium}
	tx, err = premium.ConsumeCredit("tx3", "b3", now)
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Equal(t, 0, premium.Credits)
}
