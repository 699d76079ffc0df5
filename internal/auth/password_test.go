package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	passwords := []string{"hunter2hunter2", "Pässwörd with spaces", "x"}
	for _, pw := range passwords {
		hash, err := HashPassword(pw)
		require.NoError(t, err)

		assert.True(t, CheckPassword(hash, pw), "password %q should verify", pw)
		assert.False(t, CheckPassword(hash, pw+"!"), "altered password must not verify")
		assert.False(t, CheckPassword(hash, ""), "empty password must not verify")
	}
}

func TestHashPassword_Cost(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 10, cost)
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("same-password")
	require.NoError(t, err)
	b, err := HashPassword("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
