package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"cardsite-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() *models.User {
	brandID := uint(7)
	return &models.User{ID: 42, Email: "owner@example.com", Role: models.RoleBrandManager, BrandID: &brandID}
}

func TestIssueAndVerify(t *testing.T) {
	ts := NewTokenService(testSecret, time.Minute, time.Hour, nil)

	pair, err := ts.IssueTokens(testUser())
	require.NoError(t, err)

	claims := ts.VerifyToken(context.Background(), pair.AccessToken)
	require.NotNil(t, claims)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, models.RoleBrandManager, claims.Role)
	require.NotNil(t, claims.BrandID)
	assert.Equal(t, uint(7), *claims.BrandID)
	assert.NotEmpty(t, claims.ID)

	rc := ts.VerifyRefresh(context.Background(), pair.RefreshToken)
	require.NotNil(t, rc)
	assert.Equal(t, uint(42), rc.UserID)
}

func TestVerifyToken_FailsClosed(t *testing.T) {
	ts := NewTokenService(testSecret, time.Minute, time.Hour, nil)
	pair, err := ts.IssueTokens(testUser())
	require.NoError(t, err)

	other := NewTokenService("ffffffffffffffffffffffffffffffff", time.Minute, time.Hour, nil)
	otherPair, err := other.IssueTokens(testUser())
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 42, Role: models.RoleSuperAdmin})
	noneStr, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":             "",
		"garbage":           "not-a-token",
		"tampered":          tampered,
		"other secret":      otherPair.AccessToken,
		"alg none":          noneStr,
		"refresh as access": pair.RefreshToken,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, ts.VerifyToken(context.Background(), tok))
		})
	}

	assert.Nil(t, ts.VerifyRefresh(context.Background(), pair.AccessToken), "access token must not pass as refresh")
}

func TestVerifyToken_Expired(t *testing.T) {
	ts := NewTokenService(testSecret, time.Minute, time.Hour, nil)
	ts.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	pair, err := ts.IssueTokens(testUser())
	require.NoError(t, err)

	ts.now = time.Now
	assert.Nil(t, ts.VerifyToken(context.Background(), pair.AccessToken))
	assert.Nil(t, ts.VerifyRefresh(context.Background(), pair.RefreshToken))
}

func TestVerifyToken_Revoked(t *testing.T) {
	ts := NewTokenService(testSecret, time.Minute, time.Hour, nil)
	pair, err := ts.IssueTokens(testUser())
	require.NoError(t, err)

	ctx := context.Background()
	claims := ts.VerifyToken(ctx, pair.AccessToken)
	require.NotNil(t, claims)

	require.NoError(t, ts.Revoke(ctx, claims.RegisteredClaims))
	assert.Nil(t, ts.VerifyToken(ctx, pair.AccessToken))

	// a freshly issued token is unaffected
	fresh, err := ts.IssueTokens(testUser())
	require.NoError(t, err)
	assert.NotNil(t, ts.VerifyToken(ctx, fresh.AccessToken))
}
