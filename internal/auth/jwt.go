package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cardsite-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "cardsite"

type Claims struct {
	UserID   uint            `json:"user_id"`
	Email    string          `json:"email"`
	Role     models.UserRole `json:"role"`
	BrandID  *uint           `json:"brand_id,omitempty"`
	TenantID *uint           `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	revoker       Revoker
	now           func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, revoker Revoker) *TokenService {
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	return &TokenService{
		accessSecret:  []byte(secret),
		refreshSecret: []byte(sha256Hex(secret + ":refresh")),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		revoker:       revoker,
		now:           time.Now,
	}
}

// IssueTokens signs a fresh access/refresh pair for user.
func (s *TokenService) IssueTokens(user *models.User) (*TokenPair, error) {
	now := s.now()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)
	subject := strconv.FormatUint(uint64(user.ID), 10)

	access := &Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		BrandID:  user.BrandID,
		TenantID: user.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}
	accessStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(s.accessSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh := &RefreshClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
	}
	refreshStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(s.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      accessStr,
		RefreshToken:     refreshStr,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyToken returns nil for any token that must be treated as
// unauthenticated: bad signature, wrong algorithm, expired, malformed or revoked.
func (s *TokenService) VerifyToken(ctx context.Context, tokenStr string) *Claims {
	claims := &Claims{}
	if err := s.parse(tokenStr, claims, s.accessSecret); err != nil {
		return nil
	}
	if claims.UserID == 0 || claims.ID == "" || !claims.Role.Valid() {
		return nil
	}
	if s.revoker.IsRevoked(ctx, claims.ID) {
		return nil
	}
	return claims
}

// VerifyRefresh is VerifyToken for refresh tokens.
func (s *TokenService) VerifyRefresh(ctx context.Context, tokenStr string) *RefreshClaims {
	claims := &RefreshClaims{}
	if err := s.parse(tokenStr, claims, s.refreshSecret); err != nil {
		return nil
	}
	if claims.UserID == 0 || claims.ID == "" {
		return nil
	}
	if s.revoker.IsRevoked(ctx, claims.ID) {
		return nil
	}
	return claims
}

// Revoke blocks the token id until its own expiry.
func (s *TokenService) Revoke(ctx context.Context, rc jwt.RegisteredClaims) error {
	if rc.ID == "" || rc.ExpiresAt == nil {
		return errors.New("token has no id or expiry")
	}
	return s.revoker.Revoke(ctx, rc.ID, rc.ExpiresAt.Time)
}

func (s *TokenService) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	if tokenStr == "" {
		return errors.New("empty token")
	}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	return err
}
