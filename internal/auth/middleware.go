package auth

import (
	"strings"

	"cardsite-backend/internal/metrics"
	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserRoleKey = "user_role"
	CtxBrandIDKey  = "brand_id"
	CtxTenantIDKey = "tenant_id"
	CtxClaimsKey   = "claims"

	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// JWTMiddleware authenticates from the accessToken cookie, falling back to a
// Bearer header.
func JWTMiddleware(ts *TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := bearerOrCookie(c)
		if tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
		}

		claims := ts.VerifyToken(c.UserContext(), tokenStr)
		if claims == nil {
			metrics.AuthFailures.WithLabelValues(metrics.AuthInvalidToken).Inc()
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}

		c.Locals(CtxClaimsKey, claims)
		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxBrandIDKey, claims.BrandID)
		c.Locals(CtxTenantIDKey, claims.TenantID)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "You are not allowed to perform this action")
	}
}

// UserID returns the authenticated user id or a 401.
func UserID(c *fiber.Ctx) (uint, error) {
	id, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok || id == 0 {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
	}
	return id, nil
}

func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(CtxClaimsKey).(*Claims)
	return claims
}

func bearerOrCookie(c *fiber.Ctx) string {
	if tok := c.Cookies(AccessCookie); tok != "" {
		return tok
	}
	authHeader := c.Get(fiber.HeaderAuthorization)
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
