package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cardsite-backend/internal/config"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/metrics"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Mailer delivers transactional email.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required,len=64,hexadecimal"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UserResponse struct {
	ID         uint            `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Role       models.UserRole `json:"role"`
	BrandID    *uint           `json:"brand_id"`
	TenantID   *uint           `json:"tenant_id"`
	MFAEnabled bool            `json:"mfaEnabled"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		BrandID:    u.BrandID,
		TenantID:   u.TenantID,
		MFAEnabled: u.MFAEnabled,
	}
}

const resetTokenTTL = time.Hour

// POST /api/auth/register
func RegisterHandler(ts *TokenService, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}
		body.Email = normalizeEmail(body.Email)
		body.Name = strings.TrimSpace(body.Name)

		var count int64
		database.DB.Model(&models.User{}).Where("email = ?", body.Email).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "This email is already registered")
		}

		hash, err := HashPassword(body.Password)
		if err != nil {
			return err
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: hash,
			Role:         models.RoleCustomer,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		pair, err := ts.IssueTokens(&user)
		if err != nil {
			return err
		}
		setSessionCookies(c, pair, cfg.CookieSecure)

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"user":  NewUserResponse(&user),
			"token": pair.AccessToken,
		})
	}
}

// POST /api/auth/login
func LoginHandler(ts *TokenService, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}
		body.Email = normalizeEmail(body.Email)

		var user models.User
		if err := database.DB.Where("email = ?", body.Email).First(&user).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load user: %w", err)
			}
			metrics.AuthFailures.WithLabelValues(metrics.AuthBadCredentials).Inc()
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
		}

		if !CheckPassword(user.PasswordHash, body.Password) {
			metrics.AuthFailures.WithLabelValues(metrics.AuthBadCredentials).Inc()
			logging.L.WithField("user_id", user.ID).Info("login rejected: bad password")
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
		}

		pair, err := ts.IssueTokens(&user)
		if err != nil {
			return err
		}
		setSessionCookies(c, pair, cfg.CookieSecure)

		return c.JSON(fiber.Map{
			"user":       NewUserResponse(&user),
			"token":      pair.AccessToken,
			"mfaEnabled": user.MFAEnabled,
		})
	}
}

// POST /api/auth/logout revokes whatever session tokens the request carries.
func LogoutHandler(ts *TokenService, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		EndSession(c, ts, cfg.CookieSecure)
		return c.JSON(fiber.Map{"message": "Logged out"})
	}
}

// EndSession revokes the access and refresh tokens on the request and
// clears the session cookies. Revocation failures are logged only.
func EndSession(c *fiber.Ctx, ts *TokenService, secure bool) {
	ctx := c.UserContext()

	if claims := ts.VerifyToken(ctx, bearerOrCookie(c)); claims != nil {
		if err := ts.Revoke(ctx, claims.RegisteredClaims); err != nil {
			logging.L.WithError(err).Warn("could not revoke access token")
		}
	}
	if rc := ts.VerifyRefresh(ctx, c.Cookies(RefreshCookie)); rc != nil {
		if err := ts.Revoke(ctx, rc.RegisteredClaims); err != nil {
			logging.L.WithError(err).Warn("could not revoke refresh token")
		}
	}

	clearSessionCookies(c, secure)
}

// POST /api/auth/refresh rotates the refresh token.
func RefreshHandler(ts *TokenService, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Cookies(RefreshCookie)
		if tokenStr == "" {
			var body RefreshRequest
			_ = c.BodyParser(&body)
			tokenStr = body.RefreshToken
		}

		ctx := c.UserContext()
		rc := ts.VerifyRefresh(ctx, tokenStr)
		if rc == nil {
			metrics.AuthFailures.WithLabelValues(metrics.AuthInvalidRefresh).Inc()
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired refresh token")
		}

		var user models.User
		if err := database.DB.First(&user, rc.UserID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired refresh token")
		}

		if err := ts.Revoke(ctx, rc.RegisteredClaims); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}

		pair, err := ts.IssueTokens(&user)
		if err != nil {
			return err
		}
		setSessionCookies(c, pair, cfg.CookieSecure)

		return c.JSON(fiber.Map{"token": pair.AccessToken, "user": NewUserResponse(&user)})
	}
}

// GET /api/auth/me
func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
		}

		response := fiber.Map{
			"user":     NewUserResponse(&user),
			"mfaState": user.MFAState(),
		}

		if user.BrandID != nil {
			var brand models.Brand
			if err := database.DB.First(&brand, *user.BrandID).Error; err == nil {
				response["brand"] = fiber.Map{
					"id":   brand.ID,
					"name": brand.Name,
					"slug": brand.Slug,
				}
			}
		}

		return c.JSON(response)
	}
}

// POST /api/auth/change-password (MFA-gated by the router)
func ChangePasswordHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}

		var body ChangePasswordRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
		}
		if !CheckPassword(user.PasswordHash, body.CurrentPassword) {
			return fiber.NewError(fiber.StatusBadRequest, "Current password is incorrect")
		}

		hash, err := HashPassword(body.NewPassword)
		if err != nil {
			return err
		}
		if err := database.DB.Model(&user).Update("password_hash", hash).Error; err != nil {
			return fmt.Errorf("update password: %w", err)
		}

		return c.JSON(fiber.Map{"message": "Password updated"})
	}
}

// POST /api/auth/forgot-password always answers with the same message so the
// response does not reveal whether the email exists.
func ForgotPasswordHandler(cfg *config.Config, mailer Mailer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ForgotPasswordRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		generic := fiber.Map{"message": "If an account exists for this email, a reset link has been sent"}

		var user models.User
		if err := database.DB.Where("email = ?", normalizeEmail(body.Email)).First(&user).Error; err != nil {
			return c.JSON(generic)
		}

		token, err := randomToken(32)
		if err != nil {
			logging.L.WithError(err).Error("reset token generation failed")
			return c.JSON(generic)
		}
		expires := time.Now().Add(resetTokenTTL)
		if err := database.DB.Model(&user).Updates(map[string]any{
			"reset_token_hash":       sha256Hex(token),
			"reset_token_expires_at": expires,
		}).Error; err != nil {
			logging.L.WithError(err).Error("could not store reset token")
			return c.JSON(generic)
		}

		link := fmt.Sprintf("%s/reset-password?token=%s", cfg.PublicBaseURL, token)
		if mailer != nil {
			body := fmt.Sprintf(`<p>Hello %s,</p><p>Reset your password here: <a href="%s">%s</a></p><p>The link expires in one hour.</p>`, user.Name, link, link)
			if err := mailer.Send(user.Email, "Reset your password", body); err != nil {
				logging.L.WithError(err).WithField("user_id", user.ID).Error("reset mail not sent")
			}
		}

		return c.JSON(generic)
	}
}

// POST /api/auth/reset-password
func ResetPasswordHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ResetPasswordRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		var user models.User
		err := database.DB.
			Where("reset_token_hash = ? AND reset_token_expires_at > ?", sha256Hex(body.Token), time.Now()).
			First(&user).Error
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid or expired reset token")
		}

		hash, err := HashPassword(body.NewPassword)
		if err != nil {
			return err
		}
		if err := database.DB.Model(&user).Updates(map[string]any{
			"password_hash":          hash,
			"reset_token_hash":       "",
			"reset_token_expires_at": nil,
		}).Error; err != nil {
			return fmt.Errorf("reset password: %w", err)
		}

		return c.JSON(fiber.Map{"message": "Password has been reset"})
	}
}

func normalizeEmail(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
