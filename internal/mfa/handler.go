package mfa

import (
	"encoding/json"
	"errors"
	"fmt"

	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/metrics"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

// HeaderMFAToken carries a TOTP or backup code on sensitive requests.
const HeaderMFAToken = "X-MFA-Token"

var errCodesChanged = errors.New("backup codes changed concurrently")

type VerifyRequest struct {
	Token string `json:"token" validate:"required,min=6,max=10"`
}

type DisableRequest struct {
	Password string `json:"password" validate:"required"`
	Token    string `json:"token"`
}

type BackupCodeRequest struct {
	Code string `json:"code" validate:"required,min=8,max=9"`
}

// POST /api/auth/mfa/setup moves the user to the pending state.
func SetupHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}
		if user.MFAEnabled {
			return fiber.NewError(fiber.StatusBadRequest, "MFA is already enabled")
		}

		setup, err := svc.GenerateSecret(user.Email)
		if err != nil {
			return err
		}
		hashed, err := HashBackupCodes(setup.BackupCodes)
		if err != nil {
			return err
		}

		if err := database.DB.Model(user).Updates(map[string]any{
			"mfa_secret":   setup.Secret,
			"mfa_enabled":  false,
			"backup_codes": datatypes.NewJSONSlice(hashed),
		}).Error; err != nil {
			return fmt.Errorf("store mfa secret: %w", err)
		}

		return c.JSON(setup)
	}
}

// POST /api/auth/mfa/verify confirms the authenticator app and enables MFA.
func VerifyHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}

		var body VerifyRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		if user.MFASecret == nil || *user.MFASecret == "" {
			return fiber.NewError(fiber.StatusBadRequest, "MFA setup has not been started")
		}
		if !svc.VerifyTOTP(body.Token, *user.MFASecret) {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid verification code")
		}

		if !user.MFAEnabled {
			if err := database.DB.Model(user).Update("mfa_enabled", true).Error; err != nil {
				return fmt.Errorf("enable mfa: %w", err)
			}
		}

		return c.JSON(fiber.Map{"mfaEnabled": true})
	}
}

// POST /api/auth/mfa/disable needs the password and, when enabled, a second factor.
func DisableHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}

		var body DisableRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		if !auth.CheckPassword(user.PasswordHash, body.Password) {
			return fiber.NewError(fiber.StatusBadRequest, "Password is incorrect")
		}

		if user.MFAEnabled {
			ok, err := checkSecondFactor(svc, user, body.Token)
			if err != nil {
				return err
			}
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid verification code")
			}
		}

		if err := database.DB.Model(user).Updates(map[string]any{
			"mfa_secret":   nil,
			"mfa_enabled":  false,
			"backup_codes": datatypes.NewJSONSlice([]string{}),
		}).Error; err != nil {
			return fmt.Errorf("disable mfa: %w", err)
		}

		return c.JSON(fiber.Map{"mfaEnabled": false})
	}
}

// POST /api/auth/mfa/backup-code consumes a backup code.
func BackupCodeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}

		var body BackupCodeRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		if !user.MFAEnabled {
			return fiber.NewError(fiber.StatusBadRequest, "MFA is not enabled")
		}

		ok, remaining := VerifyBackupCode(body.Code, user.BackupCodes)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid backup code")
		}
		if err := consumeBackupCode(user, remaining); err != nil {
			if errors.Is(err, errCodesChanged) {
				return fiber.NewError(fiber.StatusConflict, "Backup code already used")
			}
			return err
		}

		return c.JSON(fiber.Map{"valid": true, "remaining": len(remaining)})
	}
}

// GET /api/auth/mfa/status
func StatusHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"state":                user.MFAState(),
			"mfaEnabled":           user.MFAEnabled,
			"backupCodesRemaining": len(user.BackupCodes),
		})
	}
}

// POST /api/auth/mfa/backup-codes/regenerate replaces every backup code.
func RegenerateBackupCodesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}
		if !user.MFAEnabled {
			return fiber.NewError(fiber.StatusBadRequest, "MFA is not enabled")
		}

		codes, err := GenerateBackupCodes()
		if err != nil {
			return err
		}
		hashed, err := HashBackupCodes(codes)
		if err != nil {
			return err
		}
		if err := database.DB.Model(user).Update("backup_codes", datatypes.NewJSONSlice(hashed)).Error; err != nil {
			return fmt.Errorf("store backup codes: %w", err)
		}

		return c.JSON(fiber.Map{"backupCodes": codes})
	}
}

// RequireMFA gates a sensitive operation behind a fresh TOTP or backup code
// when the user has MFA enabled. Failures answer 403 {"requiresMFA": true}.
func RequireMFA(svc *Service, operation string) fiber.Handler {
	gate := RequireSecondFactor(svc, operation)
	return func(c *fiber.Ctx) error {
		if !IsSensitiveOperation(operation) {
			return c.Next()
		}
		return gate(c)
	}
}

// RequireSecondFactor is RequireMFA for routes outside the sensitive
// operation list that still must not run on a session alone.
func RequireSecondFactor(svc *Service, operation string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}
		if !user.MFAEnabled {
			return c.Next()
		}

		token := c.Get(HeaderMFAToken)
		if token == "" {
			var body struct {
				MFAToken string `json:"mfaToken"`
			}
			if len(c.Body()) > 0 {
				_ = json.Unmarshal(c.Body(), &body)
			}
			token = body.MFAToken
		}
		if token == "" {
			metrics.AuthFailures.WithLabelValues(metrics.AuthMFARequired).Inc()
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":       "MFA verification required",
				"requiresMFA": true,
			})
		}

		ok, err := checkSecondFactor(svc, user, token)
		if err != nil {
			return err
		}
		if !ok {
			metrics.AuthFailures.WithLabelValues(metrics.AuthMFAInvalid).Inc()
			logging.L.WithFields(map[string]any{"user_id": user.ID, "operation": operation}).
				Info("sensitive operation rejected: bad mfa token")
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":       "Invalid MFA token",
				"requiresMFA": true,
			})
		}
		return c.Next()
	}
}

// checkSecondFactor accepts a TOTP code, or a backup code which is consumed.
func checkSecondFactor(svc *Service, user *models.User, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	if user.MFASecret != nil && svc.VerifyTOTP(token, *user.MFASecret) {
		return true, nil
	}
	ok, remaining := VerifyBackupCode(token, user.BackupCodes)
	if !ok {
		return false, nil
	}
	if err := consumeBackupCode(user, remaining); err != nil {
		if errors.Is(err, errCodesChanged) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// consumeBackupCode persists remaining only if nobody changed the list since
// user was loaded, so one code cannot be spent twice by parallel requests.
func consumeBackupCode(user *models.User, remaining []string) error {
	res := database.DB.Model(&models.User{}).
		Where("id = ? AND backup_codes = ?", user.ID, user.BackupCodes).
		Update("backup_codes", datatypes.NewJSONSlice(remaining))
	if res.Error != nil {
		return fmt.Errorf("consume backup code: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return errCodesChanged
	}
	user.BackupCodes = remaining
	return nil
}

func currentUser(c *fiber.Ctx) (*models.User, error) {
	userID, err := auth.UserID(c)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
	}
	return &user, nil
}
