// Package account holds the self-service endpoints that reach across every
// other area: deleting an account and exporting its data.
package account

import (
	"encoding/json"
	"fmt"
	"time"

	"cardsite-backend/internal/audit"
	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/brand"
	"cardsite-backend/internal/config"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// DELETE /api/auth/account (MFA-gated by the router)
//
// Brands the user owns are deleted with everything under them. Audit
// entries stay, they carry the user's name.
func DeleteAccountHandler(ts *auth.TokenService, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body DeleteAccountRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
		}
		if !auth.CheckPassword(user.PasswordHash, body.Password) {
			return fiber.NewError(fiber.StatusBadRequest, "Password is incorrect")
		}

		if user.Role == models.RoleSuperAdmin {
			var admins int64
			database.DB.Model(&models.User{}).Where("role = ?", models.RoleSuperAdmin).Count(&admins)
			if admins <= 1 {
				return fiber.NewError(fiber.StatusConflict, "The last super admin cannot be deleted")
			}
		}

		var brandIDs []uint
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Brand{}).Where("owner_id = ?", user.ID).Pluck("id", &brandIDs).Error; err != nil {
				return err
			}
			for _, id := range brandIDs {
				if err := brand.DeleteCascade(tx, id); err != nil {
					return fmt.Errorf("delete brand %d: %w", id, err)
				}
			}
			if err := tx.Where("user_id = ?", user.ID).Delete(&models.Notification{}).Error; err != nil {
				return fmt.Errorf("delete notifications: %w", err)
			}
			if err := tx.Exec("DELETE FROM user_branches WHERE user_id = ?", user.ID).Error; err != nil {
				return fmt.Errorf("delete branch assignments: %w", err)
			}
			if err := audit.WriteLogTx(tx, audit.LogOptions{
				UserID:      user.ID,
				UserName:    user.Name,
				EntityType:  "user",
				EntityID:    user.ID,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Account deleted with %d owned brand(s)", len(brandIDs)),
			}); err != nil {
				return err
			}
			if err := tx.Delete(&user).Error; err != nil {
				return fmt.Errorf("delete user: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		logging.L.WithField("user_id", user.ID).WithField("brands", len(brandIDs)).Info("account deleted")
		auth.EndSession(c, ts, cfg.CookieSecure)
		return c.JSON(fiber.Map{"message": "Account deleted"})
	}
}

type Export struct {
	ExportedAt    time.Time             `json:"exported_at"`
	User          auth.UserResponse     `json:"user"`
	Brands        []BrandExport         `json:"brands"`
	Notifications []models.Notification `json:"notifications"`
	Activity      []models.AuditLog     `json:"activity"`
}

type BrandExport struct {
	models.Brand
	Branches     []models.Branch      `json:"branches"`
	Subscription *models.Subscription `json:"subscription"`
	Invoices     []models.Invoice     `json:"invoices"`
	Leads        []models.Lead        `json:"leads"`
	QRCodes      []models.QRCode      `json:"qr_codes"`
	ShortLinks   []models.ShortLink   `json:"short_links"`
}

// GET /api/auth/export (MFA-gated by the router)
func ExportHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
		}

		export, err := Collect(database.DB, &user)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(export, "", "  ")
		if err != nil {
			return fmt.Errorf("encode export: %w", err)
		}

		c.Attachment(fmt.Sprintf("account-export-%d.json", user.ID))
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
		return c.Send(data)
	}
}

// Collect gathers everything stored for user and the brands they own.
func Collect(db *gorm.DB, user *models.User) (*Export, error) {
	out := &Export{
		ExportedAt:    time.Now().UTC(),
		User:          auth.NewUserResponse(user),
		Brands:        []BrandExport{},
		Notifications: []models.Notification{},
		Activity:      []models.AuditLog{},
	}

	var brands []models.Brand
	if err := db.Where("owner_id = ?", user.ID).Order("id").Find(&brands).Error; err != nil {
		return nil, fmt.Errorf("export brands: %w", err)
	}
	for _, b := range brands {
		be := BrandExport{Brand: b}
		db.Where("brand_id = ?", b.ID).Order("id").Find(&be.Branches)
		db.Where("brand_id = ?", b.ID).Order("id").Find(&be.Leads)
		db.Where("brand_id = ?", b.ID).Order("id").Find(&be.QRCodes)
		db.Where("brand_id = ?", b.ID).Order("id").Find(&be.ShortLinks)

		var sub models.Subscription
		if err := db.Preload("Plan").Where("brand_id = ?", b.ID).First(&sub).Error; err == nil {
			be.Subscription = &sub
			db.Where("subscription_id = ?", sub.ID).Order("id").Find(&be.Invoices)
		}
		out.Brands = append(out.Brands, be)
	}

	if err := db.Where("user_id = ?", user.ID).Order("id").Find(&out.Notifications).Error; err != nil {
		return nil, fmt.Errorf("export notifications: %w", err)
	}
	if err := db.Where("user_id = ?", user.ID).Order("id").Limit(1000).Find(&out.Activity).Error; err != nil {
		return nil, fmt.Errorf("export activity: %w", err)
	}
	return out, nil
}
