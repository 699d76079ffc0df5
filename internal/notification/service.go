package notification

import (
	"fmt"

	"cardsite-backend/internal/database"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/models"

	"gorm.io/gorm"
)

const (
	TypePayment      = "PAYMENT"
	TypeSubscription = "SUBSCRIPTION"
	TypeLead         = "LEAD"
	TypeSecurity     = "SECURITY"
)

// Notify stores an in-app notification for userID.
func Notify(userID uint, kind, title, body string) error {
	return NotifyTx(database.DB, userID, kind, title, body)
}

func NotifyTx(tx *gorm.DB, userID uint, kind, title, body string) error {
	n := models.Notification{
		UserID: userID,
		Type:   kind,
		Title:  title,
		Body:   body,
	}
	if err := tx.Create(&n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// NotifyBrandOwner notifies the owner of brandID and logs failures.
func NotifyBrandOwner(brandID uint, kind, title, body string) {
	var brand models.Brand
	if err := database.DB.Select("id", "owner_id").First(&brand, brandID).Error; err != nil {
		logging.L.WithError(err).WithField("brand_id", brandID).Warn("notification target not found")
		return
	}
	if err := Notify(brand.OwnerID, kind, title, body); err != nil {
		logging.L.WithError(err).WithField("brand_id", brandID).Warn("notification not stored")
	}
}
