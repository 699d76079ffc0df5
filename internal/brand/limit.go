package brand

import (
	"errors"
	"fmt"
	"time"

	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var nowFunc = time.Now

// DefaultBranchLimit applies to brands without a current subscription.
const DefaultBranchLimit = 1

// BranchLimit returns how many active branches brandID may have at now.
func BranchLimit(db *gorm.DB, brandID uint, now time.Time) (int, error) {
	var sub models.Subscription
	err := db.Preload("Plan").
		Where("brand_id = ? AND status = ? AND end_date > ?", brandID, models.SubscriptionActive, now).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DefaultBranchLimit, nil
		}
		return 0, fmt.Errorf("load subscription: %w", err)
	}
	if sub.Plan.BranchLimit < DefaultBranchLimit {
		return DefaultBranchLimit, nil
	}
	return sub.Plan.BranchLimit, nil
}

// ensureCapacity fails with 403 when one more active branch would exceed
// the plan's limit. excludeID is skipped when counting, for re-activation.
func ensureCapacity(tx *gorm.DB, brandID, excludeID uint) error {
	limit, err := BranchLimit(tx, brandID, nowFunc())
	if err != nil {
		return err
	}

	q := tx.Model(&models.Branch{}).Where("brand_id = ? AND is_active = ?", brandID, true)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var active int64
	if err := q.Count(&active).Error; err != nil {
		return fmt.Errorf("count branches: %w", err)
	}

	if int(active) >= limit {
		return fiber.NewError(fiber.StatusForbidden,
			fmt.Sprintf("Branch limit reached for the current plan (%d active)", limit))
	}
	return nil
}
