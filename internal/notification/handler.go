package notification

import (
	"time"

	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GET /api/notifications?unread=true
func ListHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		q := database.DB.Where("user_id = ?", userID)
		if c.QueryBool("unread") {
			q = q.Where("is_read = ?", false)
		}

		var list []models.Notification
		if err := q.Order("created_at DESC, id DESC").Limit(100).Find(&list).Error; err != nil {
			return err
		}

		var unread int64
		if err := database.DB.Model(&models.Notification{}).
			Where("user_id = ? AND is_read = ?", userID, false).
			Count(&unread).Error; err != nil {
			return err
		}

		return c.JSON(fiber.Map{"notifications": list, "unread": unread})
	}
}

// POST /api/notifications/:id/read
func MarkReadHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid notification id")
		}

		res := database.DB.Model(&models.Notification{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(map[string]any{"is_read": true, "read_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Notification not found")
		}
		return c.JSON(fiber.Map{"message": "Marked as read"})
	}
}

// POST /api/notifications/read-all
func MarkAllReadHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		res := database.DB.Model(&models.Notification{}).
			Where("user_id = ? AND is_read = ?", userID, false).
			Updates(map[string]any{"is_read": true, "read_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		return c.JSON(fiber.Map{"updated": res.RowsAffected})
	}
}
