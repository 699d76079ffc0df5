package audit

import (
	"strconv"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	BrandID     *uint              `json:"brand_id"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
}

const maxPageSize = 200

// GET /api/audit-logs?entity_type=branch&entity_id=1&brand_id=1&user_id=2&limit=50
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := access.FromCtx(c)
		if err != nil {
			return err
		}
		if id.Role == models.RoleExecutive || id.Role == models.RoleCustomer {
			return fiber.NewError(fiber.StatusForbidden, "You do not have access to audit logs")
		}

		brandIDs, all, err := access.VisibleBrandIDs(id)
		if err != nil {
			return err
		}

		dbq := database.DB.Model(&models.AuditLog{})
		if !all {
			if len(brandIDs) == 0 {
				return c.JSON([]AuditLogResponse{})
			}
			dbq = dbq.Where("brand_id IN ?", brandIDs)
		}

		if v := queryUint(c, "brand_id"); v > 0 {
			dbq = dbq.Where("brand_id = ?", v)
		}
		if v := queryUint(c, "user_id"); v > 0 {
			dbq = dbq.Where("user_id = ?", v)
		}
		if et := c.Query("entity_type"); et != "" {
			dbq = dbq.Where("entity_type = ?", et)
		}
		if v := queryUint(c, "entity_id"); v > 0 {
			dbq = dbq.Where("entity_id = ?", v)
		}

		limit := c.QueryInt("limit", 50)
		if limit <= 0 || limit > maxPageSize {
			limit = maxPageSize
		}

		var logs []models.AuditLog
		if err := dbq.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list audit logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				BrandID:     l.BrandID,
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
			})
		}

		return c.JSON(resp)
	}
}

func queryUint(c *fiber.Ctx, key string) uint {
	v, err := strconv.ParseUint(c.Query(key), 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}
