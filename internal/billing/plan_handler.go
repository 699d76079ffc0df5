package billing

import (
	"fmt"
	"strings"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/audit"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type PlanRequest struct {
	Name        string              `json:"name" validate:"required,max=100"`
	Description string              `json:"description" validate:"max=500"`
	Price       int64               `json:"price" validate:"gte=0"`
	Currency    string              `json:"currency" validate:"required,len=3,alpha"`
	Duration    models.PlanDuration `json:"duration" validate:"required,oneof=MONTHLY YEARLY"`
	BranchLimit int                 `json:"branch_limit" validate:"required,min=1,max=1000"`
	IsActive    *bool               `json:"is_active"`
}

type UpdatePlanRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
	BranchLimit *int    `json:"branch_limit" validate:"omitempty,min=1,max=1000"`
	IsActive    *bool   `json:"is_active"`
}

func requireSuperAdmin(c *fiber.Ctx) (access.Identity, error) {
	id, err := access.FromCtx(c)
	if err != nil {
		return id, err
	}
	if id.Role != models.RoleSuperAdmin {
		return id, fiber.NewError(fiber.StatusForbidden, "Only super admins can manage plans")
	}
	return id, nil
}

// GET /api/subscription-plans (public; super admins also see inactive plans with ?all=true)
func ListPlansHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Order("price ASC, id ASC")
		if !c.QueryBool("all") {
			q = q.Where("is_active = ?", true)
		} else if _, err := requireSuperAdmin(c); err != nil {
			return err
		}

		var plans []models.SubscriptionPlan
		if err := q.Find(&plans).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list plans")
		}
		return c.JSON(plans)
	}
}

// POST /api/admin/subscription-plans
func CreatePlanHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := requireSuperAdmin(c)
		if err != nil {
			return err
		}
		var body PlanRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		plan := models.SubscriptionPlan{
			Name:        strings.TrimSpace(body.Name),
			Description: body.Description,
			Price:       body.Price,
			Currency:    strings.ToUpper(body.Currency),
			Duration:    body.Duration,
			BranchLimit: body.BranchLimit,
			IsActive:    body.IsActive == nil || *body.IsActive,
		}
		if err := database.DB.Create(&plan).Error; err != nil {
			return fmt.Errorf("create plan: %w", err)
		}
		audit.Record(audit.LogOptions{
			UserID:      id.UserID,
			EntityType:  "subscription_plan",
			EntityID:    plan.ID,
			Action:      models.AuditActionCreate,
			Description: "Plan created: " + plan.Name,
			After:       plan,
		})
		return c.Status(fiber.StatusCreated).JSON(plan)
	}
}

// PUT /api/admin/subscription-plans/:id
//
// Currency and duration are fixed once created; existing subscriptions
// were priced against them.
func UpdatePlanHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := requireSuperAdmin(c)
		if err != nil {
			return err
		}
		var plan models.SubscriptionPlan
		if err := database.DB.First(&plan, c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Plan not found")
		}
		var body UpdatePlanRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		before := plan
		updates := map[string]any{}
		if body.Name != nil {
			updates["name"] = strings.TrimSpace(*body.Name)
		}
		if body.Description != nil {
			updates["description"] = *body.Description
		}
		if body.Price != nil {
			updates["price"] = *body.Price
		}
		if body.BranchLimit != nil {
			updates["branch_limit"] = *body.BranchLimit
		}
		if body.IsActive != nil {
			updates["is_active"] = *body.IsActive
		}
		if len(updates) == 0 {
			return c.JSON(plan)
		}
		if err := database.DB.Model(&plan).Updates(updates).Error; err != nil {
			return fmt.Errorf("update plan: %w", err)
		}
		database.DB.First(&plan, plan.ID)

		audit.Record(audit.LogOptions{
			UserID:      id.UserID,
			EntityType:  "subscription_plan",
			EntityID:    plan.ID,
			Action:      models.AuditActionUpdate,
			Description: "Plan updated: " + plan.Name,
			Before:      before,
			After:       plan,
		})
		return c.JSON(plan)
	}
}

// DELETE /api/admin/subscription-plans/:id
//
// A plan that subscriptions or orders reference is deactivated instead.
func DeletePlanHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := requireSuperAdmin(c)
		if err != nil {
			return err
		}
		var plan models.SubscriptionPlan
		if err := database.DB.First(&plan, c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Plan not found")
		}

		var refs, orders int64
		database.DB.Model(&models.Subscription{}).Where("plan_id = ?", plan.ID).Count(&refs)
		database.DB.Model(&models.PaymentOrder{}).Where("plan_id = ?", plan.ID).Count(&orders)

		action := "deleted"
		if refs+orders > 0 {
			if err := database.DB.Model(&plan).Update("is_active", false).Error; err != nil {
				return fmt.Errorf("deactivate plan: %w", err)
			}
			action = "deactivated"
		} else if err := database.DB.Delete(&plan).Error; err != nil {
			return fmt.Errorf("delete plan: %w", err)
		}

		audit.Record(audit.LogOptions{
			UserID:      id.UserID,
			EntityType:  "subscription_plan",
			EntityID:    plan.ID,
			Action:      models.AuditActionDelete,
			Description: "Plan " + action + ": " + plan.Name,
			Before:      plan,
		})
		return c.JSON(fiber.Map{"message": "Plan " + action})
	}
}
