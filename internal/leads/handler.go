package leads

import (
	"fmt"
	"strings"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/analytics"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/events"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/notification"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SubmitLeadRequest struct {
	BrandSlug  string `json:"brand_slug" validate:"required,slug"`
	BranchSlug string `json:"branch_slug" validate:"omitempty,slug"`
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"max=50"`
	Company    string `json:"company" validate:"max=100"`
	Message    string `json:"message" validate:"max=2000"`
	Source     string `json:"source" validate:"max=50"`
	SessionID  string `json:"session_id" validate:"max=100"`
}

// POST /api/public/leads
func SubmitHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SubmitLeadRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}
		if strings.TrimSpace(body.Email) == "" && strings.TrimSpace(body.Phone) == "" {
			return &validation.Error{
				Message: "Email or phone is required",
				Fields:  map[string]string{"email": "required_without", "phone": "required_without"},
			}
		}

		var brand models.Brand
		if err := database.DB.Where("slug = ?", body.BrandSlug).First(&brand).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Brand not found")
		}

		lead := models.Lead{
			BrandID: brand.ID,
			Name:    strings.TrimSpace(body.Name),
			Email:   strings.ToLower(strings.TrimSpace(body.Email)),
			Phone:   strings.TrimSpace(body.Phone),
			Company: strings.TrimSpace(body.Company),
			Message: strings.TrimSpace(body.Message),
			Source:  body.Source,
		}
		if lead.Source == "" {
			lead.Source = "microsite"
		}

		if body.BranchSlug != "" {
			var branch models.Branch
			err := database.DB.Where("brand_id = ? AND slug = ? AND is_active = ?", brand.ID, body.BranchSlug, true).First(&branch).Error
			if err != nil {
				return fiber.NewError(fiber.StatusNotFound, "Branch not found")
			}
			lead.BranchID = &branch.ID
		}

		if err := database.DB.Create(&lead).Error; err != nil {
			return fmt.Errorf("create lead: %w", err)
		}

		ev := analytics.ForTarget(c, models.EventLeadSubmit, brand.ID, lead.BranchID, lead.ID)
		ev.SessionID = body.SessionID
		analytics.RecordAsync(ev)

		events.Emit(events.SubjectLeadCreated, fiber.Map{
			"id":        lead.ID,
			"brand_id":  lead.BrandID,
			"branch_id": lead.BranchID,
			"source":    lead.Source,
		})
		notification.NotifyBrandOwner(brand.ID, notification.TypeLead,
			"New lead: "+lead.Name,
			fmt.Sprintf("%s left a message via %s.", lead.Name, lead.Source))

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": lead.ID, "message": "Thank you, we will be in touch"})
	}
}

// GET /api/brands/:brandId/leads?branch_id=
func ListHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := scopedQuery(c)
		if err != nil {
			return err
		}

		var list []models.Lead
		if err := q.Order("created_at DESC, id DESC").Limit(500).Find(&list).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list leads")
		}
		return c.JSON(list)
	}
}

// scopedQuery returns the lead query for the brand in the path, narrowed to
// the caller's branches for branch admins.
func scopedQuery(c *fiber.Ctx) (*gorm.DB, error) {
	brandID, err := c.ParamsInt("brandId")
	if err != nil || brandID <= 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid brand id")
	}
	res, _, err := access.BrandResource(uint(brandID))
	if err != nil {
		return nil, err
	}

	q := database.DB.Model(&models.Lead{}).Where("brand_id = ?", brandID)
	if _, err := access.Check(c, res); err != nil {
		id, idErr := access.FromCtx(c)
		if idErr != nil || id.Role != models.RoleBranchAdmin || len(id.BranchIDs) == 0 {
			return nil, err
		}
		q = q.Where("branch_id IN ?", id.BranchIDs)
	}
	if b := c.QueryInt("branch_id"); b > 0 {
		q = q.Where("branch_id = ?", b)
	}
	return q, nil
}
