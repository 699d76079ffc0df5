package links

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/analytics"
	"cardsite-backend/internal/audit"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/metrics"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const codeLength = 8

type CreateLinkRequest struct {
	TargetURL string     `json:"target_url" validate:"required,url,max=1000"`
	Code      string     `json:"code" validate:"omitempty,alphanum,min=3,max=32"`
	BranchID  *uint      `json:"branch_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type UpdateLinkRequest struct {
	TargetURL *string    `json:"target_url" validate:"omitempty,url,max=1000"`
	IsActive  *bool      `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at"`
	NoExpiry  bool       `json:"no_expiry"`
}

type LinkResponse struct {
	models.ShortLink
	ShortURL string `json:"short_url"`
}

func NewCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:codeLength]
}

// POST /api/brands/:brandId/links
func CreateHandler(baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		brandID, err := c.ParamsInt("brandId")
		if err != nil || brandID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid brand id")
		}

		var body CreateLinkRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}
		if body.BranchID != nil {
			if err := branchInBrand(*body.BranchID, uint(brandID)); err != nil {
				return err
			}
		}

		res, err := access.ScopedResource(uint(brandID), body.BranchID)
		if err != nil {
			return err
		}
		id, err := access.Check(c, res)
		if err != nil {
			return err
		}

		link := models.ShortLink{
			BrandID:   uint(brandID),
			BranchID:  body.BranchID,
			Code:      body.Code,
			TargetURL: body.TargetURL,
			IsActive:  true,
			ExpiresAt: body.ExpiresAt,
		}
		if link.Code == "" {
			link.Code = NewCode()
		}

		var n int64
		database.DB.Model(&models.ShortLink{}).Where("code = ?", link.Code).Count(&n)
		if n > 0 {
			return fiber.NewError(fiber.StatusConflict, "This code is already in use")
		}

		if err := database.DB.Create(&link).Error; err != nil {
			return fmt.Errorf("create short link: %w", err)
		}

		audit.Record(audit.LogOptions{
			BrandID:     &link.BrandID,
			UserID:      id.UserID,
			EntityType:  "short_link",
			EntityID:    link.ID,
			Action:      models.AuditActionCreate,
			Description: "Short link created: " + link.Code,
			After:       link,
		})

		return c.Status(fiber.StatusCreated).JSON(LinkResponse{ShortLink: link, ShortURL: baseURL + "/s/" + link.Code})
	}
}

// GET /api/brands/:brandId/links
func ListHandler(baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		brandID, err := c.ParamsInt("brandId")
		if err != nil || brandID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid brand id")
		}
		res, _, err := access.BrandResource(uint(brandID))
		if err != nil {
			return err
		}

		q := database.DB.Where("brand_id = ?", brandID).Order("created_at DESC")
		if _, err := access.Check(c, res); err != nil {
			id, idErr := access.FromCtx(c)
			if idErr != nil || id.Role != models.RoleBranchAdmin || len(id.BranchIDs) == 0 {
				return err
			}
			q = q.Where("branch_id IN ?", id.BranchIDs)
		}

		var list []models.ShortLink
		if err := q.Find(&list).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list short links")
		}

		out := make([]LinkResponse, 0, len(list))
		for _, l := range list {
			out = append(out, LinkResponse{ShortLink: l, ShortURL: baseURL + "/s/" + l.Code})
		}
		return c.JSON(out)
	}
}

// PUT /api/links/:id
func UpdateHandler(baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		link, id, err := loadOwned(c)
		if err != nil {
			return err
		}

		var body UpdateLinkRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		before := *link
		if body.TargetURL != nil {
			link.TargetURL = *body.TargetURL
		}
		if body.IsActive != nil {
			link.IsActive = *body.IsActive
		}
		if body.ExpiresAt != nil {
			link.ExpiresAt = body.ExpiresAt
		}
		if body.NoExpiry {
			link.ExpiresAt = nil
		}

		if err := database.DB.Save(link).Error; err != nil {
			return fmt.Errorf("update short link: %w", err)
		}

		audit.Record(audit.LogOptions{
			BrandID:     &link.BrandID,
			UserID:      id.UserID,
			EntityType:  "short_link",
			EntityID:    link.ID,
			Action:      models.AuditActionUpdate,
			Description: "Short link updated: " + link.Code,
			Before:      before,
			After:       link,
		})

		return c.JSON(LinkResponse{ShortLink: *link, ShortURL: baseURL + "/s/" + link.Code})
	}
}

// DELETE /api/links/:id
func DeleteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		link, id, err := loadOwned(c)
		if err != nil {
			return err
		}
		if err := database.DB.Delete(link).Error; err != nil {
			return fmt.Errorf("delete short link: %w", err)
		}

		audit.Record(audit.LogOptions{
			BrandID:     &link.BrandID,
			UserID:      id.UserID,
			EntityType:  "short_link",
			EntityID:    link.ID,
			Action:      models.AuditActionDelete,
			Description: "Short link deleted: " + link.Code,
			Before:      link,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /s/:code
//
// Unknown codes go to the site root; inactive or expired links are 410.
func RedirectHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var link models.ShortLink
		if err := database.DB.Where("code = ?", c.Params("code")).First(&link).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			metrics.Redirects.WithLabelValues("short_link", "unknown").Inc()
			return c.Redirect("/", fiber.StatusFound)
		}

		if !link.Usable(time.Now()) {
			metrics.Redirects.WithLabelValues("short_link", "gone").Inc()
			return fiber.NewError(fiber.StatusGone, "This link has expired or is no longer active")
		}

		if err := database.DB.Model(&models.ShortLink{}).Where("id = ?", link.ID).
			UpdateColumn("click_count", gorm.Expr("click_count + ?", 1)).Error; err != nil {
			return fmt.Errorf("count click: %w", err)
		}

		analytics.RecordAsync(analytics.ForTarget(c, models.EventShortLinkClick, link.BrandID, link.BranchID, link.ID))

		metrics.Redirects.WithLabelValues("short_link", "redirected").Inc()
		return c.Redirect(link.TargetURL, fiber.StatusFound)
	}
}

func loadOwned(c *fiber.Ctx) (*models.ShortLink, access.Identity, error) {
	linkID, err := c.ParamsInt("id")
	if err != nil || linkID <= 0 {
		return nil, access.Identity{}, fiber.NewError(fiber.StatusBadRequest, "Invalid link id")
	}

	var link models.ShortLink
	if err := database.DB.First(&link, linkID).Error; err != nil {
		return nil, access.Identity{}, fiber.NewError(fiber.StatusNotFound, "Short link not found")
	}

	res, err := access.ScopedResource(link.BrandID, link.BranchID)
	if err != nil {
		return nil, access.Identity{}, err
	}
	id, err := access.Check(c, res)
	if err != nil {
		return nil, access.Identity{}, err
	}
	return &link, id, nil
}

func branchInBrand(branchID, brandID uint) error {
	var n int64
	database.DB.Model(&models.Branch{}).Where("id = ? AND brand_id = ?", branchID, brandID).Count(&n)
	if n == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Branch does not belong to this brand")
	}
	return nil
}
