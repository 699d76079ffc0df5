package brand

import (
	"errors"
	"fmt"
	"strings"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/audit"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BranchResponse struct {
	ID        uint                   `json:"id"`
	BrandID   uint                   `json:"brand_id"`
	Name      string                 `json:"name"`
	Slug      string                 `json:"slug"`
	IsActive  bool                   `json:"is_active"`
	Phone     string                 `json:"phone"`
	Email     string                 `json:"email"`
	Website   string                 `json:"website"`
	Address   string                 `json:"address"`
	City      string                 `json:"city"`
	Country   string                 `json:"country"`
	Hours     []models.OpeningHours  `json:"hours"`
	Microsite models.MicrositeConfig `json:"microsite"`
	CreatedAt string                 `json:"created_at"`
}

type CreateBranchRequest struct {
	Name     string                `json:"name" validate:"required,max=100"`
	Slug     string                `json:"slug" validate:"omitempty,slug"`
	IsActive *bool                 `json:"is_active"`
	Phone    string                `json:"phone" validate:"max=50"`
	Email    string                `json:"email" validate:"omitempty,email"`
	Website  string                `json:"website" validate:"omitempty,url"`
	Address  string                `json:"address" validate:"max=255"`
	City     string                `json:"city" validate:"max=100"`
	Country  string                `json:"country" validate:"max=100"`
	Hours    []models.OpeningHours `json:"hours" validate:"max=7,dive"`
}

type UpdateBranchRequest struct {
	Name     *string                `json:"name" validate:"omitempty,min=1,max=100"`
	Slug     *string                `json:"slug" validate:"omitempty,slug"`
	IsActive *bool                  `json:"is_active"`
	Phone    *string                `json:"phone" validate:"omitempty,max=50"`
	Email    *string                `json:"email" validate:"omitempty,email"`
	Website  *string                `json:"website" validate:"omitempty,url"`
	Address  *string                `json:"address" validate:"omitempty,max=255"`
	City     *string                `json:"city" validate:"omitempty,max=100"`
	Country  *string                `json:"country" validate:"omitempty,max=100"`
	Hours    *[]models.OpeningHours `json:"hours" validate:"omitempty,max=7,dive"`
}

func toBranchResponse(b *models.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID,
		BrandID:   b.BrandID,
		Name:      b.Name,
		Slug:      b.Slug,
		IsActive:  b.IsActive,
		Phone:     b.Phone,
		Email:     b.Email,
		Website:   b.Website,
		Address:   b.Address,
		City:      b.City,
		Country:   b.Country,
		Hours:     []models.OpeningHours(b.Hours),
		Microsite: b.Microsite.Data(),
		CreatedAt: b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// POST /api/brands/:brandId/branches
func CreateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, brand, err := brandFromParam(c)
		if err != nil {
			return err
		}
		id, err := access.CheckManage(c, res)
		if err != nil {
			return err
		}

		var body CreateBranchRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		branch := models.Branch{
			BrandID:  brand.ID,
			Name:     strings.TrimSpace(body.Name),
			Slug:     body.Slug,
			IsActive: true,
			Phone:    strings.TrimSpace(body.Phone),
			Email:    strings.TrimSpace(body.Email),
			Website:  body.Website,
			Address:  body.Address,
			City:     body.City,
			Country:  body.Country,
			Hours:    datatypes.NewJSONSlice(body.Hours),
		}
		if body.IsActive != nil {
			branch.IsActive = *body.IsActive
		}
		if branch.Slug == "" {
			branch.Slug = validation.Slugify(branch.Name)
		}
		if !validation.IsSlug(branch.Slug) {
			return &validation.Error{Message: "Validation failed", Fields: map[string]string{"slug": "slug"}}
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := branchSlugTaken(tx, brand.ID, branch.Slug, 0); err != nil {
				return err
			}
			if branch.IsActive {
				if err := ensureCapacity(tx, brand.ID, 0); err != nil {
					return err
				}
			}
			if err := tx.Create(&branch).Error; err != nil {
				return fmt.Errorf("create branch: %w", err)
			}
			return audit.WriteLogTx(tx, audit.LogOptions{
				BrandID:     &brand.ID,
				UserID:      id.UserID,
				EntityType:  "branch",
				EntityID:    branch.ID,
				Action:      models.AuditActionCreate,
				Description: "Branch created: " + branch.Name,
				After:       toBranchResponse(&branch),
			})
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(toBranchResponse(&branch))
	}
}

// GET /api/brands/:brandId/branches
func ListBranchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, brand, err := brandFromParam(c)
		if err != nil {
			return err
		}

		q := database.DB.Where("brand_id = ?", brand.ID).Order("name ASC")
		if _, err := access.Check(c, res); err != nil {
			id, idErr := access.FromCtx(c)
			if idErr != nil || id.Role != models.RoleBranchAdmin || len(id.BranchIDs) == 0 {
				return err
			}
			q = q.Where("id IN ?", id.BranchIDs)
		}

		var branches []models.Branch
		if err := q.Find(&branches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list branches")
		}

		out := make([]BranchResponse, 0, len(branches))
		for i := range branches {
			out = append(out, toBranchResponse(&branches[i]))
		}
		return c.JSON(out)
	}
}

// GET /api/branches/:id
func GetBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, branch, err := branchFromParam(c)
		if err != nil {
			return err
		}
		if _, err := access.Check(c, res); err != nil {
			return err
		}
		return c.JSON(toBranchResponse(branch))
	}
}

// PUT /api/branches/:id
func UpdateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, branch, err := branchFromParam(c)
		if err != nil {
			return err
		}
		id, err := access.Check(c, res)
		if err != nil {
			return err
		}

		var body UpdateBranchRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		before := toBranchResponse(branch)
		activating := body.IsActive != nil && *body.IsActive && !branch.IsActive

		if body.Name != nil {
			branch.Name = strings.TrimSpace(*body.Name)
		}
		if body.Slug != nil {
			branch.Slug = *body.Slug
		}
		if body.IsActive != nil {
			branch.IsActive = *body.IsActive
		}
		if body.Phone != nil {
			branch.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.Email != nil {
			branch.Email = strings.TrimSpace(*body.Email)
		}
		if body.Website != nil {
			branch.Website = *body.Website
		}
		if body.Address != nil {
			branch.Address = *body.Address
		}
		if body.City != nil {
			branch.City = *body.City
		}
		if body.Country != nil {
			branch.Country = *body.Country
		}
		if body.Hours != nil {
			branch.Hours = datatypes.NewJSONSlice(*body.Hours)
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if branch.Slug != before.Slug {
				if err := branchSlugTaken(tx, branch.BrandID, branch.Slug, branch.ID); err != nil {
					return err
				}
			}
			if activating {
				if err := ensureCapacity(tx, branch.BrandID, branch.ID); err != nil {
					return err
				}
			}
			if err := tx.Save(branch).Error; err != nil {
				return fmt.Errorf("update branch: %w", err)
			}
			return audit.WriteLogTx(tx, audit.LogOptions{
				BrandID:     &branch.BrandID,
				UserID:      id.UserID,
				EntityType:  "branch",
				EntityID:    branch.ID,
				Action:      models.AuditActionUpdate,
				Description: "Branch updated: " + branch.Name,
				Before:      before,
				After:       toBranchResponse(branch),
			})
		})
		if err != nil {
			return err
		}

		return c.JSON(toBranchResponse(branch))
	}
}

// PUT /api/branches/:id/microsite replaces the page configuration.
func UpdateMicrositeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, branch, err := branchFromParam(c)
		if err != nil {
			return err
		}
		id, err := access.Check(c, res)
		if err != nil {
			return err
		}

		var cfg models.MicrositeConfig
		if err := validation.Parse(c, &cfg); err != nil {
			return err
		}

		before := branch.Microsite.Data()
		if err := database.DB.Model(branch).Update("microsite", datatypes.NewJSONType(cfg)).Error; err != nil {
			return fmt.Errorf("update microsite: %w", err)
		}
		branch.Microsite = datatypes.NewJSONType(cfg)

		audit.Record(audit.LogOptions{
			BrandID:     &branch.BrandID,
			UserID:      id.UserID,
			EntityType:  "microsite",
			EntityID:    branch.ID,
			Action:      models.AuditActionUpdate,
			Description: "Microsite updated: " + branch.Name,
			Before:      before,
			After:       cfg,
		})

		return c.JSON(toBranchResponse(branch))
	}
}

// DELETE /api/branches/:id
func DeleteBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, branch, err := branchFromParam(c)
		if err != nil {
			return err
		}
		id, err := access.CheckManage(c, res)
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec("DELETE FROM user_branches WHERE branch_id = ?", branch.ID).Error; err != nil {
				return err
			}
			for _, m := range []any{&models.QRCode{}, &models.ShortLink{}} {
				if err := tx.Where("branch_id = ?", branch.ID).Delete(m).Error; err != nil {
					return err
				}
			}
			if err := tx.Delete(branch).Error; err != nil {
				return fmt.Errorf("delete branch: %w", err)
			}
			return audit.WriteLogTx(tx, audit.LogOptions{
				BrandID:     &branch.BrandID,
				UserID:      id.UserID,
				EntityType:  "branch",
				EntityID:    branch.ID,
				Action:      models.AuditActionDelete,
				Description: "Branch deleted: " + branch.Name,
				Before:      toBranchResponse(branch),
			})
		})
		if err != nil {
			return err
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func branchFromParam(c *fiber.Ctx) (access.Resource, *models.Branch, error) {
	branchID, err := c.ParamsInt("id")
	if err != nil || branchID <= 0 {
		return access.Resource{}, nil, fiber.NewError(fiber.StatusBadRequest, "Invalid branch id")
	}
	return access.BranchResource(uint(branchID))
}

func branchSlugTaken(tx *gorm.DB, brandID uint, slug string, exceptID uint) error {
	var existing models.Branch
	err := tx.Select("id").Where("brand_id = ? AND slug = ?", brandID, slug).First(&existing).Error
	if err == nil && existing.ID != exceptID {
		return fiber.NewError(fiber.StatusConflict, "A branch with this slug already exists")
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check branch slug: %w", err)
	}
	return nil
}
