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
	"gorm.io/gorm"
)

type BrandResponse struct {
	ID             uint    `json:"id"`
	TenantID       *uint   `json:"tenant_id"`
	OwnerID        uint    `json:"owner_id"`
	Name           string  `json:"name"`
	Slug           string  `json:"slug"`
	CustomDomain   *string `json:"custom_domain"`
	LogoURL        string  `json:"logo_url"`
	SubscriptionID *uint   `json:"subscription_id"`
	BranchCount    int64   `json:"branch_count"`
	BranchLimit    int     `json:"branch_limit"`
	CreatedAt      string  `json:"created_at"`
}

type CreateBrandRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Slug     string `json:"slug" validate:"omitempty,slug"`
	LogoURL  string `json:"logo_url" validate:"omitempty,url,max=500"`
	TenantID *uint  `json:"tenant_id"`
}

type UpdateBrandRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=100"`
	Slug         *string `json:"slug" validate:"omitempty,slug"`
	LogoURL      *string `json:"logo_url" validate:"omitempty,max=500"`
	CustomDomain *string `json:"custom_domain" validate:"omitempty,fqdn"`
}

func toBrandResponse(b *models.Brand) BrandResponse {
	resp := BrandResponse{
		ID:             b.ID,
		TenantID:       b.TenantID,
		OwnerID:        b.OwnerID,
		Name:           b.Name,
		Slug:           b.Slug,
		CustomDomain:   b.CustomDomain,
		LogoURL:        b.LogoURL,
		SubscriptionID: b.SubscriptionID,
		CreatedAt:      b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	database.DB.Model(&models.Branch{}).Where("brand_id = ? AND is_active = ?", b.ID, true).Count(&resp.BranchCount)
	resp.BranchLimit, _ = BranchLimit(database.DB, b.ID, nowFunc())
	return resp
}

// POST /api/brands
//
// A CUSTOMER creating a brand becomes its BRAND_MANAGER. Tenant admins create
// brands inside their own tenant.
func CreateBrandHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := access.FromCtx(c)
		if err != nil {
			return err
		}

		var body CreateBrandRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		brand := models.Brand{
			OwnerID: id.UserID,
			Name:    strings.TrimSpace(body.Name),
			Slug:    body.Slug,
			LogoURL: body.LogoURL,
		}
		if brand.Slug == "" {
			brand.Slug = validation.Slugify(brand.Name)
		}
		if !validation.IsSlug(brand.Slug) {
			return &validation.Error{Message: "Validation failed", Fields: map[string]string{"slug": "slug"}}
		}

		switch id.Role {
		case models.RoleSuperAdmin:
			brand.TenantID = body.TenantID
		case models.RoleTenantAdmin:
			brand.TenantID = id.TenantID
		case models.RoleCustomer:
		case models.RoleBrandManager:
			if id.BrandID != nil {
				return fiber.NewError(fiber.StatusConflict, "You already manage a brand")
			}
		default:
			return fiber.NewError(fiber.StatusForbidden, "You are not allowed to create brands")
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := slugTaken(tx, brand.Slug, 0); err != nil {
				return err
			}
			if err := tx.Create(&brand).Error; err != nil {
				return fmt.Errorf("create brand: %w", err)
			}
			if id.Role == models.RoleCustomer || id.Role == models.RoleBrandManager {
				if err := tx.Model(&models.User{}).Where("id = ?", id.UserID).Updates(map[string]any{
					"role":     models.RoleBrandManager,
					"brand_id": brand.ID,
				}).Error; err != nil {
					return fmt.Errorf("promote owner: %w", err)
				}
			}
			return audit.WriteLogTx(tx, audit.LogOptions{
				BrandID:     &brand.ID,
				UserID:      id.UserID,
				EntityType:  "brand",
				EntityID:    brand.ID,
				Action:      models.AuditActionCreate,
				Description: "Brand created: " + brand.Name,
				After:       brand,
			})
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(toBrandResponse(&brand))
	}
}

// GET /api/brands
func ListBrandsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := access.FromCtx(c)
		if err != nil {
			return err
		}

		ids, all, err := access.VisibleBrandIDs(id)
		if err != nil {
			return err
		}

		q := database.DB.Order("name ASC")
		if !all {
			if len(ids) == 0 {
				return c.JSON([]BrandResponse{})
			}
			q = q.Where("id IN ?", ids)
		}

		var brands []models.Brand
		if err := q.Find(&brands).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list brands")
		}

		res := make([]BrandResponse, 0, len(brands))
		for i := range brands {
			res = append(res, toBrandResponse(&brands[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/brands/:brandId
func GetBrandHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, brand, err := brandFromParam(c)
		if err != nil {
			return err
		}
		if _, err := access.Check(c, res); err != nil {
			// branch admins see the brand of the branches they run
			if !canSeeViaBranch(c, brand.ID) {
				return err
			}
		}
		return c.JSON(toBrandResponse(brand))
	}
}

// PUT /api/brands/:brandId
func UpdateBrandHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, brand, err := brandFromParam(c)
		if err != nil {
			return err
		}
		id, err := access.CheckManage(c, res)
		if err != nil {
			return err
		}

		var body UpdateBrandRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		before := *brand
		if body.Name != nil {
			brand.Name = strings.TrimSpace(*body.Name)
		}
		if body.LogoURL != nil {
			brand.LogoURL = strings.TrimSpace(*body.LogoURL)
		}
		if body.Slug != nil {
			brand.Slug = *body.Slug
		}
		if body.CustomDomain != nil {
			d := strings.ToLower(strings.TrimSpace(*body.CustomDomain))
			if d == "" {
				brand.CustomDomain = nil
			} else {
				brand.CustomDomain = &d
			}
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if brand.Slug != before.Slug {
				if err := slugTaken(tx, brand.Slug, brand.ID); err != nil {
					return err
				}
			}
			if brand.CustomDomain != nil {
				var n int64
				tx.Model(&models.Brand{}).Where("custom_domain = ? AND id <> ?", *brand.CustomDomain, brand.ID).Count(&n)
				if n > 0 {
					return fiber.NewError(fiber.StatusConflict, "This domain is already in use")
				}
			}
			if err := tx.Save(brand).Error; err != nil {
				return fmt.Errorf("update brand: %w", err)
			}
			return audit.WriteLogTx(tx, audit.LogOptions{
				BrandID:     &brand.ID,
				UserID:      id.UserID,
				EntityType:  "brand",
				EntityID:    brand.ID,
				Action:      models.AuditActionUpdate,
				Description: "Brand updated: " + brand.Name,
				Before:      before,
				After:       brand,
			})
		})
		if err != nil {
			return err
		}

		return c.JSON(toBrandResponse(brand))
	}
}

// DELETE /api/brands/:brandId
func DeleteBrandHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, brand, err := brandFromParam(c)
		if err != nil {
			return err
		}
		id, err := access.CheckManage(c, res)
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := DeleteCascade(tx, brand.ID); err != nil {
				return err
			}
			return audit.WriteLogTx(tx, audit.LogOptions{
				UserID:      id.UserID,
				EntityType:  "brand",
				EntityID:    brand.ID,
				Action:      models.AuditActionDelete,
				Description: "Brand deleted: " + brand.Name,
				Before:      brand,
			})
		})
		if err != nil {
			return err
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DeleteCascade removes a brand and everything it owns. It must run inside
// a transaction.
func DeleteCascade(tx *gorm.DB, brandID uint) error {
	var subIDs []uint
	if err := tx.Model(&models.Subscription{}).Where("brand_id = ?", brandID).Pluck("id", &subIDs).Error; err != nil {
		return err
	}
	if len(subIDs) > 0 {
		if err := tx.Where("subscription_id IN ?", subIDs).Delete(&models.Invoice{}).Error; err != nil {
			return fmt.Errorf("delete invoices: %w", err)
		}
		if err := tx.Where("subscription_id IN ?", subIDs).Delete(&models.Payment{}).Error; err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
	}

	var branchIDs []uint
	if err := tx.Model(&models.Branch{}).Where("brand_id = ?", brandID).Pluck("id", &branchIDs).Error; err != nil {
		return err
	}
	if len(branchIDs) > 0 {
		if err := tx.Exec("DELETE FROM user_branches WHERE branch_id IN ?", branchIDs).Error; err != nil {
			return fmt.Errorf("delete branch assignments: %w", err)
		}
	}

	owned := []any{
		&models.Subscription{},
		&models.PaymentOrder{},
		&models.QRCode{},
		&models.ShortLink{},
		&models.Lead{},
		&models.AnalyticsEvent{},
		&models.Branch{},
	}
	for _, m := range owned {
		if err := tx.Where("brand_id = ?", brandID).Delete(m).Error; err != nil {
			return fmt.Errorf("delete %T: %w", m, err)
		}
	}

	if err := tx.Model(&models.User{}).Where("brand_id = ?", brandID).Update("brand_id", nil).Error; err != nil {
		return fmt.Errorf("detach users: %w", err)
	}
	if err := tx.Delete(&models.Brand{}, brandID).Error; err != nil {
		return fmt.Errorf("delete brand: %w", err)
	}
	return nil
}

func brandFromParam(c *fiber.Ctx) (access.Resource, *models.Brand, error) {
	brandID, err := c.ParamsInt("brandId")
	if err != nil || brandID <= 0 {
		return access.Resource{}, nil, fiber.NewError(fiber.StatusBadRequest, "Invalid brand id")
	}
	return access.BrandResource(uint(brandID))
}

func canSeeViaBranch(c *fiber.Ctx, brandID uint) bool {
	id, err := access.FromCtx(c)
	if err != nil || id.Role != models.RoleBranchAdmin || len(id.BranchIDs) == 0 {
		return false
	}
	var n int64
	database.DB.Model(&models.Branch{}).Where("brand_id = ? AND id IN ?", brandID, id.BranchIDs).Count(&n)
	return n > 0
}

func slugTaken(tx *gorm.DB, slug string, exceptID uint) error {
	var existing models.Brand
	err := tx.Select("id").Where("slug = ?", slug).First(&existing).Error
	if err == nil && existing.ID != exceptID {
		return fiber.NewError(fiber.StatusConflict, "This slug is already taken")
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check slug: %w", err)
	}
	return nil
}
