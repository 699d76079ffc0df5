package access

import (
	"errors"
	"fmt"

	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const ctxIdentityKey = "access_identity"

// FromCtx loads the caller's identity from the database, so role and brand
// changes apply without waiting for a new token.
func FromCtx(c *fiber.Ctx) (Identity, error) {
	if id, ok := c.Locals(ctxIdentityKey).(Identity); ok {
		return id, nil
	}

	userID, err := auth.UserID(c)
	if err != nil {
		return Identity{}, err
	}

	var user models.User
	if err := database.DB.Preload("Branches").First(&user, userID).Error; err != nil {
		return Identity{}, fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
	}

	id := Identity{
		UserID:   user.ID,
		Role:     user.Role,
		TenantID: user.TenantID,
		BrandID:  user.BrandID,
	}
	for _, b := range user.Branches {
		id.BranchIDs = append(id.BranchIDs, b.ID)
	}

	c.Locals(ctxIdentityKey, id)
	return id, nil
}

// BrandResource resolves the owner of a brand, 404 when it does not exist.
func BrandResource(brandID uint) (Resource, *models.Brand, error) {
	var brand models.Brand
	if err := database.DB.First(&brand, brandID).Error; err != nil {
		return Resource{}, nil, notFoundOr(err, "Brand not found")
	}
	return Resource{TenantID: brand.TenantID, BrandID: brand.ID}, &brand, nil
}

// BranchResource resolves the owner of a branch, 404 when it does not exist.
func BranchResource(branchID uint) (Resource, *models.Branch, error) {
	var branch models.Branch
	if err := database.DB.First(&branch, branchID).Error; err != nil {
		return Resource{}, nil, notFoundOr(err, "Branch not found")
	}
	res, _, err := BrandResource(branch.BrandID)
	if err != nil {
		return Resource{}, nil, err
	}
	res.BranchID = &branch.ID
	return res, &branch, nil
}

// ScopedResource resolves a brand-owned record that may sit under a branch.
func ScopedResource(brandID uint, branchID *uint) (Resource, error) {
	res, _, err := BrandResource(brandID)
	if err != nil {
		return Resource{}, err
	}
	res.BranchID = branchID
	return res, nil
}

// Check runs Authorize and converts a denial to a 403.
func Check(c *fiber.Ctx, res Resource) (Identity, error) {
	id, err := FromCtx(c)
	if err != nil {
		return Identity{}, err
	}
	if Authorize(id, res) != nil {
		return id, fiber.NewError(fiber.StatusForbidden, "You do not have access to this resource")
	}
	return id, nil
}

// CheckManage is Check with CanManageBrand.
func CheckManage(c *fiber.Ctx, res Resource) (Identity, error) {
	id, err := FromCtx(c)
	if err != nil {
		return Identity{}, err
	}
	if CanManageBrand(id, res) != nil {
		return id, fiber.NewError(fiber.StatusForbidden, "You do not have access to this resource")
	}
	return id, nil
}

// VisibleBrandIDs narrows list queries. ok=false means "all brands".
func VisibleBrandIDs(id Identity) (ids []uint, all bool, err error) {
	switch id.Role {
	case models.RoleSuperAdmin:
		return nil, true, nil
	case models.RoleTenantAdmin:
		if id.TenantID == nil {
			return nil, false, nil
		}
		err = database.DB.Model(&models.Brand{}).Where("tenant_id = ?", *id.TenantID).Pluck("id", &ids).Error
	case models.RoleBrandManager:
		if id.BrandID != nil {
			ids = []uint{*id.BrandID}
		}
	case models.RoleBranchAdmin:
		if len(id.BranchIDs) > 0 {
			err = database.DB.Model(&models.Branch{}).Distinct("brand_id").Where("id IN ?", id.BranchIDs).Pluck("brand_id", &ids).Error
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("visible brands: %w", err)
	}
	return ids, false, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
