// Package access is the single authorization gate used by every protected
// handler: resolve the identity, resolve the resource owner, then Authorize.
package access

import (
	"errors"

	"cardsite-backend/internal/models"
)

var ErrForbidden = errors.New("forbidden")

// Identity is the authenticated caller as far as authorization is concerned.
type Identity struct {
	UserID    uint
	Role      models.UserRole
	TenantID  *uint
	BrandID   *uint
	BranchIDs []uint
}

// Resource describes who owns the thing being touched. BranchID is nil for
// brand-level resources.
type Resource struct {
	TenantID *uint
	BrandID  uint
	BranchID *uint
}

// Authorize applies the role table. There is no inheritance beyond it.
func Authorize(id Identity, res Resource) error {
	switch id.Role {
	case models.RoleSuperAdmin:
		return nil
	case models.RoleTenantAdmin:
		if id.TenantID != nil && res.TenantID != nil && *id.TenantID == *res.TenantID {
			return nil
		}
	case models.RoleBrandManager:
		if id.BrandID != nil && res.BrandID != 0 && *id.BrandID == res.BrandID {
			return nil
		}
	case models.RoleBranchAdmin:
		if res.BranchID != nil {
			for _, b := range id.BranchIDs {
				if b == *res.BranchID {
					return nil
				}
			}
		}
	}
	return ErrForbidden
}

// CanManageBrand is Authorize for brand-level mutations, where branch
// admins have no say.
func CanManageBrand(id Identity, res Resource) error {
	if id.Role == models.RoleBranchAdmin {
		return ErrForbidden
	}
	res.BranchID = nil
	return Authorize(id, res)
}
