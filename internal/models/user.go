package models

import (
	"time"

	"gorm.io/datatypes"
)

type UserRole string

const (
	RoleSuperAdmin   UserRole = "SUPER_ADMIN"
	RoleTenantAdmin  UserRole = "TENANT_ADMIN"
	RoleBrandManager UserRole = "BRAND_MANAGER"
	RoleBranchAdmin  UserRole = "BRANCH_ADMIN"
	RoleExecutive    UserRole = "EXECUTIVE"
	RoleCustomer     UserRole = "CUSTOMER"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleBrandManager, RoleBranchAdmin, RoleExecutive, RoleCustomer:
		return true
	}
	return false
}

type User struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	TenantID     *uint    `gorm:"index" json:"tenant_id"`
	BrandID      *uint    `gorm:"index" json:"brand_id"`
	Branches     []Branch `gorm:"many2many:user_branches;" json:"-"`
	Name         string   `gorm:"size:100;not null" json:"name"`
	Email        string   `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string   `gorm:"size:255;not null" json:"-"`
	Role         UserRole `gorm:"size:20;not null" json:"role"`

	// MFA: secret is set on setup, MFAEnabled only after a verified code.
	MFASecret   *string                     `gorm:"size:128" json:"-"`
	MFAEnabled  bool                        `gorm:"default:false" json:"mfa_enabled"`
	BackupCodes datatypes.JSONSlice[string] `json:"-"`

	ResetTokenHash      string     `gorm:"size:64;index" json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MFAState reports where the user is in the UNSET -> PENDING -> ENABLED flow.
func (u *User) MFAState() string {
	switch {
	case u.MFAEnabled:
		return "ENABLED"
	case u.MFASecret != nil && *u.MFASecret != "":
		return "PENDING"
	default:
		return "UNSET"
	}
}

type Tenant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;unique" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
