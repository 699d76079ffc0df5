package brand

import (
	"fmt"
	"strings"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/audit"
	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Name      string          `json:"name" validate:"required,max=100"`
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required,min=8,max=72"`
	Role      models.UserRole `json:"role" validate:"required,oneof=BRAND_MANAGER BRANCH_ADMIN EXECUTIVE"`
	BranchIDs []uint          `json:"branch_ids" validate:"required_if=Role BRANCH_ADMIN,dive,gt=0"`
}

type StaffResponse struct {
	ID        uint            `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	BrandID   *uint           `json:"brand_id"`
	BranchIDs []uint          `json:"branch_ids"`
	CreatedAt string          `json:"created_at"`
}

func toStaffResponse(u *models.User) StaffResponse {
	resp := StaffResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		BrandID:   u.BrandID,
		BranchIDs: []uint{},
		CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	for _, b := range u.Branches {
		resp.BranchIDs = append(resp.BranchIDs, b.ID)
	}
	return resp
}

// POST /api/brands/:brandId/users
func CreateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, brand, err := brandFromParam(c)
		if err != nil {
			return err
		}
		id, err := access.CheckManage(c, res)
		if err != nil {
			return err
		}

		var body CreateUserRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))

		var branches []models.Branch
		if body.Role == models.RoleBranchAdmin {
			if err := database.DB.Where("brand_id = ? AND id IN ?", brand.ID, body.BranchIDs).Find(&branches).Error; err != nil {
				return err
			}
			if len(branches) != len(uniq(body.BranchIDs)) {
				return fiber.NewError(fiber.StatusBadRequest, "Every branch must belong to this brand")
			}
		}

		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			return err
		}

		user := models.User{
			Name:         strings.TrimSpace(body.Name),
			Email:        body.Email,
			PasswordHash: hash,
			Role:         body.Role,
			TenantID:     brand.TenantID,
			BrandID:      &brand.ID,
			Branches:     branches,
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var n int64
			tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&n)
			if n > 0 {
				return fiber.NewError(fiber.StatusConflict, "This email is already registered")
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			return audit.WriteLogTx(tx, audit.LogOptions{
				BrandID:     &brand.ID,
				UserID:      id.UserID,
				EntityType:  "user",
				EntityID:    user.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("%s created: %s", user.Role, user.Email),
				After:       toStaffResponse(&user),
			})
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(toStaffResponse(&user))
	}
}

// GET /api/brands/:brandId/users
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, brand, err := brandFromParam(c)
		if err != nil {
			return err
		}
		if _, err := access.CheckManage(c, res); err != nil {
			return err
		}

		var users []models.User
		if err := database.DB.Preload("Branches").Where("brand_id = ?", brand.ID).Order("name ASC").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list users")
		}

		out := make([]StaffResponse, 0, len(users))
		for i := range users {
			out = append(out, toStaffResponse(&users[i]))
		}
		return c.JSON(out)
	}
}

func uniq(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
