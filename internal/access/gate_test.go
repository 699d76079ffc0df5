package access

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateApp authenticates as userID and guards GET /branches/:id.
func gateApp(userID uint) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals(auth.CtxUserIDKey, userID)
		}
		return c.Next()
	})
	app.Get("/branches/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.ErrBadRequest
		}
		res, _, err := BranchResource(uint(id))
		if err != nil {
			return err
		}
		if _, err := Check(c, res); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func status(t *testing.T, app *fiber.App, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	return resp.StatusCode
}

func TestGate_StatusCodes(t *testing.T) {
	testutil.SetupDB(t)

	owner := testutil.CreateUser(t, "owner@x.com", models.RoleBrandManager)
	brandX := testutil.CreateBrand(t, owner, "brand-x")
	database.DB.Model(owner).Update("brand_id", brandX.ID)

	stranger := testutil.CreateUser(t, "other@y.com", models.RoleBrandManager)
	brandY := testutil.CreateBrand(t, stranger, "brand-y")
	database.DB.Model(stranger).Update("brand_id", brandY.ID)

	branch := testutil.CreateBranch(t, brandX, "downtown")
	path := fmt.Sprintf("/branches/%d", branch.ID)

	assert.Equal(t, fiber.StatusUnauthorized, status(t, gateApp(0), path))
	assert.Equal(t, fiber.StatusOK, status(t, gateApp(owner.ID), path))
	assert.Equal(t, fiber.StatusForbidden, status(t, gateApp(stranger.ID), path))
	assert.Equal(t, fiber.StatusNotFound, status(t, gateApp(owner.ID), "/branches/9999"))
}

func TestGate_BranchAdminUsesAssignedBranches(t *testing.T) {
	testutil.SetupDB(t)

	owner := testutil.CreateUser(t, "owner@x.com", models.RoleBrandManager)
	brand := testutil.CreateBrand(t, owner, "brand-x")
	mine := testutil.CreateBranch(t, brand, "mine")
	other := testutil.CreateBranch(t, brand, "other")

	admin := testutil.CreateUser(t, "branch@x.com", models.RoleBranchAdmin)
	require.NoError(t, database.DB.Model(admin).Association("Branches").Append(mine))

	app := gateApp(admin.ID)
	assert.Equal(t, fiber.StatusOK, status(t, app, fmt.Sprintf("/branches/%d", mine.ID)))
	assert.Equal(t, fiber.StatusForbidden, status(t, app, fmt.Sprintf("/branches/%d", other.ID)))

	ids, all, err := VisibleBrandIDs(Identity{Role: models.RoleBranchAdmin, BranchIDs: []uint{mine.ID}})
	require.NoError(t, err)
	assert.False(t, all)
	assert.Equal(t, []uint{brand.ID}, ids)
}
