package account

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cardsite-backend/internal/apierror"
	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/config"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(userID uint) *fiber.App {
	ts := auth.NewTokenService(strings.Repeat("k", 32), time.Minute, time.Hour, nil)
	cfg := &config.Config{}

	app := fiber.New(fiber.Config{ErrorHandler: apierror.Handler})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, userID)
		return c.Next()
	})
	app.Delete("/account", DeleteAccountHandler(ts, cfg))
	app.Get("/export", ExportHandler())
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestDeleteAccount_RemovesOwnedBrands(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleBrandManager)
	mine := testutil.CreateBrand(t, owner, "mine")
	testutil.CreateBranch(t, mine, "moda")
	require.NoError(t, database.DB.Create(&models.Lead{BrandID: mine.ID, Name: "Lead"}).Error)
	require.NoError(t, database.DB.Create(&models.Notification{UserID: owner.ID, Title: "Hi"}).Error)

	other := testutil.CreateUser(t, "other@example.com", models.RoleBrandManager)
	theirs := testutil.CreateBrand(t, other, "theirs")

	app := newApp(owner.ID)
	assert.Equal(t, 400, do(t, app, "DELETE", "/account", `{"password":"wrong"}`).StatusCode)
	assert.Equal(t, 400, do(t, app, "DELETE", "/account", `{}`).StatusCode)

	resp := do(t, app, "DELETE", "/account", `{"password":"`+testutil.Password+`"}`)
	require.Equal(t, 200, resp.StatusCode)

	var n int64
	database.DB.Model(&models.User{}).Where("id = ?", owner.ID).Count(&n)
	assert.Zero(t, n)
	database.DB.Model(&models.Brand{}).Where("id = ?", mine.ID).Count(&n)
	assert.Zero(t, n)
	database.DB.Model(&models.Branch{}).Where("brand_id = ?", mine.ID).Count(&n)
	assert.Zero(t, n)
	database.DB.Model(&models.Lead{}).Count(&n)
	assert.Zero(t, n)
	database.DB.Model(&models.Notification{}).Count(&n)
	assert.Zero(t, n)
	database.DB.Model(&models.Brand{}).Where("id = ?", theirs.ID).Count(&n)
	assert.Equal(t, int64(1), n)

	var entry models.AuditLog
	require.NoError(t, database.DB.Where("entity_type = ? AND entity_id = ?", "user", owner.ID).First(&entry).Error)
	assert.Equal(t, "owner", entry.UserName)
}

func TestDeleteAccount_LastSuperAdmin(t *testing.T) {
	testutil.SetupDB(t)
	admin := testutil.CreateUser(t, "root@example.com", models.RoleSuperAdmin)

	resp := do(t, newApp(admin.ID), "DELETE", "/account", `{"password":"`+testutil.Password+`"}`)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestExport(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleBrandManager)
	b := testutil.CreateBrand(t, owner, "acme")
	testutil.CreateBranch(t, b, "moda")

	resp := do(t, newApp(owner.ID), "GET", "/export", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "account-export-")

	var got Export
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "owner@example.com", got.User.Email)
	require.Len(t, got.Brands, 1)
	assert.Equal(t, "acme", got.Brands[0].Slug)
	require.Len(t, got.Brands[0].Branches, 1)
	assert.Nil(t, got.Brands[0].Subscription)
}
