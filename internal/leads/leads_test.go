package leads

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"cardsite-backend/internal/analytics"
	"cardsite-backend/internal/apierror"
	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newApp(userID uint) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apierror.Handler})
	app.Post("/public/leads", SubmitHandler())
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, userID)
		return c.Next()
	})
	app.Get("/brands/:brandId/leads", ListHandler())
	app.Get("/brands/:brandId/leads/export", ExportHandler())
	app.Post("/brands/:brandId/leads/import", ImportHandler())
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

func u(v uint) string { return strconv.FormatUint(uint64(v), 10) }

func TestSubmit_StoresLeadAndNotifiesOwner(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleBrandManager)
	brand := testutil.CreateBrand(t, owner, "acme")
	branch := testutil.CreateBranch(t, brand, "moda")

	resp := do(t, newApp(0), "POST", "/public/leads",
		`{"brand_slug":"acme","branch_slug":"moda","name":"Deniz","email":"Deniz@Example.com","message":"Call me"}`)
	require.Equal(t, 201, resp.StatusCode)
	analytics.Flush()

	var lead models.Lead
	require.NoError(t, database.DB.First(&lead).Error)
	assert.Equal(t, "deniz@example.com", lead.Email)
	assert.Equal(t, "microsite", lead.Source)
	require.NotNil(t, lead.BranchID)
	assert.Equal(t, branch.ID, *lead.BranchID)

	var ev models.AnalyticsEvent
	require.NoError(t, database.DB.Where("type = ?", models.EventLeadSubmit).First(&ev).Error)
	require.NotNil(t, ev.BrandID)
	assert.Equal(t, brand.ID, *ev.BrandID)

	var n int64
	database.DB.Model(&models.Notification{}).Where("user_id = ? AND type = ?", owner.ID, "LEAD").Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestSubmit_Rejections(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleBrandManager)
	testutil.CreateBrand(t, owner, "acme")
	app := newApp(0)

	assert.Equal(t, 400, do(t, app, "POST", "/public/leads", `{"brand_slug":"acme","name":"No Contact"}`).StatusCode)
	assert.Equal(t, 400, do(t, app, "POST", "/public/leads", `{"brand_slug":"acme","email":"x@example.com"}`).StatusCode)
	assert.Equal(t, 404, do(t, app, "POST", "/public/leads", `{"brand_slug":"ghost","name":"A","phone":"123"}`).StatusCode)
	assert.Equal(t, 404, do(t, app, "POST", "/public/leads", `{"brand_slug":"acme","branch_slug":"ghost","name":"A","phone":"123"}`).StatusCode)

	var n int64
	database.DB.Model(&models.Lead{}).Count(&n)
	assert.Zero(t, n)
}

func TestList_ScopedToBrand(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleCustomer)
	x := testutil.CreateBrand(t, owner, "brand-x")
	y := testutil.CreateBrand(t, owner, "brand-y")
	mgr := testutil.CreateUser(t, "mgr@example.com", models.RoleBrandManager, func(m *models.User) { m.BrandID = &x.ID })
	require.NoError(t, database.DB.Create(&[]models.Lead{
		{BrandID: x.ID, Name: "One"},
		{BrandID: y.ID, Name: "Other"},
	}).Error)

	app := newApp(mgr.ID)
	resp := do(t, app, "GET", "/brands/"+u(x.ID)+"/leads", "")
	require.Equal(t, 200, resp.StatusCode)
	var list []models.Lead
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "One", list[0].Name)

	assert.Equal(t, 403, do(t, app, "GET", "/brands/"+u(y.ID)+"/leads", "").StatusCode)
}

func TestExport_CSVAndXLSX(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleSuperAdmin)
	brand := testutil.CreateBrand(t, owner, "acme")
	require.NoError(t, database.DB.Create(&models.Lead{BrandID: brand.ID, Name: "Deniz, Jr.", Email: "d@example.com"}).Error)
	app := newApp(owner.ID)

	resp := do(t, app, "GET", "/brands/"+u(brand.ID)+"/leads/export?format=csv", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Name", records[0][1])
	assert.Equal(t, "Deniz, Jr.", records[1][1])

	resp = do(t, app, "GET", "/brands/"+u(brand.ID)+"/leads/export?format=xlsx", "")
	require.Equal(t, 200, resp.StatusCode)
	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(leadSheet, "C2")
	require.NoError(t, err)
	assert.Equal(t, "d@example.com", v)

	assert.Equal(t, 400, do(t, app, "GET", "/brands/"+u(brand.ID)+"/leads/export?format=pdf", "").StatusCode)
}

func sheet(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func upload(t *testing.T, app *fiber.App, path, filename string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestParseXLSX_HeaderDetection(t *testing.T) {
	withHeader := sheet(t, [][]any{
		{"Email", "Full Name", "Phone"},
		{"a@example.com", "Ayse", "555"},
		{"", "", ""},
		{"broken", "Bad Mail", ""},
		{"x@example.com", "", "1"},
	})
	leads, res, err := ParseXLSX(bytes.NewReader(withHeader), 7)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Ayse", leads[0].Name)
	assert.Equal(t, "a@example.com", leads[0].Email)
	assert.Equal(t, "555", leads[0].Phone)
	assert.Equal(t, uint(7), leads[0].BrandID)
	assert.Equal(t, 2, res.Skipped)

	positional := sheet(t, [][]any{{"Mehmet", "m@example.com", "444", "Acme"}})
	leads, _, err = ParseXLSX(bytes.NewReader(positional), 7)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Acme", leads[0].Company)
	assert.Equal(t, "import", leads[0].Source)
}

func TestImport_Upload(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleSuperAdmin)
	brand := testutil.CreateBrand(t, owner, "acme")
	app := newApp(owner.ID)
	path := "/brands/" + u(brand.ID) + "/leads/import"

	data := sheet(t, [][]any{{"Name", "Email"}, {"Ayse", "a@example.com"}, {"Mehmet", ""}})
	resp := upload(t, app, path, "leads.xlsx", data)
	require.Equal(t, 200, resp.StatusCode)
	var res ImportResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 2, res.Imported)

	var n int64
	database.DB.Model(&models.Lead{}).Where("brand_id = ?", brand.ID).Count(&n)
	assert.Equal(t, int64(2), n)
	database.DB.Model(&models.AuditLog{}).Where("entity_type = ?", "lead_import").Count(&n)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, 400, upload(t, app, path, "leads.csv", []byte("a,b")).StatusCode)
	assert.Equal(t, 400, upload(t, app, path, "leads.xlsx", []byte("not a zip")).StatusCode)
}
