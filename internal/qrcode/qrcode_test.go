package qrcode

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
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
)

const base = "https://cards.example.com"

func newApp(userID uint) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apierror.Handler})
	app.Get("/q/:id", ScanHandler())
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, userID)
		return c.Next()
	})
	app.Post("/brands/:brandId/qrcodes", CreateHandler(base))
	app.Get("/brands/:brandId/qrcodes", ListHandler(base))
	app.Get("/qrcodes/:id", GetHandler(base))
	app.Put("/qrcodes/:id", UpdateHandler(base))
	app.Delete("/qrcodes/:id", DeleteHandler())
	app.Get("/qrcodes/:id/download", DownloadHandler(base))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func u(v uint) string { return strconv.FormatUint(uint64(v), 10) }

func TestRenderPNG(t *testing.T) {
	data, err := RenderPNG(base+"/q/1", Style{Foreground: "#112233", Size: 256})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestRenderSVG(t *testing.T) {
	data, err := RenderSVG(base+"/q/1", Style{Foreground: "#FF0000", Background: "bogus"})
	require.NoError(t, err)

	svg := string(data)
	assert.True(t, strings.HasPrefix(svg, `<?xml`))
	assert.Contains(t, svg, `fill="#ff0000"`)
	assert.Contains(t, svg, `fill="#ffffff"`, "invalid colours fall back")
	assert.Contains(t, svg, "h1v1h-1z")
	assert.True(t, strings.HasSuffix(svg, "</svg>"))
}

func TestRenderPDF(t *testing.T) {
	data, err := RenderPDF(base+"/q/1", "Table 4", Style{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestStyleSizeClamp(t *testing.T) {
	assert.Equal(t, defaultSize, Style{}.size())
	assert.Equal(t, minSize, Style{Size: 10}.size())
	assert.Equal(t, maxSize, Style{Size: 99999}.size())
}

func TestCRUDAndDownload(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "o@example.com", models.RoleCustomer)
	brand := testutil.CreateBrand(t, owner, "acme")
	other := testutil.CreateBrand(t, owner, "other")
	mgr := testutil.CreateUser(t, "m@example.com", models.RoleBrandManager, func(u *models.User) { u.BrandID = &brand.ID })
	app := newApp(mgr.ID)

	assert.Equal(t, 400, do(t, app, "POST", "/brands/"+u(brand.ID)+"/qrcodes", `{"name":"T","target_url":"https://x.example","foreground":"blue"}`).StatusCode)
	assert.Equal(t, 403, do(t, app, "POST", "/brands/"+u(other.ID)+"/qrcodes", `{"name":"T","target_url":"https://x.example"}`).StatusCode)

	resp := do(t, app, "POST", "/brands/"+u(brand.ID)+"/qrcodes", `{"name":"Table 1","target_url":"https://menu.example.com"}`)
	require.Equal(t, 201, resp.StatusCode)
	var created QRResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, base+"/q/"+u(created.ID), created.ScanURL)
	assert.Equal(t, "#000000", created.Foreground)

	for format, ctype := range map[string]string{"png": "image/png", "svg": "image/svg+xml", "pdf": "application/pdf"} {
		resp := do(t, app, "GET", "/qrcodes/"+u(created.ID)+"/download?format="+format, "")
		require.Equal(t, 200, resp.StatusCode, format)
		assert.Equal(t, ctype, resp.Header.Get("Content-Type"), format)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment", format)
		body, _ := io.ReadAll(resp.Body)
		assert.NotEmpty(t, body, format)
	}
	assert.Equal(t, 400, do(t, app, "GET", "/qrcodes/"+u(created.ID)+"/download?format=gif", "").StatusCode)

	require.Equal(t, 200, do(t, app, "PUT", "/qrcodes/"+u(created.ID), `{"name":"Table 2"}`).StatusCode)

	var list []QRResponse
	require.NoError(t, json.NewDecoder(do(t, app, "GET", "/brands/"+u(brand.ID)+"/qrcodes", "").Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Table 2", list[0].Name)

	outsider := testutil.CreateUser(t, "x@example.com", models.RoleBrandManager, func(u *models.User) { u.BrandID = &other.ID })
	assert.Equal(t, 403, do(t, newApp(outsider.ID), "GET", "/qrcodes/"+u(created.ID), "").StatusCode)

	assert.Equal(t, 204, do(t, app, "DELETE", "/qrcodes/"+u(created.ID), "").StatusCode)
	assert.Equal(t, 404, do(t, app, "GET", "/qrcodes/"+u(created.ID), "").StatusCode)
}

func TestScan(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "o@example.com", models.RoleSuperAdmin)
	brand := testutil.CreateBrand(t, owner, "acme")
	branch := testutil.CreateBranch(t, brand, "moda")

	live := models.QRCode{BrandID: brand.ID, BranchID: &branch.ID, Name: "Door", TargetURL: "https://menu.example.com", IsActive: true}
	off := models.QRCode{BrandID: brand.ID, Name: "Old", TargetURL: "https://old.example.com", IsActive: false}
	require.NoError(t, database.DB.Create(&live).Error)
	require.NoError(t, database.DB.Create(&off).Error)

	app := newApp(0)

	resp := do(t, app, "GET", "/q/"+u(live.ID), "")
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "https://menu.example.com", resp.Header.Get("Location"))

	assert.Equal(t, 410, do(t, app, "GET", "/q/"+u(off.ID), "").StatusCode)

	resp = do(t, app, "GET", "/q/424242", "")
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	analytics.Flush()

	var reloaded models.QRCode
	require.NoError(t, database.DB.First(&reloaded, live.ID).Error)
	assert.EqualValues(t, 1, reloaded.ScanCount)

	var ev models.AnalyticsEvent
	require.NoError(t, database.DB.Where("type = ?", models.EventQRScan).First(&ev).Error)
	require.NotNil(t, ev.BranchID)
	assert.Equal(t, branch.ID, *ev.BranchID)
}
