package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsByRoute(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/items/:id", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", Handler())

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/items/:id", "2xx"))

	for _, p := range []string{"/items/1", "/items/2"} {
		resp, err := app.Test(httptest.NewRequest("GET", p, nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	}

	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/items/:id", "2xx"))
	assert.Equal(t, before+2, after)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "cardsite_http_requests_total")
}

func TestMiddleware_LabelsSurviveBufferReuse(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	ok := func(c *fiber.Ctx) error { return c.SendString("ok") }
	app.Get("/labels/a", ok)
	app.Post("/labels/b", ok)
	app.Delete("/labels/c", ok)
	app.Get("/metrics", Handler())

	routes := []struct{ method, path string }{
		{"GET", "/labels/a"},
		{"POST", "/labels/b"},
		{"DELETE", "/labels/c"},
	}
	before := map[string]float64{}
	for _, r := range routes {
		before[r.method] = testutil.ToFloat64(HTTPRequests.WithLabelValues(r.method, r.path, "2xx"))
	}

	for i := 0; i < 5; i++ {
		for _, r := range routes {
			resp, err := app.Test(httptest.NewRequest(r.method, r.path, nil))
			require.NoError(t, err)
			require.Equal(t, 200, resp.StatusCode)
		}
	}

	for _, r := range routes {
		after := testutil.ToFloat64(HTTPRequests.WithLabelValues(r.method, r.path, "2xx"))
		assert.Equal(t, before[r.method]+5, after, r.method)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	for _, r := range routes {
		assert.Contains(t, string(body), `cardsite_http_requests_total{method="`+r.method+`",route="`+r.path+`",status="2xx"}`)
	}
	assert.NotContains(t, string(body), `method="GETE"`)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(410))
	assert.Equal(t, "5xx", statusClass(503))
}
