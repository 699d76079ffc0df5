package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardsite_http_requests_total",
		Help: "HTTP requests by route and status class.",
	}, []string{"method", "route", "status"})

	AnalyticsEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardsite_analytics_events_total",
		Help: "Analytics events recorded, by type and outcome.",
	}, []string{"type", "outcome"})

	Payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardsite_payments_total",
		Help: "Payment verifications by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	Redirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardsite_redirects_total",
		Help: "QR scan and short link resolutions by kind and outcome.",
	}, []string{"kind", "outcome"})

	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardsite_auth_failures_total",
		Help: "Rejected authentication attempts by reason.",
	}, []string{"reason"})
)

// AuthFailures reasons.
const (
	AuthBadCredentials = "bad_credentials"
	AuthInvalidToken   = "invalid_token"
	AuthInvalidRefresh = "invalid_refresh"
	AuthMFARequired    = "mfa_required"
	AuthMFAInvalid     = "mfa_invalid"
)

// Middleware counts requests by matched route, not raw path. Label values are
// copied out of the request buffer, which fasthttp reuses.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		HTTPRequests.WithLabelValues(utils.CopyString(c.Method()), utils.CopyString(c.Route().Path), statusClass(status)).Inc()
		return err
	}
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
