// Package server assembles the fiber application: middleware, routes and
// the error handler.
package server

import (
	"strings"
	"time"

	"cardsite-backend/internal/account"
	"cardsite-backend/internal/analytics"
	"cardsite-backend/internal/apierror"
	"cardsite-backend/internal/audit"
	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/billing"
	"cardsite-backend/internal/brand"
	"cardsite-backend/internal/config"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/leads"
	"cardsite-backend/internal/links"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/metrics"
	"cardsite-backend/internal/mfa"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/notification"
	"cardsite-backend/internal/qrcode"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

type Deps struct {
	Config  *config.Config
	Tokens  *auth.TokenService
	MFA     *mfa.Service
	Billing *billing.Service
	Mailer  notification.Sender
}

// New builds the application. Every dependency must be set.
func New(d Deps) *fiber.App {
	cfg := d.Config
	base := cfg.PublicBaseURL

	app := fiber.New(fiber.Config{
		ErrorHandler: apierror.Handler,
		AppName:      "cardsite-backend",
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logging.RequestLogger())
	app.Use(metrics.Middleware())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(corsOrigins, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + mfa.HeaderMFAToken,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowCredentials: true,
	}))

	app.Get("/health", healthHandler)
	app.Get("/metrics", metrics.Handler())

	// Redirect surfaces, outside /api.
	app.Get("/s/:code", links.RedirectHandler())
	app.Get("/q/:id", qrcode.ScanHandler())

	api := app.Group("/api")

	// Public
	strict := rateLimit(10, time.Minute)
	api.Post("/auth/register", strict, auth.RegisterHandler(d.Tokens, cfg))
	api.Post("/auth/login", strict, auth.LoginHandler(d.Tokens, cfg))
	api.Post("/auth/logout", auth.LogoutHandler(d.Tokens, cfg))
	api.Post("/auth/refresh", auth.RefreshHandler(d.Tokens, cfg))
	api.Post("/auth/forgot-password", strict, auth.ForgotPasswordHandler(cfg, d.Mailer))
	api.Post("/auth/reset-password", strict, auth.ResetPasswordHandler())

	api.Get("/subscription-plans", billing.ListPlansHandler())
	api.Post("/payments/razorpay/webhook", billing.RazorpayWebhookHandler(d.Billing))
	api.Post("/payments/stripe/webhook", billing.StripeWebhookHandler(d.Billing))

	api.Post("/analytics/track", rateLimit(120, time.Minute), analytics.TrackHandler())
	api.Get("/public/microsites/:brandSlug/:branchSlug", brand.MicrositeHandler(cfg))
	api.Get("/public/microsites/:brandSlug/:branchSlug/vcard", brand.VCardHandler(cfg))
	api.Get("/public/domains/:domain", brand.DomainLookupHandler())
	api.Post("/public/leads", strict, leads.SubmitHandler())

	// Authenticated
	protected := api.Group("", auth.JWTMiddleware(d.Tokens))

	protected.Get("/auth/me", auth.MeHandler())
	protected.Post("/auth/change-password", mfa.RequireMFA(d.MFA, "change_password"), auth.ChangePasswordHandler())
	protected.Delete("/auth/account", mfa.RequireMFA(d.MFA, "delete_account"), account.DeleteAccountHandler(d.Tokens, cfg))
	protected.Get("/auth/export", mfa.RequireMFA(d.MFA, "export_data"), account.ExportHandler())

	protected.Post("/auth/mfa/setup", mfa.SetupHandler(d.MFA))
	protected.Post("/auth/mfa/verify", mfa.VerifyHandler(d.MFA))
	protected.Post("/auth/mfa/disable", mfa.DisableHandler(d.MFA))
	protected.Post("/auth/mfa/backup-code", mfa.BackupCodeHandler())
	protected.Get("/auth/mfa/status", mfa.StatusHandler())
	protected.Post("/auth/mfa/backup-codes/regenerate", mfa.RequireSecondFactor(d.MFA, "regenerate_backup_codes"), mfa.RegenerateBackupCodesHandler())

	// Brands and branches
	protected.Post("/brands", brand.CreateBrandHandler())
	protected.Get("/brands", brand.ListBrandsHandler())
	protected.Get("/brands/:brandId", brand.GetBrandHandler())
	protected.Put("/brands/:brandId", brand.UpdateBrandHandler())
	protected.Delete("/brands/:brandId", brand.DeleteBrandHandler())
	protected.Post("/brands/:brandId/branches", brand.CreateBranchHandler())
	protected.Get("/brands/:brandId/branches", brand.ListBranchesHandler())
	protected.Post("/brands/:brandId/users", brand.CreateUserHandler())
	protected.Get("/brands/:brandId/users", brand.ListUsersHandler())
	protected.Get("/branches/:id", brand.GetBranchHandler())
	protected.Put("/branches/:id", brand.UpdateBranchHandler())
	protected.Put("/branches/:id/microsite", brand.UpdateMicrositeHandler())
	protected.Delete("/branches/:id", brand.DeleteBranchHandler())

	// Short links
	protected.Post("/brands/:brandId/links", links.CreateHandler(base))
	protected.Get("/brands/:brandId/links", links.ListHandler(base))
	protected.Put("/links/:id", links.UpdateHandler(base))
	protected.Delete("/links/:id", links.DeleteHandler())

	// QR codes
	protected.Post("/brands/:brandId/qrcodes", qrcode.CreateHandler(base))
	protected.Get("/brands/:brandId/qrcodes", qrcode.ListHandler(base))
	protected.Get("/qrcodes/:id", qrcode.GetHandler(base))
	protected.Put("/qrcodes/:id", qrcode.UpdateHandler(base))
	protected.Delete("/qrcodes/:id", qrcode.DeleteHandler())
	protected.Get("/qrcodes/:id/download", qrcode.DownloadHandler(base))

	// Leads
	protected.Get("/brands/:brandId/leads", leads.ListHandler())
	protected.Get("/brands/:brandId/leads/export", leads.ExportHandler())
	protected.Post("/brands/:brandId/leads/import", leads.ImportHandler())

	// Analytics
	protected.Get("/analytics/summary", analytics.SummaryHandler())
	protected.Get("/analytics/chart", analytics.ChartHandler())

	// Subscriptions and payments
	protected.Get("/subscriptions", billing.ListSubscriptionsHandler())
	protected.Post("/subscriptions", billing.GrantSubscriptionHandler(d.Billing))
	protected.Get("/subscriptions/:id", billing.GetSubscriptionHandler())
	protected.Post("/subscriptions/:id/renew", billing.RenewHandler(d.Billing))
	protected.Post("/subscriptions/:id/cancel", billing.CancelHandler(d.Billing))
	protected.Get("/subscriptions/:id/invoices", billing.ListInvoicesHandler())
	protected.Get("/invoices/:id/pdf", billing.InvoicePDFHandler())
	protected.Post("/payments/razorpay/order", billing.RazorpayOrderHandler(d.Billing))
	protected.Post("/payments/razorpay/verify", billing.RazorpayVerifyHandler(d.Billing))
	protected.Post("/payments/stripe/intent", billing.StripeIntentHandler(d.Billing))

	// Notifications and audit
	protected.Get("/notifications", notification.ListHandler())
	protected.Post("/notifications/read-all", notification.MarkAllReadHandler())
	protected.Post("/notifications/:id/read", notification.MarkReadHandler())
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())

	// Super admin
	admin := protected.Group("/admin", auth.RequireRole(models.RoleSuperAdmin))
	admin.Post("/subscription-plans", billing.CreatePlanHandler())
	admin.Put("/subscription-plans/:id", billing.UpdatePlanHandler())
	admin.Delete("/subscription-plans/:id", billing.DeletePlanHandler())

	return app
}

func healthHandler(c *fiber.Ctx) error {
	if err := database.Ping(); err != nil {
		logging.L.WithError(err).Warn("health check failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// rateLimit limits per client IP as seen through the proxy headers.
func rateLimit(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   window,
		KeyGenerator: analytics.ClientIP,
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests, please slow down")
		},
	})
}
