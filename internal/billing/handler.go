package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type SubscriptionResponse struct {
	ID         uint                      `json:"id"`
	BrandID    uint                      `json:"brand_id"`
	Plan       models.SubscriptionPlan   `json:"plan"`
	Status     models.SubscriptionStatus `json:"status"`
	StartDate  string                    `json:"start_date"`
	EndDate    string                    `json:"end_date"`
	AutoRenew  bool                      `json:"auto_renew"`
	LicenseKey string                    `json:"license_key"`
	Gateway    models.Gateway            `json:"gateway"`
}

func toSubscriptionResponse(s *models.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:         s.ID,
		BrandID:    s.BrandID,
		Plan:       s.Plan,
		Status:     s.Status,
		StartDate:  s.StartDate.Format("2006-01-02 15:04:05"),
		EndDate:    s.EndDate.Format("2006-01-02 15:04:05"),
		AutoRenew:  s.AutoRenew,
		LicenseKey: s.LicenseKey,
		Gateway:    s.Gateway,
	}
}

type InvoiceResponse struct {
	ID             uint                 `json:"id"`
	Number         string               `json:"number"`
	SubscriptionID uint                 `json:"subscription_id"`
	Amount         int64                `json:"amount"`
	Currency       string               `json:"currency"`
	Display        string               `json:"display"`
	Status         models.InvoiceStatus `json:"status"`
	PaidAt         string               `json:"paid_at"`
	CreatedAt      string               `json:"created_at"`
}

func toInvoiceResponse(inv *models.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:             inv.ID,
		Number:         inv.Number,
		SubscriptionID: inv.SubscriptionID,
		Amount:         inv.Amount,
		Currency:       inv.Currency,
		Display:        FormatAmount(inv.Amount, inv.Currency),
		Status:         inv.Status,
		CreatedAt:      inv.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if inv.PaidAt != nil {
		resp.PaidAt = inv.PaidAt.Format("2006-01-02 15:04:05")
	}
	return resp
}

type CheckoutRequest struct {
	BrandID uint `json:"brand_id" validate:"required"`
	PlanID  uint `json:"plan_id" validate:"required"`
}

type RazorpayVerifyRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required,max=255"`
	PaymentID string `json:"razorpay_payment_id" validate:"required,max=255"`
	Signature string `json:"razorpay_signature" validate:"required,hexadecimal"`
}

type GrantRequest struct {
	BrandID uint `json:"brand_id" validate:"required"`
	PlanID  uint `json:"plan_id" validate:"required"`
}

// httpError maps service errors onto the error taxonomy. Gateway details
// stay in the log.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return fiber.NewError(fiber.StatusBadRequest, "Payment verification failed")
	case errors.Is(err, ErrPlanInactive):
		return fiber.NewError(fiber.StatusBadRequest, "This plan is not available")
	case errors.Is(err, ErrOrderNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Payment order not found")
	case errors.Is(err, ErrSubscriptionNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Subscription not found")
	case errors.Is(err, ErrOrderAlreadyPaid), errors.Is(err, ErrSubscriptionCancelled):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrGatewayNotConfigured), errors.Is(err, ErrGatewayUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Payment gateway is unavailable, please try again later")
	case errors.Is(err, ErrGatewayFailed):
		logging.L.WithError(err).Error("payment gateway call failed")
		return fiber.NewError(fiber.StatusBadGateway, "Payment gateway request failed")
	}
	return err
}

// loadSubscription resolves :id and checks the caller against its brand.
func loadSubscription(c *fiber.Ctx, manage bool) (*models.Subscription, access.Identity, error) {
	var sub models.Subscription
	if err := database.DB.Preload("Plan").First(&sub, c.Params("id")).Error; err != nil {
		return nil, access.Identity{}, fiber.NewError(fiber.StatusNotFound, "Subscription not found")
	}
	res, _, err := access.BrandResource(sub.BrandID)
	if err != nil {
		return nil, access.Identity{}, err
	}
	check := access.Check
	if manage {
		check = access.CheckManage
	}
	id, err := check(c, res)
	if err != nil {
		return nil, id, err
	}
	return &sub, id, nil
}

// GET /api/subscriptions?brand_id=
func ListSubscriptionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := access.FromCtx(c)
		if err != nil {
			return err
		}
		ids, all, err := access.VisibleBrandIDs(id)
		if err != nil {
			return err
		}

		q := database.DB.Preload("Plan").Order("id DESC")
		if !all {
			if len(ids) == 0 {
				return c.JSON([]SubscriptionResponse{})
			}
			q = q.Where("brand_id IN ?", ids)
		}
		if b := c.QueryInt("brand_id"); b > 0 {
			q = q.Where("brand_id = ?", b)
		}

		var subs []models.Subscription
		if err := q.Find(&subs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list subscriptions")
		}
		out := make([]SubscriptionResponse, 0, len(subs))
		for i := range subs {
			out = append(out, toSubscriptionResponse(&subs[i]))
		}
		return c.JSON(out)
	}
}

// GET /api/subscriptions/:id
func GetSubscriptionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sub, _, err := loadSubscription(c, false)
		if err != nil {
			return err
		}
		return c.JSON(toSubscriptionResponse(sub))
	}
}

// POST /api/subscriptions grants a plan without payment (super admins only).
func GrantSubscriptionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := requireSuperAdmin(c)
		if err != nil {
			return err
		}
		var body GrantRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}
		if _, _, err := access.BrandResource(body.BrandID); err != nil {
			return err
		}
		sub, err := svc.Grant(id.UserID, body.BrandID, body.PlanID)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(toSubscriptionResponse(sub))
	}
}

// POST /api/subscriptions/:id/renew
//
// Extends without charging, so only super and tenant admins may call it.
// Brand managers renew by paying for the same plan again.
func RenewHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sub, id, err := loadSubscription(c, true)
		if err != nil {
			return err
		}
		if id.Role != models.RoleSuperAdmin && id.Role != models.RoleTenantAdmin {
			return fiber.NewError(fiber.StatusForbidden, "Renew by completing a payment for this plan")
		}
		renewed, err := svc.Renew(id.UserID, sub.ID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(toSubscriptionResponse(renewed))
	}
}

// POST /api/subscriptions/:id/cancel
func CancelHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sub, id, err := loadSubscription(c, true)
		if err != nil {
			return err
		}
		cancelled, err := svc.Cancel(id.UserID, sub.ID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(toSubscriptionResponse(cancelled))
	}
}

// GET /api/subscriptions/:id/invoices
func ListInvoicesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sub, _, err := loadSubscription(c, false)
		if err != nil {
			return err
		}
		var invoices []models.Invoice
		if err := database.DB.Where("subscription_id = ?", sub.ID).Order("id DESC").Find(&invoices).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list invoices")
		}
		out := make([]InvoiceResponse, 0, len(invoices))
		for i := range invoices {
			out = append(out, toInvoiceResponse(&invoices[i]))
		}
		return c.JSON(out)
	}
}

// GET /api/invoices/:id/pdf
func InvoicePDFHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var inv models.Invoice
		if err := database.DB.First(&inv, c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Invoice not found")
		}
		var sub models.Subscription
		if err := database.DB.Preload("Plan").First(&sub, inv.SubscriptionID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Invoice not found")
		}
		res, brand, err := access.BrandResource(sub.BrandID)
		if err != nil {
			return err
		}
		if _, err := access.Check(c, res); err != nil {
			return err
		}

		data, err := RenderInvoicePDF(inv, sub, *brand)
		if err != nil {
			return err
		}
		c.Attachment(inv.Number + ".pdf")
		c.Set(fiber.HeaderContentType, "application/pdf")
		return c.Send(data)
	}
}

func checkoutBrand(c *fiber.Ctx) (CheckoutRequest, access.Identity, error) {
	var body CheckoutRequest
	if err := validation.Parse(c, &body); err != nil {
		return body, access.Identity{}, err
	}
	res, _, err := access.BrandResource(body.BrandID)
	if err != nil {
		return body, access.Identity{}, err
	}
	id, err := access.CheckManage(c, res)
	return body, id, err
}

// POST /api/payments/razorpay/order
func RazorpayOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, id, err := checkoutBrand(c)
		if err != nil {
			return err
		}
		order, err := svc.CreateOrder(c.UserContext(), id.UserID, body.BrandID, body.PlanID, models.GatewayRazorpay)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"order_id": order.ExternalOrderID,
			"amount":   order.Amount,
			"currency": order.Currency,
			"key_id":   svc.Razorpay.KeyID(),
		})
	}
}

// POST /api/payments/razorpay/verify
func RazorpayVerifyHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RazorpayVerifyRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		var order models.PaymentOrder
		if err := database.DB.Where("external_order_id = ? AND gateway = ?", body.OrderID, models.GatewayRazorpay).First(&order).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Payment order not found")
		}
		res, _, err := access.BrandResource(order.BrandID)
		if err != nil {
			return err
		}
		if _, err := access.CheckManage(c, res); err != nil {
			return err
		}

		act, err := svc.VerifyRazorpay(body.OrderID, body.PaymentID, body.Signature)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{
			"success":        true,
			"duplicate":      act.Duplicate,
			"subscription":   toSubscriptionResponse(&act.Subscription),
			"invoice_number": act.Invoice.Number,
		})
	}
}

// POST /api/payments/stripe/intent
func StripeIntentHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, id, err := checkoutBrand(c)
		if err != nil {
			return err
		}
		order, err := svc.CreateOrder(c.UserContext(), id.UserID, body.BrandID, body.PlanID, models.GatewayStripe)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"payment_intent_id": order.ExternalOrderID,
			"client_secret":     order.ClientSecret,
			"amount":            order.Amount,
			"currency":          order.Currency,
		})
	}
}

// POST /api/payments/razorpay/webhook
//
// Answers 200 for events it does not act on so Razorpay stops retrying.
func RazorpayWebhookHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if svc.Razorpay == nil {
			return httpError(ErrGatewayNotConfigured)
		}
		body := c.Body()
		if !svc.Razorpay.VerifyWebhook(body, c.Get("X-Razorpay-Signature")) {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid webhook signature")
		}

		var hook RazorpayWebhook
		if err := json.Unmarshal(body, &hook); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid webhook payload")
		}
		p := hook.Payload.Payment.Entity

		switch hook.Event {
		case "payment.captured", "order.paid":
			if _, err := svc.Activate(models.GatewayRazorpay, p.OrderID, p.ID); err != nil {
				if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderAlreadyPaid) {
					logging.L.WithError(err).WithField("order_id", p.OrderID).Warn("razorpay webhook ignored")
					break
				}
				return fmt.Errorf("razorpay webhook: %w", err)
			}
		case "payment.failed":
			svc.MarkOrderFailed(models.GatewayRazorpay, p.OrderID)
		}
		return c.JSON(fiber.Map{"received": true})
	}
}

// POST /api/payments/stripe/webhook
func StripeWebhookHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if svc.Stripe == nil {
			return httpError(ErrGatewayNotConfigured)
		}
		hook, err := svc.Stripe.ParseWebhook(c.Body(), c.Get("Stripe-Signature"))
		if err != nil {
			if errors.Is(err, ErrInvalidSignature) {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid webhook signature")
			}
			return fiber.NewError(fiber.StatusBadRequest, "Invalid webhook payload")
		}

		switch hook.Type {
		case stripeEventSucceeded:
			if _, err := svc.Activate(models.GatewayStripe, hook.PaymentIntentID, hook.PaymentIntentID); err != nil {
				if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderAlreadyPaid) {
					logging.L.WithError(err).WithField("payment_intent", hook.PaymentIntentID).Warn("stripe webhook ignored")
					break
				}
				return fmt.Errorf("stripe webhook: %w", err)
			}
		case stripeEventFailed:
			svc.MarkOrderFailed(models.GatewayStripe, hook.PaymentIntentID)
		}
		return c.JSON(fiber.Map{"received": true})
	}
}
