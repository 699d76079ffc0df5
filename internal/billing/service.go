package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cardsite-backend/internal/audit"
	"cardsite-backend/internal/config"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/events"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/metrics"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/notification"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrInvalidSignature      = errors.New("invalid payment signature")
	ErrGatewayNotConfigured  = errors.New("payment gateway not configured")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrGatewayFailed         = errors.New("payment gateway request failed")
	ErrPlanInactive          = errors.New("plan is not available")
	ErrOrderNotFound         = errors.New("payment order not found")
	ErrOrderAlreadyPaid      = errors.New("payment order already paid")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrSubscriptionCancelled = errors.New("subscription is cancelled")
)

// pendingOrderReuse is how long an unpaid checkout is handed back instead of
// opening a second one for the same brand, plan and gateway.
const pendingOrderReuse = 30 * time.Minute

var nowFunc = func() time.Time { return time.Now().UTC() }

// Service runs checkout, activation, renewal and cancellation. A nil gateway
// means that gateway is not configured.
type Service struct {
	Razorpay *RazorpayGateway
	Stripe   *StripeGateway
}

// NewService wires the gateways that have credentials configured.
func NewService(cfg *config.Config) *Service {
	svc := &Service{}
	if cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "" {
		svc.Razorpay = NewRazorpayGateway(RazorpayConfig{
			KeyID:         cfg.RazorpayKeyID,
			KeySecret:     cfg.RazorpayKeySecret,
			WebhookSecret: cfg.RazorpayWebhookSecret,
		})
	}
	if cfg.StripeSecretKey != "" {
		svc.Stripe = NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil)
	}
	return svc
}

// Activation is the outcome of a verified payment.
type Activation struct {
	Subscription models.Subscription
	Payment      models.Payment
	Invoice      models.Invoice
	Duplicate    bool
	Renewed      bool
}

// CreateOrder opens a checkout for plan on brand through gw.
func (s *Service) CreateOrder(ctx context.Context, userID, brandID, planID uint, gw models.Gateway) (*models.PaymentOrder, error) {
	if (gw == models.GatewayRazorpay && s.Razorpay == nil) || (gw == models.GatewayStripe && s.Stripe == nil) {
		return nil, ErrGatewayNotConfigured
	}

	var plan models.SubscriptionPlan
	if err := database.DB.First(&plan, planID).Error; err != nil || !plan.IsActive {
		return nil, ErrPlanInactive
	}

	var pending models.PaymentOrder
	err := database.DB.
		Where("brand_id = ? AND plan_id = ? AND gateway = ? AND status = ? AND created_at > ?",
			brandID, planID, gw, models.PaymentPending, time.Now().Add(-pendingOrderReuse)).
		Order("id DESC").First(&pending).Error
	if err == nil {
		return &pending, nil
	}

	order := models.PaymentOrder{
		BrandID:   brandID,
		PlanID:    plan.ID,
		Gateway:   gw,
		Amount:    plan.Price,
		Currency:  plan.Currency,
		Status:    models.PaymentPending,
		CreatedBy: userID,
	}
	notes := map[string]string{
		"brand_id": strconv.FormatUint(uint64(brandID), 10),
		"plan_id":  strconv.FormatUint(uint64(plan.ID), 10),
	}

	switch gw {
	case models.GatewayRazorpay:
		receipt := fmt.Sprintf("brand-%d-%d", brandID, nowFunc().Unix())
		id, err := s.Razorpay.CreateOrder(ctx, plan.Price, plan.Currency, receipt, notes)
		if err != nil {
			metrics.Payments.WithLabelValues(string(gw), "order_failed").Inc()
			return nil, err
		}
		order.ExternalOrderID = id
	case models.GatewayStripe:
		id, secret, err := s.Stripe.CreateIntent(ctx, plan.Price, plan.Currency, notes)
		if err != nil {
			metrics.Payments.WithLabelValues(string(gw), "order_failed").Inc()
			return nil, err
		}
		order.ExternalOrderID = id
		order.ClientSecret = secret
	default:
		return nil, ErrGatewayNotConfigured
	}

	if err := database.DB.Create(&order).Error; err != nil {
		return nil, fmt.Errorf("store payment order: %w", err)
	}
	metrics.Payments.WithLabelValues(string(gw), "order_created").Inc()
	return &order, nil
}

// VerifyRazorpay checks the checkout signature and activates on success.
// A bad signature writes nothing.
func (s *Service) VerifyRazorpay(orderID, paymentID, signature string) (*Activation, error) {
	if s.Razorpay == nil {
		return nil, ErrGatewayNotConfigured
	}
	if !s.Razorpay.VerifyPayment(orderID, paymentID, signature) {
		metrics.Payments.WithLabelValues(string(models.GatewayRazorpay), "invalid_signature").Inc()
		logging.L.WithField("order_id", orderID).Warn("payment signature mismatch")
		return nil, ErrInvalidSignature
	}
	return s.Activate(models.GatewayRazorpay, orderID, paymentID)
}

// Activate records a completed payment for the order. The subscription,
// payment, invoice, order status, brand link, audit entry and owner
// notification are written in one transaction. A payment id that was already
// recorded returns the stored result with Duplicate set and writes nothing.
func (s *Service) Activate(gw models.Gateway, externalOrderID, externalPaymentID string) (*Activation, error) {
	out := &Activation{}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.Payment
		err := tx.Where("external_payment_id = ?", externalPaymentID).First(&existing).Error
		if err == nil {
			out.Duplicate = true
			out.Payment = existing
			if err := tx.Where("payment_id = ?", existing.ID).First(&out.Invoice).Error; err != nil {
				return fmt.Errorf("load invoice for payment %d: %w", existing.ID, err)
			}
			return tx.Preload("Plan").First(&out.Subscription, existing.SubscriptionID).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var order models.PaymentOrder
		if err := tx.Where("external_order_id = ? AND gateway = ?", externalOrderID, gw).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.Status == models.PaymentCompleted {
			return ErrOrderAlreadyPaid
		}

		var plan models.SubscriptionPlan
		if err := tx.First(&plan, order.PlanID).Error; err != nil {
			return fmt.Errorf("load plan: %w", err)
		}
		var brand models.Brand
		if err := tx.First(&brand, order.BrandID).Error; err != nil {
			return fmt.Errorf("load brand: %w", err)
		}

		now := nowFunc()
		sub, renewed, err := applyPlan(tx, brand.ID, plan, gw, now)
		if err != nil {
			return err
		}

		payment := models.Payment{
			SubscriptionID:    sub.ID,
			Amount:            order.Amount,
			Currency:          order.Currency,
			Status:            models.PaymentCompleted,
			Gateway:           gw,
			ExternalOrderID:   order.ExternalOrderID,
			ExternalPaymentID: externalPaymentID,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		invoice := models.Invoice{
			PaymentID:      payment.ID,
			SubscriptionID: sub.ID,
			Number:         NewInvoiceNumber(now),
			Amount:         payment.Amount,
			Currency:       payment.Currency,
			Status:         models.InvoicePaid,
			DueAt:          now,
			PaidAt:         &now,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		if err := tx.Model(&order).Update("status", models.PaymentCompleted).Error; err != nil {
			return fmt.Errorf("complete order: %w", err)
		}
		if err := tx.Model(&brand).Update("subscription_id", sub.ID).Error; err != nil {
			return fmt.Errorf("link subscription: %w", err)
		}

		if err := audit.WriteLogTx(tx, audit.LogOptions{
			BrandID:     &brand.ID,
			UserID:      order.CreatedBy,
			EntityType:  "subscription",
			EntityID:    sub.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Payment %s activated plan %s until %s", externalPaymentID, plan.Name, sub.EndDate.Format("2006-01-02")),
			After:       sub,
		}); err != nil {
			return err
		}
		if err := notification.NotifyTx(tx, brand.OwnerID, notification.TypePayment,
			"Payment received",
			fmt.Sprintf("%s is active until %s. Invoice %s.", plan.Name, sub.EndDate.Format("2006-01-02"), invoice.Number),
		); err != nil {
			return err
		}

		sub.Plan = plan
		out.Subscription = *sub
		out.Payment = payment
		out.Invoice = invoice
		out.Renewed = renewed
		return nil
	})
	if err != nil {
		metrics.Payments.WithLabelValues(string(gw), "activation_failed").Inc()
		return nil, err
	}

	if out.Duplicate {
		metrics.Payments.WithLabelValues(string(gw), "duplicate").Inc()
		logging.L.WithField("payment_id", externalPaymentID).Info("duplicate payment callback ignored")
		return out, nil
	}

	metrics.Payments.WithLabelValues(string(gw), "completed").Inc()
	events.Emit(events.SubjectPaymentCompleted, paymentEvent(out))
	if out.Renewed {
		events.Emit(events.SubjectSubscriptionRenewed, subscriptionEvent(&out.Subscription))
	}
	logging.L.WithFields(logrus.Fields{
		"brand_id":        out.Subscription.BrandID,
		"subscription_id": out.Subscription.ID,
		"gateway":         gw,
	}).Info("subscription activated")
	return out, nil
}

// applyPlan writes the brand's single subscription row. Paying again for the
// plan that is already active extends it from its current end.
func applyPlan(tx *gorm.DB, brandID uint, plan models.SubscriptionPlan, gw models.Gateway, now time.Time) (*models.Subscription, bool, error) {
	var sub models.Subscription
	err := tx.Where("brand_id = ?", brandID).First(&sub).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	exists := err == nil

	renewed := exists && sub.Status == models.SubscriptionActive && sub.PlanID == plan.ID
	start := now
	if renewed {
		start = RenewalStart(now, sub.EndDate)
	}

	sub.BrandID = brandID
	sub.PlanID = plan.ID
	sub.Status = models.SubscriptionActive
	sub.StartDate = start
	sub.EndDate = EndDate(start, plan.Duration)
	sub.AutoRenew = gw != models.GatewayManual
	sub.Gateway = gw
	if !renewed || sub.LicenseKey == "" {
		sub.LicenseKey = NewLicenseKey()
	}

	if exists {
		err = tx.Omit("Plan").Save(&sub).Error
	} else {
		err = tx.Omit("Plan").Create(&sub).Error
	}
	if err != nil {
		return nil, false, fmt.Errorf("write subscription: %w", err)
	}
	return &sub, renewed, nil
}

// Grant activates plan on brand without a payment.
func (s *Service) Grant(userID, brandID, planID uint) (*models.Subscription, error) {
	var sub *models.Subscription
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var plan models.SubscriptionPlan
		if err := tx.First(&plan, planID).Error; err != nil {
			return ErrPlanInactive
		}
		var err error
		sub, _, err = applyPlan(tx, brandID, plan, models.GatewayManual, nowFunc())
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Brand{}).Where("id = ?", brandID).Update("subscription_id", sub.ID).Error; err != nil {
			return err
		}
		sub.Plan = plan
		return audit.WriteLogTx(tx, audit.LogOptions{
			BrandID:     &brandID,
			UserID:      userID,
			EntityType:  "subscription",
			EntityID:    sub.ID,
			Action:      models.AuditActionCreate,
			Description: "Subscription granted: " + plan.Name,
			After:       sub,
		})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Renew moves the subscription forward by one plan period starting at the
// later of now and its current end, and forces it ACTIVE.
func (s *Service) Renew(userID, subscriptionID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Plan").First(&sub, subscriptionID).Error; err != nil {
			return ErrSubscriptionNotFound
		}
		before := sub

		start := RenewalStart(nowFunc(), sub.EndDate)
		sub.StartDate = start
		sub.EndDate = EndDate(start, sub.Plan.Duration)
		sub.Status = models.SubscriptionActive
		if err := tx.Model(&sub).Updates(map[string]any{
			"start_date": sub.StartDate,
			"end_date":   sub.EndDate,
			"status":     sub.Status,
		}).Error; err != nil {
			return fmt.Errorf("renew subscription: %w", err)
		}

		return audit.WriteLogTx(tx, audit.LogOptions{
			BrandID:     &sub.BrandID,
			UserID:      userID,
			EntityType:  "subscription",
			EntityID:    sub.ID,
			Action:      models.AuditActionUpdate,
			Description: "Subscription renewed until " + sub.EndDate.Format("2006-01-02"),
			Before:      before,
			After:       sub,
		})
	})
	if err != nil {
		return nil, err
	}

	events.Emit(events.SubjectSubscriptionRenewed, subscriptionEvent(&sub))
	notification.NotifyBrandOwner(sub.BrandID, notification.TypeSubscription,
		"Subscription renewed", "Your subscription is active until "+sub.EndDate.Format("2006-01-02")+".")
	return &sub, nil
}

// Cancel stops auto-renewal and marks the subscription CANCELLED.
func (s *Service) Cancel(userID, subscriptionID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Plan").First(&sub, subscriptionID).Error; err != nil {
			return ErrSubscriptionNotFound
		}
		if sub.Status == models.SubscriptionCancelled {
			return ErrSubscriptionCancelled
		}
		sub.Status = models.SubscriptionCancelled
		sub.AutoRenew = false
		if err := tx.Model(&sub).Updates(map[string]any{
			"status":     sub.Status,
			"auto_renew": false,
		}).Error; err != nil {
			return fmt.Errorf("cancel subscription: %w", err)
		}
		return audit.WriteLogTx(tx, audit.LogOptions{
			BrandID:     &sub.BrandID,
			UserID:      userID,
			EntityType:  "subscription",
			EntityID:    sub.ID,
			Action:      models.AuditActionUpdate,
			Description: "Subscription cancelled",
		})
	})
	if err != nil {
		return nil, err
	}

	events.Emit(events.SubjectSubscriptionCancelled, subscriptionEvent(&sub))
	notification.NotifyBrandOwner(sub.BrandID, notification.TypeSubscription,
		"Subscription cancelled", "Your subscription was cancelled and will not renew.")
	return &sub, nil
}

// ExpireDue marks ACTIVE subscriptions whose end has passed as EXPIRED.
func (s *Service) ExpireDue(now time.Time) (int, error) {
	var due []models.Subscription
	if err := database.DB.
		Where("status = ? AND end_date < ?", models.SubscriptionActive, now.UTC()).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("find due subscriptions: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	ids := make([]uint, len(due))
	for i, sub := range due {
		ids[i] = sub.ID
	}
	if err := database.DB.Model(&models.Subscription{}).
		Where("id IN ? AND status = ?", ids, models.SubscriptionActive).
		Update("status", models.SubscriptionExpired).Error; err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}

	for i := range due {
		due[i].Status = models.SubscriptionExpired
		events.Emit(events.SubjectSubscriptionExpired, subscriptionEvent(&due[i]))
		notification.NotifyBrandOwner(due[i].BrandID, notification.TypeSubscription,
			"Subscription expired", "Your subscription has expired. Renew it to keep additional branches online.")
	}
	return len(due), nil
}

// MarkOrderFailed records a declined payment reported by a gateway webhook.
func (s *Service) MarkOrderFailed(gw models.Gateway, externalOrderID string) {
	res := database.DB.Model(&models.PaymentOrder{}).
		Where("external_order_id = ? AND gateway = ? AND status = ?", externalOrderID, gw, models.PaymentPending).
		Update("status", models.PaymentFailed)
	if res.Error != nil {
		logging.L.WithError(res.Error).WithField("order_id", externalOrderID).Error("could not mark order failed")
		return
	}
	metrics.Payments.WithLabelValues(string(gw), "failed").Inc()
}

func subscriptionEvent(sub *models.Subscription) map[string]any {
	return map[string]any{
		"subscription_id": sub.ID,
		"brand_id":        sub.BrandID,
		"plan_id":         sub.PlanID,
		"status":          sub.Status,
		"end_date":        sub.EndDate,
	}
}

func paymentEvent(a *Activation) map[string]any {
	return map[string]any{
		"subscription_id":     a.Subscription.ID,
		"brand_id":            a.Subscription.BrandID,
		"payment_id":          a.Payment.ID,
		"external_payment_id": a.Payment.ExternalPaymentID,
		"gateway":             a.Payment.Gateway,
		"amount":              a.Payment.Amount,
		"currency":            a.Payment.Currency,
		"invoice_number":      a.Invoice.Number,
	}
}
