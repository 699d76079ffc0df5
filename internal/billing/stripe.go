package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	stripeEventSucceeded = "payment_intent.succeeded"
	stripeEventFailed    = "payment_intent.payment_failed"
)

type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway uses the default stripe backends when backends is nil.
func NewStripeGateway(secretKey, webhookSecret string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}
}

// CreateIntent returns the PaymentIntent id and its client secret.
func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	return pi.ID, pi.ClientSecret, nil
}

// StripeWebhook is a verified webhook reduced to what activation needs.
type StripeWebhook struct {
	Type            string
	PaymentIntentID string
}

// ParseWebhook verifies the Stripe-Signature header and decodes the
// PaymentIntent carried by payment_intent.* events.
func (g *StripeGateway) ParseWebhook(payload []byte, header string) (StripeWebhook, error) {
	if g.webhookSecret == "" {
		return StripeWebhook{}, ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return StripeWebhook{}, ErrInvalidSignature
	}

	out := StripeWebhook{Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "payment_intent.") || event.Data == nil {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return out, fmt.Errorf("decode payment intent: %w", err)
	}
	out.PaymentIntentID = pi.ID
	return out, nil
}
