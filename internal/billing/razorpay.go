package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cardsite-backend/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const razorpayAPI = "https://api.razorpay.com"

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string // tests point this at httptest
}

// RazorpayGateway talks to the Orders API and checks checkout and webhook
// signatures. Outbound calls go through a circuit breaker and are not retried.
type RazorpayGateway struct {
	cfg    RazorpayConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

func NewRazorpayGateway(cfg RazorpayConfig) *RazorpayGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = razorpayAPI
	}
	return &RazorpayGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "razorpay",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.L.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("circuit breaker state changed")
			},
		}),
	}
}

func (g *RazorpayGateway) KeyID() string { return g.cfg.KeyID }

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// CreateOrder registers an order and returns its Razorpay id.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (string, error) {
	payload, err := json.Marshal(razorpayOrderRequest{Amount: amount, Currency: currency, Receipt: receipt, Notes: notes})
	if err != nil {
		return "", err
	}

	out, err := g.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/orders", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("razorpay orders: status %d: %s", resp.StatusCode, body)
		}
		var order razorpayOrder
		if err := json.Unmarshal(body, &order); err != nil {
			return nil, fmt.Errorf("razorpay orders: decode: %w", err)
		}
		if order.ID == "" {
			return nil, errors.New("razorpay orders: empty order id")
		}
		return order.ID, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrGatewayUnavailable
		}
		return "", fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	return out.(string), nil
}

// VerifyPayment checks the checkout signature over "orderID|paymentID".
func (g *RazorpayGateway) VerifyPayment(orderID, paymentID, signature string) bool {
	return ValidSignature(g.cfg.KeySecret, PaymentSignatureMessage(orderID, paymentID), signature)
}

// VerifyWebhook checks X-Razorpay-Signature against the raw request body.
func (g *RazorpayGateway) VerifyWebhook(body []byte, signature string) bool {
	return ValidSignature(g.cfg.WebhookSecret, string(body), signature)
}

// RazorpayWebhook is the part of a webhook delivery we act on.
type RazorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}
