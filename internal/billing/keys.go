package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"cardsite-backend/internal/models"

	"github.com/google/uuid"
)

// Sign returns the lowercase hex HMAC-SHA256 of msg.
func Sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature compares in constant time. An empty secret never validates.
func ValidSignature(secret, msg, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, msg)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// PaymentSignatureMessage is what checkout signs: "orderID|paymentID".
func PaymentSignatureMessage(orderID, paymentID string) string {
	return orderID + "|" + paymentID
}

// NewLicenseKey returns LIC-XXXX-XXXX-XXXX-XXXX.
func NewLicenseKey() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "LIC-" + raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12] + "-" + raw[12:16]
}

// NewInvoiceNumber returns INV-YYYYMM-<8 hex>.
func NewInvoiceNumber(at time.Time) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "INV-" + at.Format("200601") + "-" + raw[:8]
}

// EndDate adds one calendar month or year. Month overflow follows
// time.AddDate, so Jan 31 + 1 month is Mar 3 (or Mar 2 in leap years).
func EndDate(start time.Time, d models.PlanDuration) time.Time {
	if d == models.DurationYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// RenewalStart keeps unused time: the later of now and the current end.
func RenewalStart(now, currentEnd time.Time) time.Time {
	if currentEnd.After(now) {
		return currentEnd
	}
	return now
}
