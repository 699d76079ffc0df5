package mfa

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"
)

const (
	period          = 30
	skew            = 2 // steps either side, i.e. +-60s
	backupCodeCount = 10
	backupCodeCost  = 10
)

// sensitiveOperations need a verified MFA token on top of the session.
var sensitiveOperations = map[string]struct{}{
	"change_password":       {},
	"update_email":          {},
	"delete_account":        {},
	"update_payment_method": {},
	"disable_mfa":           {},
	"export_data":           {},
}

func IsSensitiveOperation(op string) bool {
	_, ok := sensitiveOperations[op]
	return ok
}

// Service handles TOTP secrets and backup codes.
type Service struct {
	issuer string
	now    func() time.Time
}

func NewService(issuer string) *Service {
	if issuer == "" {
		issuer = "Cardsite"
	}
	return &Service{issuer: issuer, now: time.Now}
}

// Setup is the material handed to the user when enrolment starts.
type Setup struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauthUrl"`
	QRCodeImage string   `json:"qrCode"` // PNG data URL
	BackupCodes []string `json:"backupCodes"`
}

// GenerateSecret returns a fresh secret on every call. Nothing is stored.
func (s *Service) GenerateSecret(label string) (*Setup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: label,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("render provisioning qr: %w", err)
	}

	codes, err := GenerateBackupCodes()
	if err != nil {
		return nil, err
	}

	return &Setup{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		QRCodeImage: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		BackupCodes: codes,
	}, nil
}

// VerifyTOTP accepts codes from the current step and two steps either side.
func (s *Service) VerifyTOTP(code, secret string) bool {
	code = strings.NewReplacer(" ", "", "-", "").Replace(code)
	if len(code) != 6 || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GenerateBackupCodes returns ten XXXX-XXXX hex codes.
func GenerateBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range codes {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		h := hex.EncodeToString(b)
		codes[i] = h[:4] + "-" + h[4:]
	}
	return codes, nil
}

func HashBackupCodes(codes []string) ([]string, error) {
	hashed := make([]string, len(codes))
	for i, code := range codes {
		h, err := bcrypt.GenerateFromPassword([]byte(normalizeBackupCode(code)), backupCodeCost)
		if err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
		hashed[i] = string(h)
	}
	return hashed, nil
}

// VerifyBackupCode reports whether code matches one of hashed. On a match the
// matched hash is left out of remaining; otherwise remaining equals hashed.
func VerifyBackupCode(code string, hashed []string) (bool, []string) {
	normalized := normalizeBackupCode(code)
	if normalized == "" {
		return false, hashed
	}
	for i, h := range hashed {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(normalized)) == nil {
			remaining := make([]string, 0, len(hashed)-1)
			remaining = append(remaining, hashed[:i]...)
			remaining = append(remaining, hashed[i+1:]...)
			return true, remaining
		}
	}
	return false, hashed
}

func normalizeBackupCode(code string) string {
	return strings.ToLower(strings.NewReplacer("-", "", " ", "").Replace(code))
}
