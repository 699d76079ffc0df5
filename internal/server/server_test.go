package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"cardsite-backend/internal/analytics"
	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/billing"
	"cardsite-backend/internal/config"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/metrics"
	"cardsite-backend/internal/mfa"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rzpSecret = "rzp_scenario_secret"

type captureMailer struct {
	mu     sync.Mutex
	sent   []string
	bodies []string
}

func (m *captureMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	m.bodies = append(m.bodies, body)
	return nil
}

func newTestApp(t *testing.T) (*fiber.App, *captureMailer) {
	t.Helper()
	testutil.SetupDB(t)
	t.Cleanup(analytics.Flush)

	cfg := &config.Config{
		CORSOrigins:   "http://localhost:5173",
		PublicBaseURL: "https://cards.example.com",
		CookieSecure:  false,
	}
	mailer := &captureMailer{}
	app := New(Deps{
		Config: cfg,
		Tokens: auth.NewTokenService(strings.Repeat("s", 32), 15*time.Minute, time.Hour, nil),
		MFA:    mfa.NewService("Cardsite"),
		Billing: &billing.Service{
			Razorpay: billing.NewRazorpayGateway(billing.RazorpayConfig{KeyID: "rzp_key", KeySecret: rzpSecret}),
		},
		Mailer: mailer,
	})
	return app, mailer
}

type request struct {
	method, path, body, token string
	headers                   map[string]string
}

func send(t *testing.T, app *fiber.App, r request) *http.Response {
	t.Helper()
	req := httptest.NewRequest(r.method, r.path, strings.NewReader(r.body))
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func login(t *testing.T, app *fiber.App, email, password string) (*http.Response, string) {
	t.Helper()
	resp := send(t, app, request{method: "POST", path: "/api/auth/login", body: fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)})
	if resp.StatusCode != 200 {
		return resp, ""
	}
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out.Token
}

func cookieNames(resp *http.Response) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestLogin_SetsSessionCookies(t *testing.T) {
	app, _ := newTestApp(t)
	testutil.CreateUser(t, "owner@example.com", models.RoleCustomer)

	resp, token := login(t, app, "owner@example.com", testutil.Password)
	require.Equal(t, 200, resp.StatusCode)
	require.NotEmpty(t, token)

	cookies := cookieNames(resp)
	require.Contains(t, cookies, auth.AccessCookie)
	require.Contains(t, cookies, auth.RefreshCookie)
	assert.True(t, cookies[auth.AccessCookie].HttpOnly)

	me := send(t, app, request{method: "GET", path: "/api/auth/me", token: token})
	assert.Equal(t, 200, me.StatusCode)

	badLogins := promtest.ToFloat64(metrics.AuthFailures.WithLabelValues(metrics.AuthBadCredentials))
	badTokens := promtest.ToFloat64(metrics.AuthFailures.WithLabelValues(metrics.AuthInvalidToken))

	bad, _ := login(t, app, "owner@example.com", "wrong-password")
	assert.Equal(t, 401, bad.StatusCode)
	unknown, _ := login(t, app, "nobody@example.com", "wrong-password")
	assert.Equal(t, 401, unknown.StatusCode)
	assert.Equal(t, 401, send(t, app, request{method: "GET", path: "/api/auth/me"}).StatusCode)
	assert.Equal(t, 401, send(t, app, request{method: "GET", path: "/api/auth/me", token: "not-a-jwt"}).StatusCode)

	assert.Equal(t, badLogins+2, promtest.ToFloat64(metrics.AuthFailures.WithLabelValues(metrics.AuthBadCredentials)))
	assert.Equal(t, badTokens+1, promtest.ToFloat64(metrics.AuthFailures.WithLabelValues(metrics.AuthInvalidToken)))
}

func TestLogout_RevokesAccessToken(t *testing.T) {
	app, _ := newTestApp(t)
	testutil.CreateUser(t, "owner@example.com", models.RoleCustomer)

	_, token := login(t, app, "owner@example.com", testutil.Password)
	require.Equal(t, 200, send(t, app, request{method: "GET", path: "/api/auth/me", token: token}).StatusCode)
	require.Equal(t, 200, send(t, app, request{method: "POST", path: "/api/auth/logout", token: token}).StatusCode)
	assert.Equal(t, 401, send(t, app, request{method: "GET", path: "/api/auth/me", token: token}).StatusCode)
}

func TestChangePassword_RequiresMFAWhenEnabled(t *testing.T) {
	app, _ := newTestApp(t)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "Cardsite", AccountName: "mfa@example.com"})
	require.NoError(t, err)
	secret := key.Secret()
	testutil.CreateUser(t, "mfa@example.com", models.RoleCustomer, func(u *models.User) {
		u.MFASecret = &secret
		u.MFAEnabled = true
	})

	resp, token := login(t, app, "mfa@example.com", testutil.Password)
	require.Equal(t, 200, resp.StatusCode)

	mfaMissing := promtest.ToFloat64(metrics.AuthFailures.WithLabelValues(metrics.AuthMFARequired))
	body := fmt.Sprintf(`{"current_password":%q,"new_password":"An0ther-secret!"}`, testutil.Password)
	resp = send(t, app, request{method: "POST", path: "/api/auth/change-password", body: body, token: token})
	require.Equal(t, 403, resp.StatusCode)
	var denied map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&denied))
	assert.Equal(t, true, denied["requiresMFA"])
	assert.Equal(t, mfaMissing+1, promtest.ToFloat64(metrics.AuthFailures.WithLabelValues(metrics.AuthMFARequired)))

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp = send(t, app, request{method: "POST", path: "/api/auth/change-password", body: body, token: token,
		headers: map[string]string{mfa.HeaderMFAToken: code}})
	assert.Equal(t, 200, resp.StatusCode)

	resp, _ = login(t, app, "mfa@example.com", "An0ther-secret!")
	assert.Equal(t, 200, resp.StatusCode)
}

func TestForgotAndResetPassword(t *testing.T) {
	app, mailer := newTestApp(t)
	testutil.CreateUser(t, "owner@example.com", models.RoleCustomer)

	unknown := send(t, app, request{method: "POST", path: "/api/auth/forgot-password", body: `{"email":"nobody@example.com"}`})
	known := send(t, app, request{method: "POST", path: "/api/auth/forgot-password", body: `{"email":"owner@example.com"}`})
	require.Equal(t, 200, unknown.StatusCode)
	require.Equal(t, 200, known.StatusCode)
	a, _ := io.ReadAll(unknown.Body)
	b, _ := io.ReadAll(known.Body)
	assert.Equal(t, string(a), string(b), "response does not reveal whether the email exists")

	require.Len(t, mailer.bodies, 1)
	m := regexp.MustCompile(`token=([0-9a-f]{64})`).FindStringSubmatch(mailer.bodies[0])
	require.Len(t, m, 2)

	reset := fmt.Sprintf(`{"token":%q,"new_password":"Brand-new-pass1"}`, m[1])
	require.Equal(t, 200, send(t, app, request{method: "POST", path: "/api/auth/reset-password", body: reset}).StatusCode)
	assert.Equal(t, 400, send(t, app, request{method: "POST", path: "/api/auth/reset-password", body: reset}).StatusCode, "token is single use")

	resp, _ := login(t, app, "owner@example.com", "Brand-new-pass1")
	assert.Equal(t, 200, resp.StatusCode)
}

func TestShortLinkRedirects(t *testing.T) {
	app, _ := newTestApp(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleBrandManager)
	brand := testutil.CreateBrand(t, owner, "acme")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, database.DB.Create(&models.ShortLink{BrandID: brand.ID, Code: "gone", TargetURL: "https://acme.example.com", IsActive: true, ExpiresAt: &past}).Error)
	require.NoError(t, database.DB.Create(&models.ShortLink{BrandID: brand.ID, Code: "live", TargetURL: "https://acme.example.com/menu", IsActive: true}).Error)

	assert.Equal(t, 410, send(t, app, request{method: "GET", path: "/s/gone"}).StatusCode)

	resp := send(t, app, request{method: "GET", path: "/s/nope"})
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp = send(t, app, request{method: "GET", path: "/s/live"})
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "https://acme.example.com/menu", resp.Header.Get("Location"))
}

func TestPaymentVerification(t *testing.T) {
	app, _ := newTestApp(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleCustomer)
	_, token := login(t, app, "owner@example.com", testutil.Password)

	resp := send(t, app, request{method: "POST", path: "/api/brands", body: `{"name":"Acme"}`, token: token})
	require.Equal(t, 201, resp.StatusCode)
	var brand struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&brand))

	plan := testutil.CreatePlan(t, models.DurationMonthly, 5)
	require.NoError(t, database.DB.Create(&models.PaymentOrder{
		BrandID: brand.ID, PlanID: plan.ID, Gateway: models.GatewayRazorpay, ExternalOrderID: "order_S",
		Amount: plan.Price, Currency: plan.Currency, Status: models.PaymentPending, CreatedBy: owner.ID,
	}).Error)

	wrong := fmt.Sprintf(`{"razorpay_order_id":"order_S","razorpay_payment_id":"pay_S","razorpay_signature":%q}`, billing.Sign("wrong", "order_S|pay_S"))
	assert.Equal(t, 400, send(t, app, request{method: "POST", path: "/api/payments/razorpay/verify", body: wrong, token: token}).StatusCode)
	var n int64
	database.DB.Model(&models.Subscription{}).Count(&n)
	assert.Zero(t, n)

	right := fmt.Sprintf(`{"razorpay_order_id":"order_S","razorpay_payment_id":"pay_S","razorpay_signature":%q}`, billing.Sign(rzpSecret, "order_S|pay_S"))
	require.Equal(t, 200, send(t, app, request{method: "POST", path: "/api/payments/razorpay/verify", body: right, token: token}).StatusCode)

	var sub models.Subscription
	require.NoError(t, database.DB.Where("brand_id = ?", brand.ID).First(&sub).Error)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	database.DB.Model(&models.Payment{}).Count(&n)
	assert.Equal(t, int64(1), n)
	database.DB.Model(&models.Invoice{}).Count(&n)
	assert.Equal(t, int64(1), n)

	// plan limit now applies: five active branches
	for i := 0; i < 5; i++ {
		body := fmt.Sprintf(`{"name":"Branch %d"}`, i)
		require.Equal(t, 201, send(t, app, request{method: "POST", path: "/api/brands/" + strconv.Itoa(int(brand.ID)) + "/branches", body: body, token: token}).StatusCode)
	}
	assert.Equal(t, 403, send(t, app, request{method: "POST", path: "/api/brands/" + strconv.Itoa(int(brand.ID)) + "/branches", body: `{"name":"One too many"}`, token: token}).StatusCode)
}

func TestBrandManagerCrossBrand(t *testing.T) {
	app, _ := newTestApp(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleCustomer)
	x := testutil.CreateBrand(t, owner, "brand-x")
	y := testutil.CreateBrand(t, owner, "brand-y")
	testutil.CreateUser(t, "mgr@example.com", models.RoleBrandManager, func(u *models.User) { u.BrandID = &x.ID })

	_, token := login(t, app, "mgr@example.com", testutil.Password)
	assert.Equal(t, 200, send(t, app, request{method: "GET", path: "/api/brands/" + strconv.Itoa(int(x.ID)), token: token}).StatusCode)
	assert.Equal(t, 403, send(t, app, request{method: "GET", path: "/api/brands/" + strconv.Itoa(int(y.ID)), token: token}).StatusCode)
	assert.Equal(t, 403, send(t, app, request{method: "POST", path: "/api/admin/subscription-plans", body: `{}`, token: token}).StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newTestApp(t)
	assert.Equal(t, 200, send(t, app, request{method: "GET", path: "/health"}).StatusCode)

	resp := send(t, app, request{method: "GET", path: "/metrics"})
	require.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "cardsite_http_requests_total")
}

func TestLoginRateLimited(t *testing.T) {
	app, _ := newTestApp(t)
	testutil.CreateUser(t, "owner@example.com", models.RoleCustomer)

	for i := 0; i < 10; i++ {
		resp, _ := login(t, app, "owner@example.com", "wrong-password")
		require.Equal(t, 401, resp.StatusCode)
	}
	resp, _ := login(t, app, "owner@example.com", testutil.Password)
	assert.Equal(t, 429, resp.StatusCode)
}
