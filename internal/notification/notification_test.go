package notification

import (
	"encoding/json"
	"net/http/httptest"
	"net/smtp"
	"strconv"
	"testing"

	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/config"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func app(userID uint) *fiber.App {
	a := fiber.New()
	a.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, userID)
		return c.Next()
	})
	a.Get("/n", ListHandler())
	a.Post("/n/read-all", MarkAllReadHandler())
	a.Post("/n/:id/read", MarkReadHandler())
	return a
}

func TestNotifications_ReadFlow(t *testing.T) {
	testutil.SetupDB(t)
	u := testutil.CreateUser(t, "u@example.com", models.RoleCustomer)
	other := testutil.CreateUser(t, "o@example.com", models.RoleCustomer)

	require.NoError(t, Notify(u.ID, TypePayment, "Paid", "Thanks"))
	require.NoError(t, Notify(u.ID, TypeLead, "New lead", "Someone wrote"))
	require.NoError(t, Notify(other.ID, TypeLead, "Not yours", ""))

	var first models.Notification
	require.NoError(t, database.DB.Where("user_id = ?", u.ID).Order("id").First(&first).Error)

	resp, err := app(other.ID).Test(httptest.NewRequest("POST", "/n/"+itoa(first.ID)+"/read", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode, "cannot read someone else's notification")

	resp, err = app(u.ID).Test(httptest.NewRequest("POST", "/n/"+itoa(first.ID)+"/read", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Notifications []models.Notification `json:"notifications"`
		Unread        int64                 `json:"unread"`
	}
	resp, err = app(u.ID).Test(httptest.NewRequest("GET", "/n", nil))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Notifications, 2)
	assert.EqualValues(t, 1, body.Unread)

	resp, err = app(u.ID).Test(httptest.NewRequest("POST", "/n/read-all", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app(u.ID).Test(httptest.NewRequest("GET", "/n?unread=true", nil))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Notifications)
	assert.EqualValues(t, 0, body.Unread)
}

func TestNotifyBrandOwner(t *testing.T) {
	testutil.SetupDB(t)
	owner := testutil.CreateUser(t, "owner@example.com", models.RoleBrandManager)
	brand := testutil.CreateBrand(t, owner, "acme")

	NotifyBrandOwner(brand.ID, TypeSubscription, "Renewed", "")
	NotifyBrandOwner(9999, TypeSubscription, "Lost", "")

	var n int64
	database.DB.Model(&models.Notification{}).Where("user_id = ?", owner.ID).Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestSMTPMailer_ComposesMessage(t *testing.T) {
	var gotAddr string
	var gotMsg []byte
	m := NewMailer(&config.Config{SMTPHost: "smtp.example.com", SMTPPort: "587", SMTPUser: "bot@example.com", SMTPPassword: "x"}).(*SMTPMailer)
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Equal(t, "bot@example.com", from)
		assert.Equal(t, []string{"jane@example.com"}, to)
		return nil
	}

	require.NoError(t, m.Send("jane@example.com", "Hello", "<p>hi</p>"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: Hello\r\n")
	assert.Contains(t, string(gotMsg), "<p>hi</p>")
}

func TestNewMailer_FallsBackToLog(t *testing.T) {
	m := NewMailer(&config.Config{})
	_, ok := m.(LogMailer)
	assert.True(t, ok)
	assert.NoError(t, m.Send("a@b.c", "s", "b"))
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
