package mfa

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cardsite-backend/internal/apierror"
	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mfaApp(svc *Service, userID uint) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apierror.Handler})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, userID)
		return c.Next()
	})
	app.Post("/mfa/setup", SetupHandler(svc))
	app.Post("/mfa/verify", VerifyHandler(svc))
	app.Post("/mfa/disable", DisableHandler(svc))
	app.Post("/mfa/backup-code", BackupCodeHandler())
	app.Get("/mfa/status", StatusHandler())
	app.Post("/mfa/backup-codes/regenerate", RequireSecondFactor(svc, "regenerate_backup_codes"), RegenerateBackupCodesHandler())
	app.Post("/guarded", RequireMFA(svc, "change_password"), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body, mfaToken string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mfaToken != "" {
		req.Header.Set(HeaderMFAToken, mfaToken)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func state(t *testing.T, app *fiber.App) (string, int) {
	t.Helper()
	status, out := call(t, app, "GET", "/mfa/status", "", "")
	require.Equal(t, 200, status)
	return out["state"].(string), int(out["backupCodesRemaining"].(float64))
}

func stringsOf(t *testing.T, v any) []string {
	t.Helper()
	raw, ok := v.([]any)
	require.True(t, ok)
	out := make([]string, len(raw))
	for i, s := range raw {
		out[i] = s.(string)
	}
	return out
}

func TestMFAFlow_SetupVerifyConsumeDisable(t *testing.T) {
	testutil.SetupDB(t)
	user := testutil.CreateUser(t, "owner@example.com", models.RoleBrandManager)
	svc := NewService("Cardsite")
	app := mfaApp(svc, user.ID)

	st, _ := state(t, app)
	assert.Equal(t, "UNSET", st)

	status, _ := call(t, app, "POST", "/mfa/verify", `{"token":"123456"}`, "")
	assert.Equal(t, 400, status, "verify before setup")

	status, setup := call(t, app, "POST", "/mfa/setup", "", "")
	require.Equal(t, 200, status)
	secret := setup["secret"].(string)
	codes := stringsOf(t, setup["backupCodes"])
	require.Len(t, codes, 10)

	st, _ = state(t, app)
	assert.Equal(t, "PENDING", st)

	status, _ = call(t, app, "POST", "/mfa/verify", `{"token":"12345a"}`, "")
	assert.Equal(t, 400, status)
	st, _ = state(t, app)
	assert.Equal(t, "PENDING", st)

	status, _ = call(t, app, "POST", "/mfa/verify", fmt.Sprintf(`{"token":%q}`, codeAt(t, secret, time.Now())), "")
	require.Equal(t, 200, status)
	st, left := state(t, app)
	assert.Equal(t, "ENABLED", st)
	assert.Equal(t, 10, left)

	status, _ = call(t, app, "POST", "/mfa/setup", "", "")
	assert.Equal(t, 400, status, "setup again while enabled")

	// backup code consumed through the endpoint
	status, out := call(t, app, "POST", "/mfa/backup-code", fmt.Sprintf(`{"code":%q}`, codes[0]), "")
	require.Equal(t, 200, status)
	assert.EqualValues(t, 9, out["remaining"])
	status, _ = call(t, app, "POST", "/mfa/backup-code", fmt.Sprintf(`{"code":%q}`, codes[0]), "")
	assert.Equal(t, 400, status)

	// backup code consumed by the sensitive-operation gate
	status, out = call(t, app, "POST", "/guarded", "", "")
	assert.Equal(t, 403, status)
	assert.Equal(t, true, out["requiresMFA"])
	status, _ = call(t, app, "POST", "/guarded", "", codes[1])
	assert.Equal(t, 200, status)
	status, _ = call(t, app, "POST", "/guarded", "", codes[1])
	assert.Equal(t, 403, status)
	_, left = state(t, app)
	assert.Equal(t, 8, left)

	// regenerate needs a second factor and invalidates the old codes
	status, _ = call(t, app, "POST", "/mfa/backup-codes/regenerate", "", "")
	assert.Equal(t, 403, status)
	status, out = call(t, app, "POST", "/mfa/backup-codes/regenerate", "", codeAt(t, secret, time.Now()))
	require.Equal(t, 200, status)
	fresh := stringsOf(t, out["backupCodes"])
	require.Len(t, fresh, 10)
	status, _ = call(t, app, "POST", "/mfa/backup-code", fmt.Sprintf(`{"code":%q}`, codes[2]), "")
	assert.Equal(t, 400, status)

	// disable: password plus second factor
	status, _ = call(t, app, "POST", "/mfa/disable", fmt.Sprintf(`{"password":"wrong-password","token":%q}`, fresh[0]), "")
	assert.Equal(t, 400, status)
	status, _ = call(t, app, "POST", "/mfa/disable", fmt.Sprintf(`{"password":%q}`, testutil.Password), "")
	assert.Equal(t, 400, status)
	st, _ = state(t, app)
	assert.Equal(t, "ENABLED", st)

	status, _ = call(t, app, "POST", "/mfa/disable", fmt.Sprintf(`{"password":%q,"token":%q}`, testutil.Password, fresh[0]), "")
	require.Equal(t, 200, status)
	st, left = state(t, app)
	assert.Equal(t, "UNSET", st)
	assert.Zero(t, left)

	var stored models.User
	require.NoError(t, database.DB.First(&stored, user.ID).Error)
	assert.Nil(t, stored.MFASecret)
	assert.False(t, stored.MFAEnabled)

	status, _ = call(t, app, "POST", "/guarded", "", "")
	assert.Equal(t, 200, status, "gate is open once MFA is off")
}

func TestConsumeBackupCode_StaleListRejected(t *testing.T) {
	testutil.SetupDB(t)
	codes, err := GenerateBackupCodes()
	require.NoError(t, err)
	hashed, err := HashBackupCodes(codes[:3])
	require.NoError(t, err)
	user := testutil.CreateUser(t, "owner@example.com", models.RoleBrandManager, func(u *models.User) {
		u.MFAEnabled = true
		u.BackupCodes = hashed
	})

	first := *user
	second := *user

	ok, remaining := VerifyBackupCode(codes[0], first.BackupCodes)
	require.True(t, ok)
	require.NoError(t, consumeBackupCode(&first, remaining))

	// second still holds the list loaded before the first consumption
	ok, remaining = VerifyBackupCode(codes[0], second.BackupCodes)
	require.True(t, ok)
	assert.ErrorIs(t, consumeBackupCode(&second, remaining), errCodesChanged)

	var stored models.User
	require.NoError(t, database.DB.First(&stored, user.ID).Error)
	assert.Len(t, stored.BackupCodes, 2)
}
