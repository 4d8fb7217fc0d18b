package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanHaas/LinkLock/internal/pkg/config"
	"github.com/StefanHaas/LinkLock/internal/pkg/session"
	"github.com/StefanHaas/LinkLock/internal/pkg/token"
)

func guardedApp(t *testing.T) (*fiber.App, *session.Manager) {
	t.Helper()
	sessions := session.NewManager("0123456789abcdef0123456789abcdef", "ll_session", 7*24*time.Hour, config.EnvLocal)
	app := fiber.New()
	app.Get("/protected", RequireSession(sessions), func(c *fiber.Ctx) error {
		claims, ok := Claims(c)
		require.True(t, ok)
		return c.JSON(fiber.Map{"customer_id": claims.CustomerID})
	})
	return app, sessions
}

func TestRequireSessionRejectsAnonymous(t *testing.T) {
	app, _ := guardedApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireSessionRejectsTamperedCookie(t *testing.T) {
	app, sessions := guardedApp(t)
	cookieVal, err := sessions.Issue(token.SessionClaims{
		Email: "user@example.com", CustomerID: "cus_1",
		IssuedAt: time.Now().Unix(), SID: "abc",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Cookie", "ll_session="+cookieVal+"x")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireSessionPassesClaimsThrough(t *testing.T) {
	app, sessions := guardedApp(t)
	cookieVal, err := sessions.Issue(token.SessionClaims{
		Email: "user@example.com", CustomerID: "cus_1",
		IssuedAt: time.Now().Unix(), SID: "abc",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Cookie", "ll_session="+cookieVal)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
