package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/StefanHaas/LinkLock/internal/pkg/session"
	"github.com/StefanHaas/LinkLock/internal/pkg/token"
)

const claimsKey = "session_claims"

// RequireSession verifies the session cookie and returns JSON 401 when it is
// absent or invalid. Verified claims are stashed in Locals for the handler.
func RequireSession(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := sessions.Read(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Sign in first",
			})
		}
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// Claims returns the session claims stored by RequireSession.
func Claims(c *fiber.Ctx) (*token.SessionClaims, bool) {
	claims, ok := c.Locals(claimsKey).(*token.SessionClaims)
	return claims, ok && claims != nil
}
