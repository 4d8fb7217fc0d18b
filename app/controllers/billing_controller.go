package controllers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/StefanHaas/LinkLock/internal/pkg/middleware"
	"github.com/StefanHaas/LinkLock/internal/pkg/ratelimit"
)

// PortalOpener is the controller-facing slice of the billing API.
type PortalOpener interface {
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// Gate mirrors the rate limiter surface the billing controller needs.
type Gate interface {
	Allow(ctx context.Context, scope, identity string) ratelimit.Decision
}

type BillingController struct {
	portal    PortalOpener
	gate      Gate
	returnURL string
}

func NewBillingController(portal PortalOpener, gate Gate, returnURL string) *BillingController {
	return &BillingController{portal: portal, gate: gate, returnURL: returnURL}
}

// HandlePortal opens a hosted billing portal session for the signed-in
// customer. Budgeted per session id, not per IP: the portal is only
// reachable with a valid session, and one user behind a NAT must not starve
// the rest. Mounted behind middleware.RequireSession.
func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Sign in first",
		})
	}

	if d := bc.gate.Allow(c.Context(), ratelimit.ScopeCheckoutBySession, ratelimit.SessionIdentity(claims.SID)); !d.Allowed {
		secs := int(d.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "rate_limited",
			"retry_after": secs,
		})
	}

	url, err := bc.portal.CreatePortalSession(c.Context(), claims.CustomerID, bc.returnURL)
	if err != nil {
		log.Error().Err(err).Str("sid", claims.SID).Msg("portal session failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "billing_unavailable",
			"message": "Billing portal is unavailable, try again later",
		})
	}
	return c.JSON(fiber.Map{"url": url})
}
