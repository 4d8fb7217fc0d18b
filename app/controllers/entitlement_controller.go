package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/StefanHaas/LinkLock/internal/pkg/entitlements"
	"github.com/StefanHaas/LinkLock/internal/pkg/session"
	"github.com/StefanHaas/LinkLock/internal/pkg/token"
)

// EntitlementResolver is the controller-facing slice of the entitlement
// engine.
type EntitlementResolver interface {
	Resolve(ctx context.Context, claims *token.SessionClaims, sessErr error) entitlements.Decision
}

type EntitlementController struct {
	sessions *session.Manager
	resolver EntitlementResolver
}

func NewEntitlementController(sessions *session.Manager, resolver EntitlementResolver) *EntitlementController {
	return &EntitlementController{sessions: sessions, resolver: resolver}
}

// HandleGetEntitlement computes a fresh decision for the caller's session.
// The decision body has the same shape on every path; only the status code
// distinguishes an absent session from a present one without entitlement.
func (ec *EntitlementController) HandleGetEntitlement(c *fiber.Ctx) error {
	claims, sessErr := ec.sessions.Read(c)
	decision := ec.resolver.Resolve(c.Context(), claims, sessErr)

	status := fiber.StatusOK
	switch decision.Reason {
	case entitlements.ReasonMissingSession, entitlements.ReasonInvalidSession:
		status = fiber.StatusUnauthorized
	}

	body := fiber.Map{
		"can_use": decision.CanUse,
		"reason":  decision.Reason,
	}
	if decision.TrialEndsAt > 0 {
		body["trial_ends_at"] = decision.TrialEndsAt
	}
	return c.Status(status).JSON(body)
}
