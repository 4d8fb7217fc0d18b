package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/StefanHaas/LinkLock/internal/pkg/middleware"
)

// ApiRouter carries the JSON endpoints consumed by the front end.
type ApiRouter struct {
	controllers Controllers
}

func NewApiRouter(c Controllers) *ApiRouter {
	return &ApiRouter{controllers: c}
}

func (a *ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/trial", a.controllers.Auth.HandleRequestTrial)
	auth.Post("/login", a.controllers.Auth.HandleRequestLogin)
	auth.Post("/subscribe", a.controllers.Auth.HandleRequestSubscribe)
	auth.Post("/logout", a.controllers.Auth.HandleLogout)

	api.Get("/entitlement", a.controllers.Entitlement.HandleGetEntitlement)

	billing := api.Group("/billing", middleware.RequireSession(a.controllers.Sessions))
	billing.Post("/portal", a.controllers.Billing.HandlePortal)
}
