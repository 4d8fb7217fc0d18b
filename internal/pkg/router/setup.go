package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/StefanHaas/LinkLock/app/controllers"
	"github.com/StefanHaas/LinkLock/internal/pkg/session"
)

// Router is one installable slice of the route table.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Controllers bundles the constructed handlers the routers wire up.
type Controllers struct {
	Auth        *controllers.AuthController
	Entitlement *controllers.EntitlementController
	Billing     *controllers.BillingController
	Sessions    *session.Manager
}

// InstallRouter registers all routes. HttpRouter carries the browser-facing
// redirect surface, ApiRouter the JSON endpoints.
func InstallRouter(app *fiber.App, c Controllers) {
	setup(app, NewHttpRouter(c), NewApiRouter(c))
}

func setup(app *fiber.App, routers ...Router) {
	for _, r := range routers {
		r.InstallRouter(app)
	}
}
