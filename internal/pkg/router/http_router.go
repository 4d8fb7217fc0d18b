package router

import (
	"github.com/gofiber/fiber/v2"
)

// HttpRouter carries the routes users hit via browser navigation: the magic
// link landing and the health probe.
type HttpRouter struct {
	controllers Controllers
}

func NewHttpRouter(c Controllers) *HttpRouter {
	return &HttpRouter{controllers: c}
}

func (h *HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/verify", h.controllers.Auth.HandleVerify)
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
