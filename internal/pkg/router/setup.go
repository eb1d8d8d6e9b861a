package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/simplify-ai/simplify/app/controllers"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires all route groups. The account-context middleware is
// registered by the API router before its routes, so ordering here matters.
func InstallRouter(app *fiber.App, api *controllers.API) {
	setup(app, NewApiRouter(api))
}

func setup(app *fiber.App, routers ...Router) {
	for _, r := range routers {
		r.InstallRouter(app)
	}
}
