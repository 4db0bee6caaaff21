package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router is the common shape of the route installers.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires all routes into the app.
func InstallRouter(app *fiber.App) {
	setup(app, NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
