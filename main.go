package main

import (
	"fmt"
	"log"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/stripe/stripe-go/v72"

	"github.com/flowdeck-app/flowdeck/internal/pkg/database"
	"github.com/flowdeck-app/flowdeck/internal/pkg/env"
	"github.com/flowdeck-app/flowdeck/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()

	// Stripe API client for the metadata/email fallback lookups.
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")

	app := fiber.New(fiber.Config{
		AppName: "flowdeck-integrations",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}
