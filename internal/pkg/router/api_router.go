package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/flowdeck-app/flowdeck/app/controllers"
	"github.com/flowdeck-app/flowdeck/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Identity first: every route below reads the user context.
	app.Use(middleware.UserContextMiddleware)

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
	}))

	// OAuth connect flows. The callback carries no identity header (it is a
	// provider redirect), so it sits outside RequireAPIAuth; identity comes
	// from the state token.
	integrations := api.Group("/integrations")
	integrations.Get("/:provider/authorize", controllers.HandleIntegrationAuthorize)
	integrations.Get("/:provider/callback", controllers.HandleIntegrationCallback)
	integrations.Get("/", middleware.RequireAPIAuth, controllers.HandleIntegrationStatus)
	integrations.Delete("/", middleware.RequireAPIAuth, controllers.HandleIntegrationDisconnect)

	// Billing. The webhook authenticates by signature, not caller identity.
	billingGroup := api.Group("/billing")
	billingGroup.Post("/webhook", controllers.HandleBillingWebhook)
	billingGroup.Get("/subscription", middleware.RequireAPIAuth, controllers.HandleSubscriptionStatus)
	billingGroup.Post("/can-perform", middleware.RequireAPIAuth, controllers.HandleActionPermission)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
