package controllers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/flowdeck-app/flowdeck/internal/pkg/apperr"
	"github.com/flowdeck-app/flowdeck/internal/pkg/connect"
	"github.com/flowdeck-app/flowdeck/internal/pkg/database"
	"github.com/flowdeck-app/flowdeck/internal/pkg/env"
	"github.com/flowdeck-app/flowdeck/internal/pkg/usercontext"
)

var validate = validator.New()

// HandleIntegrationAuthorize starts the provider consent flow for the
// authenticated user and redirects the browser to the provider.
func HandleIntegrationAuthorize(c *fiber.Ctx) error {
	userID := callerID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db_not_configured"})
	}

	svc := connect.NewServiceFromDB(db)
	url, err := svc.Authorize(userID, c.Params("provider"))
	if err != nil {
		return c.Status(apperr.StatusOf(err)).JSON(fiber.Map{"error": apperr.CodeOf(err)})
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

// HandleIntegrationCallback completes the provider flow. The outcome travels
// only as a redirect marker: integration_success=<provider> or
// integration_error=<reason>. Callers must treat a missing success marker as
// failure.
func HandleIntegrationCallback(c *fiber.Ctx) error {
	provider := c.Params("provider")

	db := database.GetDB()
	if db == nil {
		return redirectWithError(c, "db_not_configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	svc := connect.NewServiceFromDB(db)
	err := svc.Callback(ctx, provider, c.Query("code"), c.Query("state"), strings.TrimSpace(c.Query("error")))
	if err != nil {
		reason := apperr.CodeOf(err)
		if reason == "internal_error" {
			reason = "callback_failed"
		}
		return redirectWithError(c, reason)
	}
	return c.Redirect(frontendURL()+"?integration_success="+provider, fiber.StatusSeeOther)
}

// HandleIntegrationStatus returns the per-provider connected map.
func HandleIntegrationStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db_not_configured"})
	}

	status, err := connect.NewServiceFromDB(db).Status(userCtx.UserID)
	if err != nil {
		return c.Status(apperr.StatusOf(err)).JSON(fiber.Map{"error": apperr.CodeOf(err)})
	}
	return c.JSON(fiber.Map{"integrations": status})
}

type disconnectRequest struct {
	Provider string `json:"provider" validate:"required,oneof=google slack notion"`
}

// HandleIntegrationDisconnect deletes the caller's grant for one provider.
func HandleIntegrationDisconnect(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req disconnectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_provider"})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db_not_configured"})
	}
	if err := connect.NewServiceFromDB(db).Disconnect(userCtx.UserID, req.Provider); err != nil {
		return c.Status(apperr.StatusOf(err)).JSON(fiber.Map{"error": apperr.CodeOf(err)})
	}
	return c.JSON(fiber.Map{"success": true})
}

// callerID resolves the acting user from the identity middleware, falling
// back to an explicit user_id query parameter on the authorize entry point.
func callerID(c *fiber.Ctx) uint {
	if uc := usercontext.GetUserContext(c); uc.IsLoggedIn {
		return uc.UserID
	}
	raw := strings.TrimSpace(c.Query("user_id"))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func frontendURL() string {
	base := strings.TrimRight(env.GetEnv("APP_FRONTEND_URL", ""), "/")
	if base == "" {
		base = strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	}
	return base + "/integrations"
}

func redirectWithError(c *fiber.Ctx, reason string) error {
	return c.Redirect(frontendURL()+"?integration_error="+reason, fiber.StatusSeeOther)
}
