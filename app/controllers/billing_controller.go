package controllers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/flowdeck-app/flowdeck/internal/pkg/apperr"
	"github.com/flowdeck-app/flowdeck/internal/pkg/billing"
	"github.com/flowdeck-app/flowdeck/internal/pkg/database"
	"github.com/flowdeck-app/flowdeck/internal/pkg/entitlements"
	"github.com/flowdeck-app/flowdeck/internal/pkg/env"
	"github.com/flowdeck-app/flowdeck/internal/pkg/usercontext"
)

// HandleBillingWebhook receives Stripe webhook deliveries. The signature is
// verified over the raw body before anything else; 200 acknowledges both
// handled and ignored types, and a 500 makes Stripe redeliver.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	sigHeader := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	event, err := billing.VerifyWebhook(rawBody, sigHeader, secret)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	if !billing.IsRelevantEvent(string(event.Type)) {
		// Acknowledge so Stripe stops redelivering types we never act on.
		return c.JSON(fiber.Map{"received": true})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db_not_configured"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := billing.NewServiceFromDB(db).ProcessEvent(ctx, event); err != nil {
		log.Printf("billing: processing %s event %s failed: %v", event.Type, event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
	return c.JSON(fiber.Map{"received": true})
}

// HandleSubscriptionStatus returns the caller's tier, limits, usage and
// subscription snapshot.
func HandleSubscriptionStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db_not_configured"})
	}

	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		email = userCtx.Email
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	status, err := entitlements.NewServiceFromDB(db).GetStatus(ctx, userCtx.UserID, email)
	if err != nil {
		return c.Status(apperr.StatusOf(err)).JSON(fiber.Map{"error": apperr.CodeOf(err)})
	}
	return c.JSON(status)
}

type permissionRequest struct {
	Action string `json:"action" validate:"required"`
}

// HandleActionPermission answers whether the caller may perform one gated
// action right now.
func HandleActionPermission(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req permissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db_not_configured"})
	}

	decision, err := entitlements.NewServiceFromDB(db).CanPerformAction(c.Context(), userCtx.UserID, req.Action)
	if err != nil {
		return c.Status(apperr.StatusOf(err)).JSON(fiber.Map{"error": apperr.CodeOf(err)})
	}
	return c.JSON(decision)
}
