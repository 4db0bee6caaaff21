package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext carries the caller identity established by the auth middleware.
// This service trusts the upstream gateway to authenticate users; it only
// consumes the identity header.
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Email      string `json:"email"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// GetUserContext retrieves the user context from the fiber context, returning
// an anonymous context if none was set.
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(KeyUserContext); ctx != nil {
		if uc, ok := ctx.(UserContext); ok {
			return uc
		}
	}
	return UserContext{IsLoggedIn: false}
}

// GetUserID returns the current user's ID, or 0 if not logged in.
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
