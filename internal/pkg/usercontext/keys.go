package usercontext

// Shared Locals keys used across controllers and middleware.
const (
	KeyUserContext = "USER_CONTEXT"
	KeyUserID      = "user_id"
)
