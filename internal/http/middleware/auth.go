package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"docregistry/internal/model"
)

// CallerLocalKey is the key the authenticated principal is stored under in Fiber's context locals.
const CallerLocalKey = "caller"

// TokenVerifier turns a bearer token into the caller principal.
type TokenVerifier interface {
	Verify(token string) (model.Principal, error)
}

// Authenticate requires an "Authorization: Bearer <token>" header and stores the verified
// principal in locals. Missing or invalid tokens end the request with 401.
func Authenticate(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authorization token not provided")
		}
		principal, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(CallerLocalKey, principal)
		return c.Next()
	}
}

// CallerFromCtx returns the principal stored by Authenticate.
func CallerFromCtx(c *fiber.Ctx) (model.Principal, bool) {
	p, ok := c.Locals(CallerLocalKey).(model.Principal)
	return p, ok && p != ""
}
