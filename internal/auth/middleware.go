package auth

import (
	"github.com/gofiber/fiber/v2"
)

// LocalsKey is where Middleware stores the Identity.
const LocalsKey = "identity"

// Middleware authenticates the upgrade request before any handler runs. The
// token is read from the token query parameter, then the Authorization
// header, then the named cookie.
func Middleware(a Authenticator, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			token, _ = ParseBearerToken(c.Get(fiber.HeaderAuthorization))
		}
		if token == "" && cookieName != "" {
			token = c.Cookies(cookieName)
		}
		id, err := a.Authenticate(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Please login to access this route")
		}
		c.Locals(LocalsKey, id)
		return c.Next()
	}
}

// IdentityFrom unwraps the value stored under LocalsKey.
func IdentityFrom(v interface{}) (Identity, bool) {
	id, ok := v.(Identity)
	return id, ok
}
