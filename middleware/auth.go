// middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// UserContextMiddleware extracts the user identity and roles set by the Gateway.
// Routes under /s/ require X-User-ID.
func UserContextMiddleware(logger zerolog.Logger) fiber.Handler {
	logger = logger.With().Str("component", "user_ctx").Logger()

	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		rolesStr := c.Get("X-User-Roles")

		path := c.Path()
		if strings.HasPrefix(path, "/s/") && userID == "" {
			logger.Info().Str("path", path).Msg("X-User-ID required but missing on secured route")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(UserIDLocal, userID)
		c.Locals("user_roles", roles)

		logger.Debug().Str("user_id", userID).Strs("roles", roles).Str("path", path).Msg("user context")
		return c.Next()
	}
}
