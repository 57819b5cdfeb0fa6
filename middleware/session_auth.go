// middleware/session_auth.go
package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"game-session-system/services"
)

const (
	IdentityLocal = "identity"
	UserIDLocal   = "user_id"
)

// CredentialVerifier resolves the credential presented on connect.
type CredentialVerifier interface {
	Authenticate(ctx context.Context, credential string) (services.Identity, error)
}

// SessionAuthMiddleware guards the websocket endpoint. The credential comes
// from the `token` query param or an `Authorization: Bearer` header and is
// verified before the upgrade, so a bad credential never gets a session.
//
// Usage:
//
//	app.Get("/ws", middleware.SessionAuthMiddleware(coord, logger), websocket.New(...))
func SessionAuthMiddleware(verifier CredentialVerifier, logger zerolog.Logger) fiber.Handler {
	logger = logger.With().Str("component", "session_auth").Logger()

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
				"error": "websocket upgrade required",
			})
		}

		token := credentialFrom(c)
		id, err := verifier.Authenticate(c.UserContext(), token)
		if err != nil {
			logger.Info().Err(err).Str("ip", c.IP()).Int("token_len", len(token)).Msg("session refused")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": services.CodeAuthentication,
			})
		}

		c.Locals(IdentityLocal, id)
		c.Locals(UserIDLocal, id.UserID)
		logger.Debug().Str("user_id", id.UserID).Msg("session authenticated")
		return c.Next()
	}
}

func credentialFrom(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	authHeader := c.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
