// handlers/session_routes.go
package handlers

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"game-session-system/middleware"
	"game-session-system/services"
)

// SetupSessionRoutes mounts the websocket session endpoint. ctx bounds every
// session; cancelling it lets in-flight match teardown finish on its own
// timeouts.
func SetupSessionRoutes(ctx context.Context, app *fiber.App, coord *services.Coordinator, logger zerolog.Logger) {
	app.Get("/ws",
		middleware.SessionAuthMiddleware(coord, logger),
		websocket.New(func(c *websocket.Conn) {
			id, ok := c.Locals(middleware.IdentityLocal).(services.Identity)
			if !ok {
				_ = c.Close()
				return
			}
			coord.Serve(ctx, c, id)
		}),
	)
}
