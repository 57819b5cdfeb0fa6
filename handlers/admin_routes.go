// handlers/admin_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"game-session-system/middleware"
	"game-session-system/services"
)

// SessionState is the live orchestration state exposed to operators.
type SessionState struct {
	Presence *services.PresenceRegistry
	Parties  *services.PartyRegistry
	Queue    *services.MatchmakingQueue
	Matches  *services.MatchSessionStore
}

func SetupAdminRoutes(app *fiber.App, state SessionState, gatewayToken string, logger zerolog.Logger) {
	// 🔐 Gateway-only introspection
	admin := app.Group("/admin", middleware.GatewayAuthMiddleware(gatewayToken, logger))

	admin.Get("/sessions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"online":          state.Presence.Count(),
			"parties":         state.Parties.Count(),
			"queued":          state.Queue.Len(),
			"pending_matches": state.Queue.PendingCount(),
			"live_matches":    state.Matches.Count(),
		})
	})

	admin.Get("/presence/:user_id", func(c *fiber.Ctx) error {
		userID := c.Params("user_id")
		_, online := state.Presence.Lookup(userID)

		resp := fiber.Map{
			"user_id": userID,
			"online":  online,
		}
		if party := state.Parties.UserParty(userID); party != nil {
			resp["party"] = party
		}
		return c.JSON(resp)
	})

	admin.Get("/queue", func(c *fiber.Ctx) error {
		entries := state.Queue.Entries()
		return c.JSON(fiber.Map{
			"count":   len(entries),
			"entries": entries,
		})
	})

	admin.Get("/matches/:match_id", func(c *fiber.Ctx) error {
		snap, ok := state.Matches.Snapshot(c.Params("match_id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "match not found",
			})
		}
		return c.JSON(snap)
	})

	// Force-end a stuck match. Persistence runs before the response is sent.
	admin.Post("/matches/:match_id/end", func(c *fiber.Ctx) error {
		matchID := c.Params("match_id")
		if !state.Matches.EndMatch(c.UserContext(), matchID) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "match not found or already ended",
			})
		}
		return c.JSON(fiber.Map{
			"message":  "match ended",
			"match_id": matchID,
		})
	})
}
