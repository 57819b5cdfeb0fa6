// handlers/stats_routes.go
package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"game-session-system/middleware"
	"game-session-system/models"
	"game-session-system/services"
)

// StatsReader is the read side of the progression store.
type StatsReader interface {
	GetStats(ctx context.Context, userID string) (*models.PlayerStats, error)
	GetUserHistory(ctx context.Context, userID string, page, size int) (*services.HistoryPage, error)
	GetRecentMatches(ctx context.Context, userID string, days int) ([]models.MatchResult, error)
	GetBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
}

func SetupStatsRoutes(app *fiber.App, stats StatsReader, logger zerolog.Logger) {
	// 🔐 Secured routes: the gateway forwards the caller's identity in X-User-ID
	secured := app.Group("/s", middleware.UserContextMiddleware(logger))

	secured.Get("/stats", func(c *fiber.Ctx) error {
		userID := c.Locals(middleware.UserIDLocal).(string)

		st, err := stats.GetStats(c.UserContext(), userID)
		if err != nil {
			if eris.Is(err, services.ErrNotFound) {
				// never finished a match yet
				st = &models.PlayerStats{UserID: userID, Level: 1, Rank: 1}
			} else {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "failed to load stats",
					"cause": err.Error(),
				})
			}
		}

		return c.JSON(fiber.Map{
			"user_id":          st.UserID,
			"kills":            st.Kills,
			"deaths":           st.Deaths,
			"wins":             st.Wins,
			"matches":          st.Matches,
			"kd_ratio":         kdRatio(st.Kills, st.Deaths),
			"xp":               st.TotalXP,
			"level":            st.Level,
			"rank":             st.Rank,
			"rank_name":        rankName(st.Rank),
			"last_level_up_at": st.LastLevelUpAt,
			"last_rank_up_at":  st.LastRankUpAt,
		})
	})

	secured.Get("/stats/history", func(c *fiber.Ctx) error {
		userID := c.Locals(middleware.UserIDLocal).(string)
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))
		history, err := stats.GetUserHistory(c.UserContext(), userID, page, size)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get history",
				"cause": err.Error(),
			})
		}
		return c.JSON(history)
	})

	secured.Get("/stats/recent", func(c *fiber.Ctx) error {
		userID := c.Locals(middleware.UserIDLocal).(string)
		days, _ := strconv.Atoi(c.Query("days", "7"))
		if days < 1 {
			days = 7
		}
		matches, err := stats.GetRecentMatches(c.UserContext(), userID, days)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get recent matches",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"matches": matches})
	})

	secured.Get("/stats/badges", func(c *fiber.Ctx) error {
		userID := c.Locals(middleware.UserIDLocal).(string)
		badges, err := stats.GetBadges(c.UserContext(), userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get badges",
				"cause": err.Error(),
			})
		}

		byCode := make(map[string]models.BadgeType, len(models.BadgeTriggers))
		for _, bt := range models.BadgeTriggers {
			byCode[bt.Code] = bt
		}

		response := make([]fiber.Map, 0, len(badges))
		for _, ub := range badges {
			bt := byCode[ub.BadgeCode]
			response = append(response, fiber.Map{
				"id":          ub.ID,
				"code":        ub.BadgeCode,
				"name":        bt.Name,
				"description": bt.Description,
				"rarity":      bt.Rarity,
				"match_id":    ub.MatchID,
				"awarded_at":  ub.AwardedAt,
			})
		}
		return c.JSON(response)
	})
}

func kdRatio(kills, deaths int64) float64 {
	if deaths == 0 {
		return float64(kills)
	}
	return float64(kills) / float64(deaths)
}

func rankName(rank int) string {
	switch rank {
	case 1:
		return "Bronze"
	case 2:
		return "Silver"
	case 3:
		return "Gold"
	case 4:
		return "Platinum"
	case 5:
		return "Diamond"
	default:
		if rank > 5 {
			return "Legend"
		}
		return "Bronze"
	}
}
