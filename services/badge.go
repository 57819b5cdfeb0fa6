package services

import (
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"game-session-system/models"
)

type BadgeService struct {
	log zerolog.Logger
}

func NewBadgeService(logger zerolog.Logger) *BadgeService {
	return &BadgeService{log: logger}
}

// AwardEligible checks all badge triggers against freshly updated stats and
// inserts the ones the player qualifies for. Already held badges are skipped
// by the unique (user_id, badge_code) index.
func (s *BadgeService) AwardEligible(tx *gorm.DB, stats *models.PlayerStats, matchID string) ([]string, error) {
	var awarded []string
	for _, trigger := range EligibleBadges(stats) {
		badge := models.UserBadge{
			ID:        uuid.NewString(),
			UserID:    stats.UserID,
			BadgeCode: trigger.Code,
			MatchID:   matchID,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&badge)
		if res.Error != nil {
			return awarded, eris.Wrapf(res.Error, "failed to award badge %s", trigger.Code)
		}
		if res.RowsAffected > 0 {
			awarded = append(awarded, trigger.Code)
			s.log.Info().Str("user_id", stats.UserID).Str("badge", trigger.Code).Msg("badge awarded")
		}
	}
	return awarded, nil
}

// EligibleBadges lists every trigger the stats satisfy, held or not.
func EligibleBadges(stats *models.PlayerStats) []models.BadgeType {
	var out []models.BadgeType
	for _, trigger := range models.BadgeTriggers {
		if meetsThreshold(stats, trigger.Threshold) {
			out = append(out, trigger)
		}
	}
	return out
}

func meetsThreshold(stats *models.PlayerStats, req map[string]int64) bool {
	for key, required := range req {
		switch key {
		case "matches":
			if stats.Matches < required {
				return false
			}
		case "wins":
			if stats.Wins < required {
				return false
			}
		case "kills":
			if stats.Kills < required {
				return false
			}
		case "level":
			if int64(stats.Level) < required {
				return false
			}
		case "rank":
			if int64(stats.Rank) < required {
				return false
			}
		default:
			return false
		}
	}
	return true
}
