package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"game-session-system/models"
)

// XPWeights define relative values of match events
type XPWeights struct {
	MatchXP int64
	WinXP   int64 // 5× match
	KillXP  int64
}

var DefaultXPWeights = XPWeights{
	MatchXP: 10,
	WinXP:   50,
	KillXP:  2,
}

// LevelConfig: XP needed for *next* level (e.g., level 1 → 2 needs BaseXPPerLevel * 1^1.2)
const BaseXPPerLevel = 100

// xpForNextLevel returns XP required to reach level+1 from current level
// e.g., xpForNextLevel(1) = XP to go from L1 → L2
func xpForNextLevel(currentLevel int) int64 {
	if currentLevel < 1 {
		currentLevel = 1
	}
	// L_n = floor(BaseXPPerLevel * n^1.2)
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(currentLevel), 1.2))
}

// RankThresholds: levels required before rank-up
var RankThresholds = map[int]int{ // rank → min level
	1: 1,   // Bronze (start)
	2: 10,  // Silver
	3: 25,  // Gold
	4: 50,  // Platinum
	5: 100, // Diamond
}

func determineRank(level int) int {
	for rank := 5; rank >= 1; rank-- {
		if level >= RankThresholds[rank] {
			return rank
		}
	}
	return 1
}

// matchXP scores one participant outcome.
func (w XPWeights) matchXP(o ParticipantOutcome) int64 {
	xp := w.MatchXP + int64(o.Kills)*w.KillXP
	if o.Won {
		xp += w.WinXP
	}
	return xp
}

// applyXP adds xp and walks level and rank forward.
func applyXP(stats *models.PlayerStats, xp int64, now time.Time) {
	if stats.Level < 1 {
		stats.Level = 1
	}
	if stats.Rank < 1 {
		stats.Rank = 1
	}
	stats.TotalXP += xp

	for stats.TotalXP >= int64(BaseXPPerLevel)*int64(stats.Level)+xpForNextLevel(stats.Level) {
		stats.Level++
		levelUp := now
		stats.LastLevelUpAt = &levelUp
	}

	if newRank := determineRank(stats.Level); newRank > stats.Rank {
		stats.Rank = newRank
		rankUp := now
		stats.LastRankUpAt = &rankUp
	}
}

// ProgressionService persists match outcomes into player stats.
type ProgressionService struct {
	DB      *gorm.DB
	Badges  *BadgeService
	Weights XPWeights
	log     zerolog.Logger
}

func NewProgressionService(db *gorm.DB, logger zerolog.Logger) *ProgressionService {
	logger = logger.With().Str("component", "progression").Logger()
	return &ProgressionService{
		DB:      db,
		Badges:  NewBadgeService(logger),
		Weights: DefaultXPWeights,
		log:     logger,
	}
}

// RecordMatchResult upserts the player's counters, records the match history
// row, awards XP and badges. Everything happens in one transaction so a
// failure leaves the player's stats untouched.
func (s *ProgressionService) RecordMatchResult(ctx context.Context, o ParticipantOutcome) error {
	var wins int64
	result := models.ResultLoss
	if o.Won {
		wins = 1
		result = models.ResultWin
	}
	xp := s.Weights.matchXP(o)

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.PlayerStats{
			ID:      uuid.NewString(),
			UserID:  o.UserID,
			Kills:   int64(o.Kills),
			Deaths:  int64(o.Deaths),
			Wins:    wins,
			Matches: 1,
			Level:   1,
			Rank:    1,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"kills":      gorm.Expr("player_stats.kills + ?", o.Kills),
				"deaths":     gorm.Expr("player_stats.deaths + ?", o.Deaths),
				"wins":       gorm.Expr("player_stats.wins + ?", wins),
				"matches":    gorm.Expr("player_stats.matches + 1"),
				"updated_at": o.EndedAt,
			}),
		}).Create(&row).Error
		if err != nil {
			return eris.Wrap(err, "failed to upsert player stats")
		}

		var stats models.PlayerStats
		if err := tx.Where("user_id = ?", o.UserID).First(&stats).Error; err != nil {
			return eris.Wrap(err, "failed to reload player stats")
		}

		applyXP(&stats, xp, o.EndedAt)
		err = tx.Model(&stats).Updates(map[string]interface{}{
			"total_xp":         stats.TotalXP,
			"level":            stats.Level,
			"rank":             stats.Rank,
			"last_level_up_at": stats.LastLevelUpAt,
			"last_rank_up_at":  stats.LastRankUpAt,
		}).Error
		if err != nil {
			return eris.Wrap(err, "failed to save progression")
		}

		history := models.MatchResult{
			ID:          uuid.NewString(),
			MatchID:     o.MatchID,
			UserID:      o.UserID,
			Team:        string(o.Team),
			Kills:       o.Kills,
			Deaths:      o.Deaths,
			Result:      result,
			DurationSec: int(o.Duration / time.Second),
			XPEarned:    xp,
			EndedAt:     o.EndedAt,
		}
		if err := tx.Create(&history).Error; err != nil {
			return eris.Wrap(err, "failed to record match result")
		}

		if _, err := s.Badges.AwardEligible(tx, &stats, o.MatchID); err != nil {
			return err
		}

		s.log.Info().Str("user_id", o.UserID).Str("match_id", o.MatchID).
			Int64("xp", xp).Int("level", stats.Level).Int("rank", stats.Rank).Msg("match result recorded")
		return nil
	})
}

// GetStats returns the persisted stats row for userID.
func (s *ProgressionService) GetStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	var stats models.PlayerStats
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&stats).Error
	if eris.Is(err, gorm.ErrRecordNotFound) {
		return nil, eris.Wrapf(ErrNotFound, "no stats for user %s", userID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "failed to load player stats")
	}
	return &stats, nil
}

// GetRecentMatches returns match results in last N days
func (s *ProgressionService) GetRecentMatches(ctx context.Context, userID string, days int) ([]models.MatchResult, error) {
	var matches []models.MatchResult
	since := time.Now().AddDate(0, 0, -days)
	err := s.DB.WithContext(ctx).Where("user_id = ? AND ended_at >= ?", userID, since).
		Order("ended_at DESC").
		Find(&matches).Error
	return matches, eris.Wrap(err, "failed to load recent matches")
}

// GetBadges returns every badge awarded to userID.
func (s *ProgressionService) GetBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	var badges []models.UserBadge
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("awarded_at ASC").
		Find(&badges).Error
	return badges, eris.Wrap(err, "failed to load badges")
}

// HistoryPage is one page of a player's match history.
type HistoryPage struct {
	Matches    []models.MatchResult `json:"matches"`
	Page       int                  `json:"page"`
	Size       int                  `json:"size"`
	TotalItems int64                `json:"total_items"`
	TotalPages int                  `json:"total_pages"`
}

// GetUserHistory returns paginated match history
func (s *ProgressionService) GetUserHistory(ctx context.Context, userID string, page, size int) (*HistoryPage, error) {
	page, size = normalizePage(page, size)
	offset := (page - 1) * size

	db := s.DB.WithContext(ctx)
	var total int64
	if err := db.Model(&models.MatchResult{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, eris.Wrap(err, "failed to count match history")
	}

	var matches []models.MatchResult
	err := db.Where("user_id = ?", userID).
		Order("ended_at DESC").
		Limit(size).Offset(offset).
		Find(&matches).Error
	if err != nil {
		return nil, eris.Wrap(err, "failed to load match history")
	}

	return &HistoryPage{
		Matches:    matches,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}
