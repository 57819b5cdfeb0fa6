package models

import (
	"time"

	"gorm.io/gorm"
)

// PlayerStats is the write-once-per-match summary target, one row per user.
type PlayerStats struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	Kills   int64 `json:"kills" gorm:"default:0"`
	Deaths  int64 `json:"deaths" gorm:"default:0"`
	Wins    int64 `json:"wins" gorm:"default:0"`
	Matches int64 `json:"matches" gorm:"default:0"`

	// Progression derived from the counters above
	TotalXP int64 `json:"total_xp" gorm:"default:0"`
	Level   int   `json:"level" gorm:"default:1"`
	Rank    int   `json:"rank" gorm:"default:1"` // Bronze(1)→Silver(2)→Gold(3)→Platinum(4)→Diamond(5)

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`
	LastRankUpAt  *time.Time `json:"last_rank_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (PlayerStats) TableName() string {
	return "player_stats"
}
