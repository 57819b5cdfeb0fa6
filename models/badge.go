package models

import (
	"time"
)

// BadgeType is a static badge definition.
type BadgeType struct {
	Code        string
	Name        string
	Description string
	Rarity      string           // common, rare, epic, legendary
	Threshold   map[string]int64 // e.g., {"matches": 10}
}

// UserBadge: awarded instance
type UserBadge struct {
	ID        string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID    string    `gorm:"uniqueIndex:idx_user_badge;not null"`
	BadgeCode string    `gorm:"uniqueIndex:idx_user_badge;not null"`
	MatchID   string    `gorm:"index"`
	AwardedAt time.Time `gorm:"autoCreateTime"`
}

// BadgeTriggers are checked after every persisted match result.
var BadgeTriggers = []BadgeType{
	{
		Code:        "FIRST_MATCH",
		Name:        "First Blood",
		Description: "Played your first match",
		Rarity:      "common",
		Threshold:   map[string]int64{"matches": 1},
	},
	{
		Code:        "FIRST_WIN",
		Name:        "Victor",
		Description: "Won your first match",
		Rarity:      "common",
		Threshold:   map[string]int64{"wins": 1},
	},
	{
		Code:        "KILLS_100",
		Name:        "Sharpshooter",
		Description: "Reached 100 kills",
		Rarity:      "rare",
		Threshold:   map[string]int64{"kills": 100},
	},
	{
		Code:        "MATCHES_50",
		Name:        "Veteran",
		Description: "Played 50 matches",
		Rarity:      "rare",
		Threshold:   map[string]int64{"matches": 50},
	},
	{
		Code:        "LEVEL_10",
		Name:        "Silver Lining",
		Description: "Reached Level 10 (Silver!)",
		Rarity:      "epic",
		Threshold:   map[string]int64{"level": 10},
	},
}
