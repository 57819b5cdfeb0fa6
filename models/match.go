package models

import "time"

// MatchResult records one participant's outcome of a finished LiveMatch.
type MatchResult struct {
	ID      string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	MatchID string `gorm:"index;not null" json:"match_id"`
	UserID  string `gorm:"index;not null" json:"user_id"`
	Team    string `gorm:"type:varchar(16)" json:"team"`

	Kills  int    `json:"kills"`
	Deaths int    `json:"deaths"`
	Result string `json:"result" gorm:"type:varchar(16);check:result IN ('win','loss')"`

	DurationSec int       `json:"duration_sec" gorm:"default:0"`
	XPEarned    int64     `json:"xp_earned" gorm:"default:0"`
	EndedAt     time.Time `json:"ended_at"`

	Timestamps
}

const (
	ResultWin  = "win"
	ResultLoss = "loss"
)
