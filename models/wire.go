package models

import "time"

// Outbound event names.
const (
	EventPresenceUpdate  = "presence_update"
	EventPartyCreated    = "party_created"
	EventPartyJoined     = "party_joined"
	EventPartyLeft       = "party_left"
	EventPartyKicked     = "party_kicked"
	EventPartyUpdated    = "party_updated"
	EventMatchFound      = "match_found"
	EventMatchStart      = "match_start"
	EventMatchCancelled  = "match_cancelled"
	EventMatchState      = "match_state"
	EventPlayerJoined    = "player_joined"
	EventPlayerDamaged   = "player_damaged"
	EventPlayerKilled    = "player_killed"
	EventPlayerRespawned = "player_respawned"
	EventScoreUpdate     = "score_update"
	EventMatchEnded      = "match_ended"
	EventError           = "error"
)

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

const (
	CancelReasonDeclined = "declined"
	CancelReasonTimeout  = "timeout"
)

type PresenceUpdate struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type PartyLeft struct {
	PartyID string `json:"partyId"`
	UserID  string `json:"userId"`
	Party   *Party `json:"party,omitempty"`
}

type PartyKicked struct {
	PartyID      string `json:"partyId"`
	TargetUserID string `json:"targetUserId"`
	Party        *Party `json:"party,omitempty"`
}

type MatchFound struct {
	ID         string `json:"id"`
	ModeID     string `json:"modeId"`
	OpponentID string `json:"opponentId"`
	ExpiresIn  int    `json:"expiresIn"`
}

type JoinInfo struct {
	MatchID   string    `json:"matchId"`
	Target    string    `json:"target"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type MatchStart struct {
	MatchID  string   `json:"matchId"`
	ModeID   string   `json:"modeId"`
	JoinInfo JoinInfo `json:"joinInfo"`
}

type MatchCancelled struct {
	MatchID string `json:"matchId"`
	Reason  string `json:"reason"`
}

type PlayerJoined struct {
	UserID string `json:"userId"`
	Team   Team   `json:"team"`
}

type PlayerDamaged struct {
	TargetID    string `json:"targetId"`
	AttackerID  string `json:"attackerId"`
	Damage      int    `json:"damage"`
	HitLocation string `json:"hitLocation"`
}

type PlayerKilled struct {
	VictimID   string `json:"victimId"`
	AttackerID string `json:"attackerId"`
	WeaponType string `json:"weaponType"`
}

type PlayerRespawned struct {
	UserID string `json:"userId"`
	Team   Team   `json:"team,omitempty"`
}

// RelayedEvent carries a verbatim client payload to other match participants.
type RelayedEvent struct {
	UserID string `json:"userId"`
	Data   any    `json:"data"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}
