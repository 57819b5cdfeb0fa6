package models

import (
	"time"
)

// Handle is a live connection a user can be reached on.
type Handle interface {
	ID() string
	Send(env Envelope) error
	Close() error
}

// Envelope is the frame exchanged with clients in both directions.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Team labels used for in-match balancing.
type Team string

const (
	TeamRed  Team = "red"
	TeamBlue Team = "blue"
)

// PartyMember is one user inside a Party.
type PartyMember struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsLeader    bool   `json:"isLeader"`
	IsReady     bool   `json:"isReady"`
}

// Party groups users that queue and play together. Exactly one member is leader.
type Party struct {
	ID             string        `json:"partyId"`
	LeaderID       string        `json:"leaderId"`
	Members        []PartyMember `json:"members"`
	SelectedModeID string        `json:"selectedModeId,omitempty"`
}

// Clone returns a copy that shares no memory with p.
func (p *Party) Clone() *Party {
	if p == nil {
		return nil
	}
	out := *p
	out.Members = append([]PartyMember(nil), p.Members...)
	return &out
}

// MemberIDs returns member user ids in membership order.
func (p *Party) MemberIDs() []string {
	ids := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// QueuedEntry is one user waiting for a mode.
type QueuedEntry struct {
	UserID     string    `json:"userId"`
	Handle     Handle    `json:"-"`
	ModeID     string    `json:"modeId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// PendingMatch is a proposed pairing awaiting acceptance from every candidate.
type PendingMatch struct {
	ID             string
	ModeID         string
	Candidates     []QueuedEntry
	Accepted       map[string]bool
	ExpiryDeadline time.Time
}

// HasCandidate reports whether userID was offered this match.
func (p *PendingMatch) HasCandidate(userID string) bool {
	for _, c := range p.Candidates {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// PlayerScore is the per-player counter record of a LiveMatch.
type PlayerScore struct {
	Kills       int    `json:"kills"`
	Deaths      int    `json:"deaths"`
	Ping        int    `json:"ping"`
	DisplayName string `json:"displayName"`
}

// LiveMatch is the authoritative state of an in-progress match.
type LiveMatch struct {
	ID        string                  `json:"matchId"`
	Players   map[string]*PlayerScore `json:"players"`
	TeamOf    map[string]Team         `json:"teams"`
	StartedAt time.Time               `json:"startedAt"`
	EndedAt   *time.Time              `json:"endedAt,omitempty"`
}

// Snapshot returns a deep copy safe to hand to encoders and other goroutines.
func (m *LiveMatch) Snapshot() *LiveMatch {
	out := &LiveMatch{
		ID:        m.ID,
		Players:   make(map[string]*PlayerScore, len(m.Players)),
		TeamOf:    make(map[string]Team, len(m.TeamOf)),
		StartedAt: m.StartedAt,
	}
	for id, p := range m.Players {
		cp := *p
		out.Players[id] = &cp
	}
	for id, team := range m.TeamOf {
		out.TeamOf[id] = team
	}
	if m.EndedAt != nil {
		ended := *m.EndedAt
		out.EndedAt = &ended
	}
	return out
}

// ParticipantIDs lists every user with a counter record.
func (m *LiveMatch) ParticipantIDs() []string {
	ids := make([]string, 0, len(m.Players))
	for id := range m.Players {
		ids = append(ids, id)
	}
	return ids
}
