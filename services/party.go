package services

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"game-session-system/models"
)

// PartyNotifier delivers party events to the listed users.
type PartyNotifier interface {
	SendTo(userIDs []string, env models.Envelope)
}

// PartyRegistry owns every Party and the reverse user → party index.
// All mutations happen under one lock so the index and memberships never
// disagree. Party events are sent before the lock is released, so members
// see them in the order the changes were made. Returned parties are copies.
type PartyRegistry struct {
	mu        sync.Mutex
	parties   map[string]*models.Party
	userParty map[string]string
	notify    PartyNotifier
	newID     func() string
	log       zerolog.Logger
}

// NewPartyRegistry builds a registry. notify may be nil, in which case no
// events are sent.
func NewPartyRegistry(logger zerolog.Logger, notify PartyNotifier) *PartyRegistry {
	return &PartyRegistry{
		parties:   make(map[string]*models.Party),
		userParty: make(map[string]string),
		notify:    notify,
		newID:     uuid.NewString,
		log:       logger.With().Str("component", "party").Logger(),
	}
}

// Create makes a new party led by leaderID, leaving any prior party first.
// The second return value is the prior party after the leave, if it survived.
func (r *PartyRegistry) Create(leaderID, displayName string) (created *models.Party, previous *models.Party) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous = r.leaveLocked(leaderID)

	p := &models.Party{
		ID:       r.newID(),
		LeaderID: leaderID,
		Members: []models.PartyMember{{
			UserID:      leaderID,
			DisplayName: displayName,
			IsLeader:    true,
			IsReady:     true,
		}},
	}
	r.parties[p.ID] = p
	r.userParty[leaderID] = p.ID

	r.log.Info().Str("party_id", p.ID).Str("leader_id", leaderID).Msg("party created")
	r.sendLeftLocked(leaderID, previous)
	created = p.Clone()
	r.sendLocked([]string{leaderID}, models.Envelope{Type: models.EventPartyCreated, Payload: created})
	return created, previous
}

// Join appends userID to partyID as a ready non-leader, leaving any prior party first.
func (r *PartyRegistry) Join(partyID, userID, displayName string) (joined *models.Party, previous *models.Party, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.parties[partyID]; !ok {
		return nil, nil, eris.Wrapf(ErrPartyNotFound, "party %s", partyID)
	}
	if r.userParty[userID] == partyID {
		joined = r.parties[partyID].Clone()
		r.sendLocked(joined.MemberIDs(), models.Envelope{Type: models.EventPartyJoined, Payload: joined})
		return joined, nil, nil
	}

	previous = r.leaveLocked(userID)

	// leaving cannot delete the target: the user was not a member of it
	p := r.parties[partyID]
	p.Members = append(p.Members, models.PartyMember{
		UserID:      userID,
		DisplayName: displayName,
		IsReady:     true,
	})
	r.userParty[userID] = partyID

	r.log.Info().Str("party_id", partyID).Str("user_id", userID).Msg("party joined")
	r.sendLeftLocked(userID, previous)
	joined = p.Clone()
	r.sendLocked(joined.MemberIDs(), models.Envelope{Type: models.EventPartyJoined, Payload: joined})
	return joined, previous, nil
}

// Leave removes userID from its party. It returns the party id the user left
// (empty when it had none) and the remaining party, nil if it was deleted.
// The leaver and the remaining members get party_left.
func (r *PartyRegistry) Leave(userID string) (partyID string, remaining *models.Party) {
	r.mu.Lock()
	defer r.mu.Unlock()

	partyID = r.userParty[userID]
	if partyID == "" {
		return "", nil
	}
	remaining = r.leaveLocked(userID)

	recipients := []string{userID}
	if remaining != nil {
		recipients = append(recipients, remaining.MemberIDs()...)
	}
	r.sendLocked(recipients, models.Envelope{Type: models.EventPartyLeft, Payload: models.PartyLeft{
		PartyID: partyID,
		UserID:  userID,
		Party:   remaining,
	}})
	return partyID, remaining
}

// Kick removes targetUserID from partyID on behalf of byUserID, who must be
// the leader. The kicked user and the remaining members get party_kicked.
func (r *PartyRegistry) Kick(partyID, byUserID, targetUserID string) (*models.Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[partyID]
	if !ok {
		return nil, eris.Wrapf(ErrPartyNotFound, "party %s", partyID)
	}
	if p.LeaderID != byUserID {
		return nil, eris.Wrap(ErrPermissionDenied, "only the party leader can kick members")
	}
	if targetUserID == byUserID {
		return nil, eris.Wrap(ErrBadRequest, "use leave_party to leave your own party")
	}
	if memberIndex(p, targetUserID) < 0 {
		return nil, eris.Wrapf(ErrMemberNotFound, "user %s in party %s", targetUserID, partyID)
	}

	r.log.Info().Str("party_id", partyID).Str("user_id", targetUserID).Msg("party member kicked")
	remaining := r.leaveLocked(targetUserID)

	recipients := []string{targetUserID}
	if remaining != nil {
		recipients = append(recipients, remaining.MemberIDs()...)
	}
	r.sendLocked(recipients, models.Envelope{Type: models.EventPartyKicked, Payload: models.PartyKicked{
		PartyID:      partyID,
		TargetUserID: targetUserID,
		Party:        remaining,
	}})
	return remaining, nil
}

// ToggleReady flips the ready flag of userID in partyID.
func (r *PartyRegistry) ToggleReady(partyID, userID string) (*models.Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[partyID]
	if !ok {
		return nil, eris.Wrapf(ErrPartyNotFound, "party %s", partyID)
	}
	i := memberIndex(p, userID)
	if i < 0 {
		return nil, eris.Wrapf(ErrMemberNotFound, "user %s in party %s", userID, partyID)
	}
	p.Members[i].IsReady = !p.Members[i].IsReady

	updated := p.Clone()
	r.sendLocked(updated.MemberIDs(), models.Envelope{Type: models.EventPartyUpdated, Payload: updated})
	return updated, nil
}

// SelectMode records the mode the party last queued for.
func (r *PartyRegistry) SelectMode(partyID, modeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.parties[partyID]; ok {
		p.SelectedModeID = modeID
	}
}

// UserParty returns the party userID belongs to, or nil.
func (r *PartyRegistry) UserParty(userID string) *models.Party {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.userParty[userID]; ok {
		return r.parties[id].Clone()
	}
	return nil
}

func (r *PartyRegistry) Get(partyID string) (*models.Party, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parties[partyID]
	return p.Clone(), ok
}

func (r *PartyRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.parties)
}

// leaveLocked removes userID from its party, reassigning the leader to the
// first remaining member or deleting the party when it empties.
func (r *PartyRegistry) leaveLocked(userID string) *models.Party {
	partyID, ok := r.userParty[userID]
	if !ok {
		return nil
	}
	delete(r.userParty, userID)

	p := r.parties[partyID]
	i := memberIndex(p, userID)
	if i >= 0 {
		p.Members = append(p.Members[:i], p.Members[i+1:]...)
	}

	if len(p.Members) == 0 {
		delete(r.parties, partyID)
		r.log.Info().Str("party_id", partyID).Msg("party disbanded")
		return nil
	}

	if p.LeaderID == userID {
		p.Members[0].IsLeader = true
		p.LeaderID = p.Members[0].UserID
		r.log.Info().Str("party_id", partyID).Str("leader_id", p.LeaderID).Msg("party leader reassigned")
	}
	return p.Clone()
}

// sendLeftLocked tells what is left of a party that userID walked out of.
func (r *PartyRegistry) sendLeftLocked(userID string, remaining *models.Party) {
	if remaining == nil {
		return
	}
	r.sendLocked(remaining.MemberIDs(), models.Envelope{Type: models.EventPartyLeft, Payload: models.PartyLeft{
		PartyID: remaining.ID,
		UserID:  userID,
		Party:   remaining,
	}})
}

func (r *PartyRegistry) sendLocked(userIDs []string, env models.Envelope) {
	if r.notify == nil {
		return
	}
	r.notify.SendTo(userIDs, env)
}

func memberIndex(p *models.Party, userID string) int {
	for i, m := range p.Members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}
