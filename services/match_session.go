package services

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"game-session-system/models"
)

// ParticipantOutcome is what gets persisted for one player when a match ends.
type ParticipantOutcome struct {
	MatchID  string
	UserID   string
	Team     models.Team
	Kills    int
	Deaths   int
	Won      bool
	Duration time.Duration
	EndedAt  time.Time
}

// StatsRecorder persists a participant outcome. Implementations must be safe
// for concurrent use.
type StatsRecorder interface {
	RecordMatchResult(ctx context.Context, outcome ParticipantOutcome) error
}

// MatchArchiver stores the final snapshot of an ended match.
type MatchArchiver interface {
	Archive(ctx context.Context, snapshot *models.LiveMatch) error
}

type MatchStoreConfig struct {
	KillThreshold  int
	PersistTimeout time.Duration
}

// MatchSessionStore owns every LiveMatch. Each match has its own lock; the
// store lock only guards the map.
type MatchSessionStore struct {
	mu      sync.Mutex
	matches map[string]*liveMatch

	presence *PresenceRegistry
	stats    StatsRecorder
	archiver MatchArchiver
	cfg      MatchStoreConfig
	now      func() time.Time
	log      zerolog.Logger
}

type liveMatch struct {
	mu    sync.Mutex
	state *models.LiveMatch
}

// NewMatchSessionStore builds the store. archiver may be nil.
func NewMatchSessionStore(
	logger zerolog.Logger,
	presence *PresenceRegistry,
	stats StatsRecorder,
	archiver MatchArchiver,
	cfg MatchStoreConfig,
) *MatchSessionStore {
	return &MatchSessionStore{
		matches:  make(map[string]*liveMatch),
		presence: presence,
		stats:    stats,
		archiver: archiver,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.With().Str("component", "match_store").Logger(),
	}
}

// Join creates the match on first sight, adds a counter record for userID
// and assigns a team once. Re-joins keep the existing team. The joiner gets
// match_state, everyone else player_joined.
func (s *MatchSessionStore) Join(matchID, userID, displayName string) (*models.LiveMatch, models.Team, error) {
	if matchID == "" {
		return nil, "", eris.Wrap(ErrBadRequest, "matchId is required")
	}

	lm := s.getOrCreate(matchID)
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.state.EndedAt != nil {
		return nil, "", eris.Wrapf(ErrMatchNotFound, "match %s has ended", matchID)
	}

	if _, ok := lm.state.Players[userID]; !ok {
		lm.state.Players[userID] = &models.PlayerScore{DisplayName: displayName}
	}
	team, ok := lm.state.TeamOf[userID]
	if !ok {
		team = balanceTeam(lm.state.TeamOf)
		lm.state.TeamOf[userID] = team
		s.log.Info().Str("match_id", matchID).Str("user_id", userID).Str("team", string(team)).Msg("player assigned")
	}

	snap := lm.state.Snapshot()
	s.presence.SendTo(othersOf(lm.state, userID), models.Envelope{
		Type:    models.EventPlayerJoined,
		Payload: models.PlayerJoined{UserID: userID, Team: team},
	})
	s.presence.SendTo([]string{userID}, models.Envelope{Type: models.EventMatchState, Payload: snap})
	return snap, team, nil
}

// balanceTeam picks the smaller team, red on a tie.
func balanceTeam(teamOf map[string]models.Team) models.Team {
	var red, blue int
	for _, t := range teamOf {
		switch t {
		case models.TeamRed:
			red++
		case models.TeamBlue:
			blue++
		}
	}
	if red <= blue {
		return models.TeamRed
	}
	return models.TeamBlue
}

// Relay forwards a movement/shot/flag payload verbatim to every other participant.
func (s *MatchSessionStore) Relay(matchID, userID, eventType string, data any) error {
	return s.withMatch(matchID, func(lm *liveMatch) error {
		s.presence.SendTo(othersOf(lm.state, userID), models.Envelope{
			Type:    eventType,
			Payload: models.RelayedEvent{UserID: userID, Data: data},
		})
		return nil
	})
}

// Hit broadcasts player_damaged. Health is not tracked.
func (s *MatchSessionStore) Hit(matchID, attackerID, targetID string, damage int, hitLocation string) error {
	return s.withMatch(matchID, func(lm *liveMatch) error {
		s.broadcastLocked(lm, models.Envelope{Type: models.EventPlayerDamaged, Payload: models.PlayerDamaged{
			TargetID:    targetID,
			AttackerID:  attackerID,
			Damage:      damage,
			HitLocation: hitLocation,
		}})
		return nil
	})
}

// UpdatePing stores the latest latency reported by userID.
func (s *MatchSessionStore) UpdatePing(matchID, userID string, ping int) error {
	return s.withMatch(matchID, func(lm *liveMatch) error {
		p, ok := lm.state.Players[userID]
		if !ok {
			return eris.Wrapf(ErrNotFound, "user %s is not in match %s", userID, matchID)
		}
		p.Ping = ping
		return nil
	})
}

// Death increments the attacker's kills and the victim's deaths, then sends
// player_killed followed by score_update. When the attacker reaches the kill
// threshold the match ends and Death reports true.
func (s *MatchSessionStore) Death(ctx context.Context, matchID, victimID, attackerID, weaponType string) (bool, error) {
	var final *models.LiveMatch
	err := s.withMatch(matchID, func(lm *liveMatch) error {
		reached := false
		if p, ok := lm.state.Players[attackerID]; ok {
			p.Kills++
			reached = p.Kills >= s.cfg.KillThreshold
		}
		if p, ok := lm.state.Players[victimID]; ok {
			p.Deaths++
		}

		s.broadcastLocked(lm, models.Envelope{Type: models.EventPlayerKilled, Payload: models.PlayerKilled{
			VictimID:   victimID,
			AttackerID: attackerID,
			WeaponType: weaponType,
		}})
		s.broadcastLocked(lm, models.Envelope{Type: models.EventScoreUpdate, Payload: lm.state.Snapshot()})

		if reached {
			final = s.endLocked(lm)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if final == nil {
		return false, nil
	}
	s.finish(ctx, final)
	return true, nil
}

// Respawn broadcasts player_respawned with the user's team. A missing or
// ended match answers only the caller, with an empty team, instead of an error.
func (s *MatchSessionStore) Respawn(matchID, userID string) {
	err := s.withMatch(matchID, func(lm *liveMatch) error {
		s.broadcastLocked(lm, models.Envelope{
			Type:    models.EventPlayerRespawned,
			Payload: models.PlayerRespawned{UserID: userID, Team: lm.state.TeamOf[userID]},
		})
		return nil
	})
	if err != nil {
		s.presence.SendTo([]string{userID}, models.Envelope{
			Type:    models.EventPlayerRespawned,
			Payload: models.PlayerRespawned{UserID: userID},
		})
	}
}

// EndMatch ends matchID. It is a no-op for an unknown or already ended match
// and reports whether this call did the work.
func (s *MatchSessionStore) EndMatch(ctx context.Context, matchID string) bool {
	lm := s.get(matchID)
	if lm == nil {
		return false
	}

	lm.mu.Lock()
	final := s.endLocked(lm)
	lm.mu.Unlock()

	if final == nil {
		return false
	}
	s.finish(ctx, final)
	return true
}

// endLocked stamps endedAt and sends match_ended. It returns nil when the
// match had already ended.
func (s *MatchSessionStore) endLocked(lm *liveMatch) *models.LiveMatch {
	if lm.state.EndedAt != nil {
		return nil
	}
	ended := s.now()
	lm.state.EndedAt = &ended

	final := lm.state.Snapshot()
	s.broadcastLocked(lm, models.Envelope{Type: models.EventMatchEnded, Payload: final})
	s.log.Info().Str("match_id", final.ID).Int("players", len(final.Players)).Msg("match ended")
	return final
}

// finish persists every participant, archives the snapshot and removes the
// match. It runs without the match lock held.
func (s *MatchSessionStore) finish(ctx context.Context, final *models.LiveMatch) {
	duration := final.EndedAt.Sub(final.StartedAt)
	failed := 0
	for _, userID := range sortedKeys(final.Players) {
		score := final.Players[userID]
		outcome := ParticipantOutcome{
			MatchID:  final.ID,
			UserID:   userID,
			Team:     final.TeamOf[userID],
			Kills:    score.Kills,
			Deaths:   score.Deaths,
			Won:      score.Kills >= s.cfg.KillThreshold,
			Duration: duration,
			EndedAt:  *final.EndedAt,
		}
		if err := s.persist(ctx, outcome); err != nil {
			failed++
			s.log.Error().Err(err).Str("match_id", final.ID).Str("user_id", userID).
				Msg("failed to persist match result, stats for this player are lost")
		}
	}

	if s.archiver != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
		if err := s.archiver.Archive(actx, final); err != nil {
			s.log.Error().Err(err).Str("match_id", final.ID).Msg("failed to archive match snapshot")
		}
		cancel()
	}

	s.mu.Lock()
	delete(s.matches, final.ID)
	s.mu.Unlock()

	s.log.Info().Str("match_id", final.ID).Int("persist_failures", failed).Msg("match removed")
}

func (s *MatchSessionStore) persist(ctx context.Context, outcome ParticipantOutcome) error {
	if s.stats == nil {
		return nil
	}
	// Teardown must finish even if the caller's connection went away.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()
	if err := s.stats.RecordMatchResult(pctx, outcome); err != nil {
		return eris.Wrapf(ErrPersistence, "user %s: %v", outcome.UserID, err)
	}
	return nil
}

// Snapshot returns a copy of a live match.
func (s *MatchSessionStore) Snapshot(matchID string) (*models.LiveMatch, bool) {
	lm := s.get(matchID)
	if lm == nil {
		return nil, false
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.state.Snapshot(), true
}

func (s *MatchSessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

func (s *MatchSessionStore) get(matchID string) *liveMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[matchID]
}

func (s *MatchSessionStore) getOrCreate(matchID string) *liveMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	lm, ok := s.matches[matchID]
	if !ok {
		lm = &liveMatch{state: &models.LiveMatch{
			ID:        matchID,
			Players:   make(map[string]*models.PlayerScore),
			TeamOf:    make(map[string]models.Team),
			StartedAt: s.now(),
		}}
		s.matches[matchID] = lm
		s.log.Info().Str("match_id", matchID).Msg("match created")
	}
	return lm
}

// withMatch runs fn under the match lock. Unknown and ended matches are NotFound.
func (s *MatchSessionStore) withMatch(matchID string, fn func(lm *liveMatch) error) error {
	lm := s.get(matchID)
	if lm == nil {
		return eris.Wrapf(ErrMatchNotFound, "match %s", matchID)
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.state.EndedAt != nil {
		return eris.Wrapf(ErrMatchNotFound, "match %s has ended", matchID)
	}
	return fn(lm)
}

func (s *MatchSessionStore) broadcastLocked(lm *liveMatch, env models.Envelope) {
	s.presence.SendTo(sortedKeys(lm.state.Players), env)
}

func othersOf(m *models.LiveMatch, userID string) []string {
	ids := make([]string, 0, len(m.Players))
	for _, id := range sortedKeys(m.Players) {
		if id != userID {
			ids = append(ids, id)
		}
	}
	return ids
}
