package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"game-session-system/models"
)

// MatchTokens issues the per-player authorization sent with match_start.
type MatchTokens interface {
	Issue(userID, matchID, modeID string) (string, time.Time, error)
}

// QueueConfig tunes the matchmaking queue.
type QueueConfig struct {
	// AcceptTimeout starts when a PendingMatch is created.
	AcceptTimeout time.Duration
	// JoinBaseURL prefixes the deterministic join target.
	JoinBaseURL string
}

// MatchmakingQueue holds the one global waiting list and every PendingMatch.
// A single lock covers both, so scan-and-remove in FindMatch and the
// accept/decline/expiry transitions are atomic with respect to each other.
type MatchmakingQueue struct {
	mu      sync.Mutex
	entries []models.QueuedEntry
	pending map[string]*pendingMatch

	presence *PresenceRegistry
	parties  *PartyRegistry
	tokens   MatchTokens
	timers   ExpiryScheduler
	cfg      QueueConfig
	now      func() time.Time
	newID    func() string
	log      zerolog.Logger
}

type pendingMatch struct {
	*models.PendingMatch
	cancelExpiry func()
}

func NewMatchmakingQueue(
	logger zerolog.Logger,
	presence *PresenceRegistry,
	parties *PartyRegistry,
	tokens MatchTokens,
	timers ExpiryScheduler,
	cfg QueueConfig,
) *MatchmakingQueue {
	return &MatchmakingQueue{
		pending:  make(map[string]*pendingMatch),
		presence: presence,
		parties:  parties,
		tokens:   tokens,
		timers:   timers,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
		log:      logger.With().Str("component", "matchmaking").Logger(),
	}
}

// NormalizeMode turns a client mode id into its canonical slug.
func NormalizeMode(modeID string) (string, error) {
	mode := slug.Make(modeID)
	if mode == "" {
		return "", eris.Wrapf(ErrBadRequest, "invalid mode id %q", modeID)
	}
	return mode, nil
}

// Enqueue queues userID for modeID. A party member may only queue through
// the leader; the leader queues every connected member not already waiting
// for the mode. Pairing runs once afterwards. The returned slice holds the
// user ids that were newly queued.
func (q *MatchmakingQueue) Enqueue(userID, modeID string) ([]string, error) {
	mode, err := NormalizeMode(modeID)
	if err != nil {
		return nil, err
	}

	members := []string{userID}
	if party := q.parties.UserParty(userID); party != nil {
		if party.LeaderID != userID {
			return nil, eris.Wrapf(ErrPermissionDenied, "only the party leader can start the queue")
		}
		members = party.MemberIDs()
		q.parties.SelectMode(party.ID, mode)
	} else if _, ok := q.presence.Lookup(userID); !ok {
		return nil, eris.Wrapf(ErrUserOffline, "user %s", userID)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var queued []string
	now := q.now()
	for _, id := range members {
		h, ok := q.presence.Lookup(id)
		if !ok || q.isQueuedLocked(id, mode) {
			continue
		}
		q.entries = append(q.entries, models.QueuedEntry{UserID: id, Handle: h, ModeID: mode, EnqueuedAt: now})
		queued = append(queued, id)
	}
	if len(queued) > 0 {
		q.log.Info().Strs("user_ids", queued).Str("mode_id", mode).Int("queue_len", len(q.entries)).Msg("queued")
	}

	q.findMatchLocked(mode)
	return queued, nil
}

// Dequeue removes every entry for userID regardless of mode.
func (q *MatchmakingQueue) Dequeue(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if e.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(q.entries[len(kept):])
	q.entries = kept
	return removed
}

// FindMatch pairs the first two distinct waiting entries for modeID.
func (q *MatchmakingQueue) FindMatch(modeID string) *models.PendingMatch {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.findMatchLocked(modeID)
}

func (q *MatchmakingQueue) findMatchLocked(mode string) *models.PendingMatch {
	picked := make([]int, 0, 2)
	for i, e := range q.entries {
		if e.ModeID != mode {
			continue
		}
		if len(picked) == 1 && q.entries[picked[0]].UserID == e.UserID {
			continue
		}
		picked = append(picked, i)
		if len(picked) == 2 {
			break
		}
	}
	if len(picked) < 2 {
		return nil
	}

	candidates := []models.QueuedEntry{q.entries[picked[0]], q.entries[picked[1]]}
	q.entries = append(q.entries[:picked[1]], q.entries[picked[1]+1:]...)
	q.entries = append(q.entries[:picked[0]], q.entries[picked[0]+1:]...)

	pm := &pendingMatch{PendingMatch: &models.PendingMatch{
		ID:             q.newID(),
		ModeID:         mode,
		Candidates:     candidates,
		Accepted:       make(map[string]bool, len(candidates)),
		ExpiryDeadline: q.now().Add(q.cfg.AcceptTimeout),
	}}
	matchID := pm.ID
	cancel, err := q.timers.After(q.cfg.AcceptTimeout, func() { q.Expire(matchID) })
	if err != nil {
		q.log.Error().Err(err).Str("match_id", matchID).Msg("failed to arm accept timer, match will not expire")
		cancel = func() {}
	}
	pm.cancelExpiry = cancel
	q.pending[matchID] = pm

	q.log.Info().Str("match_id", matchID).Str("mode_id", mode).
		Str("user_a", candidates[0].UserID).Str("user_b", candidates[1].UserID).Msg("match found")

	expiresIn := int(q.cfg.AcceptTimeout / time.Second)
	for i, c := range candidates {
		opponent := candidates[1-i].UserID
		q.sendTo(c, models.Envelope{Type: models.EventMatchFound, Payload: models.MatchFound{
			ID:         matchID,
			ModeID:     mode,
			OpponentID: opponent,
			ExpiresIn:  expiresIn,
		}})
	}
	return pm.PendingMatch
}

// Accept records userID's acceptance. When every candidate has accepted the
// timer is cancelled, match_start goes out to all and the match is removed.
// It reports whether this acceptance completed the handshake.
func (q *MatchmakingQueue) Accept(matchID, userID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pm, ok := q.pending[matchID]
	if !ok || !pm.HasCandidate(userID) {
		return false, eris.Wrapf(ErrMatchNotFound, "pending match %s", matchID)
	}
	pm.Accepted[userID] = true
	if len(pm.Accepted) < len(pm.Candidates) {
		return false, nil
	}

	q.removePendingLocked(pm)

	target := q.cfg.JoinBaseURL + "/" + pm.ModeID + "/" + pm.ID
	for _, c := range pm.Candidates {
		token, exp, err := q.tokens.Issue(c.UserID, pm.ID, pm.ModeID)
		if err != nil {
			q.log.Error().Err(err).Str("match_id", pm.ID).Str("user_id", c.UserID).Msg("failed to issue match token")
		}
		q.sendTo(c, models.Envelope{Type: models.EventMatchStart, Payload: models.MatchStart{
			MatchID: pm.ID,
			ModeID:  pm.ModeID,
			JoinInfo: models.JoinInfo{
				MatchID:   pm.ID,
				Target:    target,
				Token:     token,
				ExpiresAt: exp,
			},
		}})
	}
	q.log.Info().Str("match_id", pm.ID).Msg("match accepted by all candidates")
	return true, nil
}

// Decline cancels the pending match for every candidate.
func (q *MatchmakingQueue) Decline(matchID, userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pm, ok := q.pending[matchID]
	if !ok || !pm.HasCandidate(userID) {
		return eris.Wrapf(ErrMatchNotFound, "pending match %s", matchID)
	}
	q.cancelLocked(pm, models.CancelReasonDeclined)
	return nil
}

// Expire is the accept-timer callback. An already resolved match is a no-op.
func (q *MatchmakingQueue) Expire(matchID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	pm, ok := q.pending[matchID]
	if !ok {
		return false
	}
	q.cancelLocked(pm, models.CancelReasonTimeout)
	return true
}

func (q *MatchmakingQueue) cancelLocked(pm *pendingMatch, reason string) {
	q.removePendingLocked(pm)
	env := models.Envelope{Type: models.EventMatchCancelled, Payload: models.MatchCancelled{MatchID: pm.ID, Reason: reason}}
	for _, c := range pm.Candidates {
		q.sendTo(c, env)
	}
	q.log.Info().Str("match_id", pm.ID).Str("reason", reason).Msg("pending match cancelled")
}

// removePendingLocked is the only place a PendingMatch leaves the map, so the
// timer is cancelled exactly once.
func (q *MatchmakingQueue) removePendingLocked(pm *pendingMatch) {
	delete(q.pending, pm.ID)
	pm.cancelExpiry()
}

func (q *MatchmakingQueue) sendTo(e models.QueuedEntry, env models.Envelope) {
	if err := e.Handle.Send(env); err != nil {
		q.log.Debug().Err(err).Str("user_id", e.UserID).Str("event", env.Type).Msg("send failed")
	}
}

func (q *MatchmakingQueue) isQueuedLocked(userID, mode string) bool {
	for _, e := range q.entries {
		if e.UserID == userID && e.ModeID == mode {
			return true
		}
	}
	return false
}

// Pending returns a copy of a pending match.
func (q *MatchmakingQueue) Pending(matchID string) (models.PendingMatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pm, ok := q.pending[matchID]
	if !ok {
		return models.PendingMatch{}, false
	}
	out := *pm.PendingMatch
	out.Candidates = append([]models.QueuedEntry(nil), pm.Candidates...)
	out.Accepted = make(map[string]bool, len(pm.Accepted))
	for k, v := range pm.Accepted {
		out.Accepted[k] = v
	}
	return out, true
}

// Entries returns a copy of the waiting list in queue order.
func (q *MatchmakingQueue) Entries() []models.QueuedEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.QueuedEntry(nil), q.entries...)
}

func (q *MatchmakingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *MatchmakingQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
