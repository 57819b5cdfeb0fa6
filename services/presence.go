package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"game-session-system/models"
)

// PresenceMirror receives a copy of presence changes. The registry stays authoritative.
type PresenceMirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

// PresenceRegistry maps a user to the connection they are reachable on.
// Registering a user that already has a handle replaces it: the last
// connection wins and the superseded one is not closed.
type PresenceRegistry struct {
	mu      sync.RWMutex
	handles map[string]models.Handle

	// writeMu serializes register/unregister so presence broadcasts go out in
	// the same order the map changed.
	writeMu sync.Mutex

	mirror        PresenceMirror
	mirrorTimeout time.Duration
	changes       chan presenceChange
	done          chan struct{}
	closeOnce     sync.Once
	log           zerolog.Logger
}

type presenceChange struct {
	userID string
	online bool
}

// mirrorQueueSize bounds pending mirror writes. Overflow is dropped and
// left to the presence sync worker.
const mirrorQueueSize = 1024

// NewPresenceRegistry builds a registry. A non-nil mirror is fed from one
// background goroutine in change order; call Close to stop it.
func NewPresenceRegistry(logger zerolog.Logger, mirror PresenceMirror) *PresenceRegistry {
	r := &PresenceRegistry{
		handles:       make(map[string]models.Handle),
		mirror:        mirror,
		mirrorTimeout: 2 * time.Second,
		done:          make(chan struct{}),
		log:           logger.With().Str("component", "presence").Logger(),
	}
	if mirror != nil {
		r.changes = make(chan presenceChange, mirrorQueueSize)
		go r.runMirror()
	}
	return r
}

// Close stops the mirror goroutine. Pending mirror writes are abandoned.
func (r *PresenceRegistry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Register maps userID to h, broadcasts presence-online to everyone else and
// replays the current online set to h. It returns the superseded handle, if any.
func (r *PresenceRegistry) Register(userID string, h models.Handle) models.Handle {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	prev := r.handles[userID]
	r.handles[userID] = h
	others := make(map[string]models.Handle, len(r.handles)-1)
	for id, oh := range r.handles {
		if id != userID {
			others[id] = oh
		}
	}
	r.mu.Unlock()

	if prev != nil && prev.ID() != h.ID() {
		r.log.Warn().Str("user_id", userID).Str("old_conn", prev.ID()).Str("new_conn", h.ID()).
			Msg("presence replaced by newer connection")
	}

	online := models.Envelope{Type: models.EventPresenceUpdate, Payload: models.PresenceUpdate{UserID: userID, Status: models.PresenceOnline}}
	for _, id := range sortedKeys(others) {
		r.send(id, others[id], online)
		r.send(userID, h, models.Envelope{
			Type:    models.EventPresenceUpdate,
			Payload: models.PresenceUpdate{UserID: id, Status: models.PresenceOnline},
		})
	}

	r.mirrorChange(userID, true)
	return prev
}

// Unregister removes userID only while it is still mapped to h, so a late
// disconnect of a superseded connection cannot take the newer one offline.
// It reports whether the mapping was removed.
func (r *PresenceRegistry) Unregister(userID string, h models.Handle) bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	cur, ok := r.handles[userID]
	if !ok || (h != nil && cur.ID() != h.ID()) {
		r.mu.Unlock()
		return false
	}
	delete(r.handles, userID)
	others := make(map[string]models.Handle, len(r.handles))
	for id, oh := range r.handles {
		others[id] = oh
	}
	r.mu.Unlock()

	offline := models.Envelope{Type: models.EventPresenceUpdate, Payload: models.PresenceUpdate{UserID: userID, Status: models.PresenceOffline}}
	for _, id := range sortedKeys(others) {
		r.send(id, others[id], offline)
	}

	r.mirrorChange(userID, false)
	return true
}

// Lookup returns the live handle for userID.
func (r *PresenceRegistry) Lookup(userID string) (models.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[userID]
	return h, ok
}

// Online lists every registered user id, sorted.
func (r *PresenceRegistry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.handles)
}

func (r *PresenceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// SendTo delivers env to each listed user that is online, in list order.
func (r *PresenceRegistry) SendTo(userIDs []string, env models.Envelope) {
	for _, id := range userIDs {
		if h, ok := r.Lookup(id); ok {
			r.send(id, h, env)
		}
	}
}

func (r *PresenceRegistry) send(userID string, h models.Handle, env models.Envelope) {
	if err := h.Send(env); err != nil {
		r.log.Debug().Err(err).Str("user_id", userID).Str("event", env.Type).Msg("send failed")
	}
}

// mirrorChange queues a mirror write without waiting on the network.
// It runs under writeMu, so the queue holds changes in map order.
func (r *PresenceRegistry) mirrorChange(userID string, online bool) {
	if r.changes == nil {
		return
	}
	select {
	case r.changes <- presenceChange{userID: userID, online: online}:
	default:
		r.log.Warn().Str("user_id", userID).Bool("online", online).Msg("presence mirror queue full, change dropped")
	}
}

func (r *PresenceRegistry) runMirror() {
	for {
		select {
		case change := <-r.changes:
			r.applyMirror(change)
		case <-r.done:
			return
		}
	}
}

func (r *PresenceRegistry) applyMirror(change presenceChange) {
	ctx, cancel := context.WithTimeout(context.Background(), r.mirrorTimeout)
	defer cancel()

	var err error
	if change.online {
		err = r.mirror.Online(ctx, change.userID)
	} else {
		err = r.mirror.Offline(ctx, change.userID)
	}
	if err != nil {
		r.log.Error().Err(err).Str("user_id", change.userID).Bool("online", change.online).Msg("presence mirror update failed")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
