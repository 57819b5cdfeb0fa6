package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"game-session-system/models"
)

// recordingHandle captures every envelope sent to it.
type recordingHandle struct {
	id string

	mu     sync.Mutex
	sent   []models.Envelope
	closed bool
}

func newHandle(id string) *recordingHandle {
	return &recordingHandle{id: id}
}

func (h *recordingHandle) ID() string { return h.id }

func (h *recordingHandle) Send(env models.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrConnectionClosed
	}
	h.sent = append(h.sent, env)
	return nil
}

func (h *recordingHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *recordingHandle) envelopes() []models.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Envelope(nil), h.sent...)
}

func (h *recordingHandle) types() []string {
	var out []string
	for _, env := range h.envelopes() {
		out = append(out, env.Type)
	}
	return out
}

func (h *recordingHandle) ofType(eventType string) []models.Envelope {
	var out []models.Envelope
	for _, env := range h.envelopes() {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (h *recordingHandle) count(eventType string) int {
	return len(h.ofType(eventType))
}

func (h *recordingHandle) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = nil
}

// manualScheduler fires timers only when the test says so.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	d         time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (s *manualScheduler) After(d time.Duration, fn func()) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		t.cancelled = true
		s.mu.Unlock()
	}, nil
}

// fireAll runs every armed timer, including cancelled ones when force is set,
// to simulate a callback that lost the race with a cancel.
func (s *manualScheduler) fireAll(force bool) {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if t.fired || (t.cancelled && !force) {
			continue
		}
		t.fired = true
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func (s *manualScheduler) armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.cancelled && !t.fired {
			n++
		}
	}
	return n
}

// fakeStats records outcomes and can fail for chosen users.
type fakeStats struct {
	mu       sync.Mutex
	outcomes []ParticipantOutcome
	failFor  map[string]error
}

func (f *fakeStats) RecordMatchResult(_ context.Context, o ParticipantOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[o.UserID]; ok {
		return err
	}
	f.outcomes = append(f.outcomes, o)
	return nil
}

func (f *fakeStats) recorded() []ParticipantOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ParticipantOutcome(nil), f.outcomes...)
}

type fakeArchiver struct {
	mu        sync.Mutex
	snapshots []*models.LiveMatch
}

func (f *fakeArchiver) Archive(_ context.Context, snap *models.LiveMatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	return nil
}

// world wires every registry the way main does, with fakes at the edges.
type world struct {
	presence *PresenceRegistry
	parties  *PartyRegistry
	queue    *MatchmakingQueue
	matches  *MatchSessionStore
	tokens   *MatchTokenIssuer
	sched    *manualScheduler
	stats    *fakeStats
	archiver *fakeArchiver
	coord    *Coordinator
	handles  map[string]*recordingHandle
	conns    int
}

const testSecret = "test-secret"

func newWorld(t *testing.T) *world {
	t.Helper()
	logger := zerolog.Nop()

	w := &world{
		sched:    &manualScheduler{},
		stats:    &fakeStats{failFor: map[string]error{}},
		archiver: &fakeArchiver{},
		tokens:   NewMatchTokenIssuer(testSecret, 5*time.Minute),
		handles:  map[string]*recordingHandle{},
	}
	w.presence = NewPresenceRegistry(logger, nil)
	w.parties = NewPartyRegistry(logger, w.presence)
	w.queue = NewMatchmakingQueue(logger, w.presence, w.parties, w.tokens, w.sched, QueueConfig{
		AcceptTimeout: 11 * time.Second,
		JoinBaseURL:   "/match",
	})
	w.matches = NewMatchSessionStore(logger, w.presence, w.stats, w.archiver, MatchStoreConfig{
		KillThreshold:  25,
		PersistTimeout: time.Second,
	})
	w.coord = NewCoordinator(logger, NewJWTAuthenticator(testSecret), w.presence, w.parties, w.queue, w.matches, w.tokens,
		CoordinatorConfig{SendBuffer: 16})
	return w
}

func (w *world) newHandle(userID string) *recordingHandle {
	w.conns++
	return newHandle(fmt.Sprintf("conn-%s-%d", userID, w.conns))
}

// connect registers userID with a fresh recording handle.
func (w *world) connect(userID string) *recordingHandle {
	h := w.newHandle(userID)
	w.presence.Register(userID, h)
	w.handles[userID] = h
	return h
}

// session connects userID through the coordinator.
func (w *world) session(userID string) (*Session, *recordingHandle) {
	h := w.newHandle(userID)
	s := w.coord.Connect(Identity{UserID: userID, DisplayName: userID}, h)
	w.handles[userID] = h
	return s, h
}

func requireEnvelope(t *testing.T, h *recordingHandle, eventType string) models.Envelope {
	t.Helper()
	envs := h.ofType(eventType)
	require.NotEmpty(t, envs, "%s never received %s, got %v", h.id, eventType, h.types())
	return envs[len(envs)-1]
}
