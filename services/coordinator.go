package services

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"game-session-system/models"
)

// Inbound message names.
const (
	MsgCreateParty   = "create_party"
	MsgJoinParty     = "join_party"
	MsgLeaveParty    = "leave_party"
	MsgKickMember    = "kick_member"
	MsgToggleReady   = "toggle_ready"
	MsgStartQueue    = "start_queue"
	MsgCancelQueue   = "cancel_queue"
	MsgAcceptMatch   = "accept_match"
	MsgDeclineMatch  = "decline_match"
	MsgJoinMatch     = "join_match"
	MsgPlayerUpdate  = "player_update"
	MsgPlayerShoot   = "player_shoot"
	MsgFlagAction    = "flag_action"
	MsgPlayerHit     = "player_hit"
	MsgPlayerDied    = "player_died"
	MsgPlayerRespawn = "player_respawn"
	MsgPing          = "ping"
)

// MatchTokenVerifier checks the token a player presents on join_match.
type MatchTokenVerifier interface {
	Verify(token, userID, matchID string) error
}

// FrameConn is a websocket connection as seen by the session read loop.
type FrameConn interface {
	FrameWriter
	ReadMessage() (messageType int, p []byte, err error)
}

// Session is the per-connection state of an authenticated user.
type Session struct {
	UserID      string
	DisplayName string
	Handle      models.Handle

	mu      sync.Mutex
	matchID string
}

// MatchID is the match the session last joined.
func (s *Session) MatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

func (s *Session) setMatchID(id string) {
	s.mu.Lock()
	s.matchID = id
	s.mu.Unlock()
}

type handlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) error

type CoordinatorConfig struct {
	SendBuffer        int
	RequireMatchToken bool
}

// Coordinator drives the connection lifecycle and routes inbound messages
// through a single dispatch table.
type Coordinator struct {
	auth     Authenticator
	presence *PresenceRegistry
	parties  *PartyRegistry
	queue    *MatchmakingQueue
	matches  *MatchSessionStore
	tokens   MatchTokenVerifier
	cfg      CoordinatorConfig
	handlers map[string]handlerFunc
	log      zerolog.Logger
}

func NewCoordinator(
	logger zerolog.Logger,
	auth Authenticator,
	presence *PresenceRegistry,
	parties *PartyRegistry,
	queue *MatchmakingQueue,
	matches *MatchSessionStore,
	tokens MatchTokenVerifier,
	cfg CoordinatorConfig,
) *Coordinator {
	c := &Coordinator{
		auth:     auth,
		presence: presence,
		parties:  parties,
		queue:    queue,
		matches:  matches,
		tokens:   tokens,
		cfg:      cfg,
		log:      logger.With().Str("component", "coordinator").Logger(),
	}
	c.handlers = map[string]handlerFunc{
		MsgCreateParty:   c.handleCreateParty,
		MsgJoinParty:     c.handleJoinParty,
		MsgLeaveParty:    c.handleLeaveParty,
		MsgKickMember:    c.handleKickMember,
		MsgToggleReady:   c.handleToggleReady,
		MsgStartQueue:    c.handleStartQueue,
		MsgCancelQueue:   c.handleCancelQueue,
		MsgAcceptMatch:   c.handleAcceptMatch,
		MsgDeclineMatch:  c.handleDeclineMatch,
		MsgJoinMatch:     c.handleJoinMatch,
		MsgPlayerUpdate:  c.relay(MsgPlayerUpdate),
		MsgPlayerShoot:   c.relay(MsgPlayerShoot),
		MsgFlagAction:    c.relay(MsgFlagAction),
		MsgPlayerHit:     c.handlePlayerHit,
		MsgPlayerDied:    c.handlePlayerDied,
		MsgPlayerRespawn: c.handlePlayerRespawn,
		MsgPing:          c.handlePing,
	}
	return c
}

// Authenticate verifies the credential presented at connect time.
func (c *Coordinator) Authenticate(ctx context.Context, credential string) (Identity, error) {
	id, err := c.auth.Authenticate(ctx, credential)
	if err != nil {
		return Identity{}, eris.Wrap(err, "connection refused")
	}
	return id, nil
}

// Connect registers an authenticated connection in presence.
func (c *Coordinator) Connect(id Identity, h models.Handle) *Session {
	c.presence.Register(id.UserID, h)
	c.log.Info().Str("user_id", id.UserID).Str("conn_id", h.ID()).Msg("session connected")
	return &Session{UserID: id.UserID, DisplayName: id.DisplayName, Handle: h}
}

// Disconnect takes the user offline and out of the queue. Party membership
// is kept. A superseded connection leaves presence and queue alone.
func (c *Coordinator) Disconnect(s *Session) {
	if !c.presence.Unregister(s.UserID, s.Handle) {
		c.log.Info().Str("user_id", s.UserID).Str("conn_id", s.Handle.ID()).Msg("superseded session closed")
		return
	}
	removed := c.queue.Dequeue(s.UserID)
	c.log.Info().Str("user_id", s.UserID).Int("dequeued", removed).Msg("session disconnected")
}

// Serve runs the read loop for an authenticated websocket until it closes.
func (c *Coordinator) Serve(ctx context.Context, conn FrameConn, id Identity) {
	handle := NewConnection(conn, c.cfg.SendBuffer, c.log)
	s := c.Connect(id, handle)
	defer func() {
		c.Disconnect(s)
		_ = handle.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Str("user_id", s.UserID).Msg("read loop ended")
			return
		}
		c.HandleMessage(ctx, s, msg)
	}
}

// HandleMessage decodes one frame and dispatches it. Failures are reported
// to the caller as an error envelope; the connection stays open.
func (c *Coordinator) HandleMessage(ctx context.Context, s *Session, raw []byte) {
	var in struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		c.replyError(s, "", eris.Wrap(ErrBadRequest, "malformed frame"))
		return
	}

	handler, ok := c.handlers[in.Type]
	if !ok {
		c.replyError(s, in.Type, eris.Wrapf(ErrBadRequest, "unknown message type %q", in.Type))
		return
	}
	if err := handler(ctx, s, in.Payload); err != nil {
		c.replyError(s, in.Type, err)
	}
}

func (c *Coordinator) replyError(s *Session, request string, err error) {
	code := ErrorCode(err)
	ev := c.log.Info()
	if code == CodeInternal {
		ev = c.log.Error()
	}
	ev.Err(err).Str("user_id", s.UserID).Str("request", request).Str("code", code).Msg("request failed")

	message := err.Error()
	if code == CodeInternal {
		message = "internal error"
	}
	_ = s.Handle.Send(models.Envelope{Type: models.EventError, Payload: models.ErrorPayload{
		Code:    code,
		Message: message,
		Request: request,
	}})
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return eris.Wrap(ErrBadRequest, "malformed payload")
	}
	return nil
}

func (c *Coordinator) handleCreateParty(_ context.Context, s *Session, _ json.RawMessage) error {
	c.parties.Create(s.UserID, s.DisplayName)
	return nil
}

func (c *Coordinator) handleJoinParty(_ context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		PartyID string `json:"partyId"`
	}
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, _, err := c.parties.Join(req.PartyID, s.UserID, s.DisplayName)
	return err
}

func (c *Coordinator) handleLeaveParty(_ context.Context, s *Session, _ json.RawMessage) error {
	c.parties.Leave(s.UserID)
	return nil
}

func (c *Coordinator) handleKickMember(_ context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		PartyID      string `json:"partyId"`
		TargetUserID string `json:"targetUserId"`
	}
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := c.parties.Kick(req.PartyID, s.UserID, req.TargetUserID)
	return err
}

func (c *Coordinator) handleToggleReady(_ context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		PartyID string `json:"partyId"`
		UserID  string `json:"userId"`
	}
	if err := decode(payload, &req); err != nil {
		return err
	}
	if req.UserID == "" {
		req.UserID = s.UserID
	}
	if req.UserID != s.UserID {
		return eris.Wrap(ErrPermissionDenied, "cannot toggle another member's ready state")
	}
	_, err := c.parties.ToggleReady(req.PartyID, req.UserID)
	return err
}

func (c *Coordinator) handleStartQueue(_ context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		ModeID string `json:"modeId"`
	}
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := c.queue.Enqueue(s.UserID, req.ModeID)
	return err
}

func (c *Coordinator) handleCancelQueue(_ context.Context, s *Session, _ json.RawMessage) error {
	c.queue.Dequeue(s.UserID)
	return nil
}

type matchRef struct {
	MatchID string `json:"matchId"`
	Token   string `json:"token,omitempty"`
}

func (c *Coordinator) handleAcceptMatch(_ context.Context, s *Session, payload json.RawMessage) error {
	var req matchRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := c.queue.Accept(req.MatchID, s.UserID)
	return err
}

func (c *Coordinator) handleDeclineMatch(_ context.Context, s *Session, payload json.RawMessage) error {
	var req matchRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	return c.queue.Decline(req.MatchID, s.UserID)
}

func (c *Coordinator) handleJoinMatch(_ context.Context, s *Session, payload json.RawMessage) error {
	var req matchRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	if req.MatchID == "" {
		return eris.Wrap(ErrBadRequest, "matchId is required")
	}
	if c.cfg.RequireMatchToken {
		if err := c.tokens.Verify(req.Token, s.UserID, req.MatchID); err != nil {
			return err
		}
	}
	if _, _, err := c.matches.Join(req.MatchID, s.UserID, s.DisplayName); err != nil {
		return err
	}
	s.setMatchID(req.MatchID)
	return nil
}

// relay forwards the raw payload of an in-match telemetry message.
func (c *Coordinator) relay(eventType string) handlerFunc {
	return func(_ context.Context, s *Session, payload json.RawMessage) error {
		matchID, err := currentMatch(s)
		if err != nil {
			return err
		}
		return c.matches.Relay(matchID, s.UserID, eventType, payload)
	}
}

func (c *Coordinator) handlePlayerHit(_ context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		TargetID    string `json:"targetId"`
		Damage      int    `json:"damage"`
		HitLocation string `json:"hitLocation"`
	}
	if err := decode(payload, &req); err != nil {
		return err
	}
	matchID, err := currentMatch(s)
	if err != nil {
		return err
	}
	return c.matches.Hit(matchID, s.UserID, req.TargetID, req.Damage, req.HitLocation)
}

func (c *Coordinator) handlePlayerDied(ctx context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		AttackerID string `json:"attackerId"`
		WeaponType string `json:"weaponType"`
	}
	if err := decode(payload, &req); err != nil {
		return err
	}
	matchID, err := currentMatch(s)
	if err != nil {
		return err
	}
	_, err = c.matches.Death(ctx, matchID, s.UserID, req.AttackerID, req.WeaponType)
	return err
}

func (c *Coordinator) handlePlayerRespawn(_ context.Context, s *Session, _ json.RawMessage) error {
	c.matches.Respawn(s.MatchID(), s.UserID)
	return nil
}

func (c *Coordinator) handlePing(_ context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		Ping int `json:"ping"`
	}
	if err := decode(payload, &req); err != nil {
		return err
	}
	matchID := s.MatchID()
	if matchID == "" {
		return nil
	}
	return c.matches.UpdatePing(matchID, s.UserID, req.Ping)
}

func currentMatch(s *Session) (string, error) {
	matchID := s.MatchID()
	if matchID == "" {
		return "", eris.Wrap(ErrMatchNotFound, "join a match first")
	}
	return matchID, nil
}
