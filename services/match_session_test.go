package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-session-system/models"
)

func TestJoinBalancesTeams(t *testing.T) {
	w := newWorld(t)
	h1, h2 := w.connect("u1"), w.connect("u2")
	w.connect("u3")

	_, team1, err := w.matches.Join("m1", "u1", "One")
	require.NoError(t, err)
	_, team2, err := w.matches.Join("m1", "u2", "Two")
	require.NoError(t, err)
	_, team3, err := w.matches.Join("m1", "u3", "Three")
	require.NoError(t, err)

	assert.Equal(t, models.TeamRed, team1)
	assert.Equal(t, models.TeamBlue, team2)
	assert.Equal(t, models.TeamRed, team3)

	// u1 saw u2 and u3 arrive
	joined := h1.ofType(models.EventPlayerJoined)
	require.Len(t, joined, 2)
	assert.Equal(t, models.PlayerJoined{UserID: "u2", Team: models.TeamBlue}, joined[0].Payload)

	// u2 got the full state on join
	state := requireEnvelope(t, h2, models.EventMatchState).Payload.(*models.LiveMatch)
	assert.Len(t, state.Players, 2)
	assert.Equal(t, models.TeamRed, state.TeamOf["u1"])
}

func TestRejoinKeepsTeam(t *testing.T) {
	w := newWorld(t)
	w.connect("u1")
	w.connect("u2")

	_, _, _ = w.matches.Join("m1", "u1", "One")
	_, _, _ = w.matches.Join("m1", "u2", "Two")
	snap, team, err := w.matches.Join("m1", "u2", "Two")
	require.NoError(t, err)
	assert.Equal(t, models.TeamBlue, team)
	assert.Len(t, snap.Players, 2)
}

func TestDeathScoresAndBroadcastsInOrder(t *testing.T) {
	w := newWorld(t)
	h1, h2 := w.connect("u1"), w.connect("u2")
	_, _, _ = w.matches.Join("m1", "u1", "One")
	_, _, _ = w.matches.Join("m1", "u2", "Two")
	h1.reset()
	h2.reset()

	ended, err := w.matches.Death(context.Background(), "m1", "u2", "u1", "rifle")
	require.NoError(t, err)
	assert.False(t, ended)

	for _, h := range []*recordingHandle{h1, h2} {
		assert.Equal(t, []string{models.EventPlayerKilled, models.EventScoreUpdate}, h.types())
		score := requireEnvelope(t, h, models.EventScoreUpdate).Payload.(*models.LiveMatch)
		assert.Equal(t, 1, score.Players["u1"].Kills)
		assert.Equal(t, 1, score.Players["u2"].Deaths)
		assert.Zero(t, score.Players["u1"].Deaths)
	}
}

func TestDeathIgnoresUnknownPlayers(t *testing.T) {
	w := newWorld(t)
	w.connect("u1")
	_, _, _ = w.matches.Join("m1", "u1", "One")

	_, err := w.matches.Death(context.Background(), "m1", "u1", "stranger", "knife")
	require.NoError(t, err)

	snap, ok := w.matches.Snapshot("m1")
	require.True(t, ok)
	assert.Equal(t, 1, snap.Players["u1"].Deaths)
	assert.NotContains(t, snap.Players, "stranger")

	_, err = w.matches.Death(context.Background(), "nope", "u1", "u2", "knife")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestKillThresholdEndsMatchOnce(t *testing.T) {
	w := newWorld(t)
	h1, h2 := w.connect("u1"), w.connect("u2")
	_, _, _ = w.matches.Join("m1", "u1", "One")
	_, _, _ = w.matches.Join("m1", "u2", "Two")

	ctx := context.Background()
	for i := 0; i < 24; i++ {
		ended, err := w.matches.Death(ctx, "m1", "u2", "u1", "rifle")
		require.NoError(t, err)
		require.False(t, ended)
	}
	ended, err := w.matches.Death(ctx, "m1", "u2", "u1", "rifle")
	require.NoError(t, err)
	assert.True(t, ended)

	_, err = w.matches.Death(ctx, "m1", "u2", "u1", "rifle")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.False(t, w.matches.EndMatch(ctx, "m1"))

	for _, h := range []*recordingHandle{h1, h2} {
		assert.Equal(t, 1, h.count(models.EventMatchEnded))
		types := h.types()
		assert.Equal(t, models.EventMatchEnded, types[len(types)-1])
	}
	final := requireEnvelope(t, h1, models.EventMatchEnded).Payload.(*models.LiveMatch)
	assert.Equal(t, 25, final.Players["u1"].Kills)
	assert.NotNil(t, final.EndedAt)

	_, ok := w.matches.Snapshot("m1")
	assert.False(t, ok)
	assert.Zero(t, w.matches.Count())

	outcomes := w.stats.recorded()
	require.Len(t, outcomes, 2)
	byUser := map[string]ParticipantOutcome{}
	for _, o := range outcomes {
		byUser[o.UserID] = o
	}
	assert.True(t, byUser["u1"].Won)
	assert.Equal(t, 25, byUser["u1"].Kills)
	assert.False(t, byUser["u2"].Won)
	assert.Equal(t, 25, byUser["u2"].Deaths)
	assert.Equal(t, models.TeamBlue, byUser["u2"].Team)

	require.Len(t, w.archiver.snapshots, 1)
	assert.Equal(t, "m1", w.archiver.snapshots[0].ID)
}

func TestEndMatchIsolatesPersistenceFailures(t *testing.T) {
	w := newWorld(t)
	for _, id := range []string{"u1", "u2", "u3"} {
		w.connect(id)
		_, _, err := w.matches.Join("m1", id, id)
		require.NoError(t, err)
	}
	w.stats.failFor["u2"] = errors.New("connection refused")

	assert.True(t, w.matches.EndMatch(context.Background(), "m1"))

	var users []string
	for _, o := range w.stats.recorded() {
		users = append(users, o.UserID)
	}
	assert.ElementsMatch(t, []string{"u1", "u3"}, users)
	assert.Zero(t, w.matches.Count(), "match is removed even when a write fails")
}

func TestEndMatchUnknownIsNoop(t *testing.T) {
	w := newWorld(t)
	assert.False(t, w.matches.EndMatch(context.Background(), "nope"))
	assert.Empty(t, w.stats.recorded())
}

func TestJoinEndedMatchIsRejected(t *testing.T) {
	w := newWorld(t)
	w.connect("u1")
	_, _, _ = w.matches.Join("m1", "u1", "One")

	lm := w.matches.get("m1")
	lm.mu.Lock()
	final := w.matches.endLocked(lm)
	lm.mu.Unlock()
	require.NotNil(t, final)

	_, _, err := w.matches.Join("m1", "u1", "One")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestRelayAndHit(t *testing.T) {
	w := newWorld(t)
	h1, h2 := w.connect("u1"), w.connect("u2")
	_, _, _ = w.matches.Join("m1", "u1", "One")
	_, _, _ = w.matches.Join("m1", "u2", "Two")
	h1.reset()
	h2.reset()

	require.NoError(t, w.matches.Relay("m1", "u1", "player_update", map[string]any{"x": 1}))
	assert.Empty(t, h1.envelopes(), "sender does not get its own relay")
	relayed := requireEnvelope(t, h2, "player_update").Payload.(models.RelayedEvent)
	assert.Equal(t, "u1", relayed.UserID)

	require.NoError(t, w.matches.Hit("m1", "u1", "u2", 30, "head"))
	for _, h := range []*recordingHandle{h1, h2} {
		hit := requireEnvelope(t, h, models.EventPlayerDamaged).Payload.(models.PlayerDamaged)
		assert.Equal(t, models.PlayerDamaged{TargetID: "u2", AttackerID: "u1", Damage: 30, HitLocation: "head"}, hit)
	}

	snap, _ := w.matches.Snapshot("m1")
	assert.Zero(t, snap.Players["u2"].Deaths, "hits do not touch scores")

	assert.True(t, eris.Is(w.matches.Relay("nope", "u1", "player_update", nil), ErrNotFound))
}

func TestRespawnToleratesMissingMatch(t *testing.T) {
	w := newWorld(t)
	h1, h2 := w.connect("u1"), w.connect("u2")
	_, _, _ = w.matches.Join("m1", "u1", "One")
	_, _, _ = w.matches.Join("m1", "u2", "Two")

	w.matches.Respawn("m1", "u2")
	r := requireEnvelope(t, h1, models.EventPlayerRespawned).Payload.(models.PlayerRespawned)
	assert.Equal(t, models.TeamBlue, r.Team)

	h2.reset()
	w.matches.Respawn("gone", "u2")
	r = requireEnvelope(t, h2, models.EventPlayerRespawned).Payload.(models.PlayerRespawned)
	assert.Empty(t, r.Team)
}

func TestRespawnAfterEndReachesOnlyCaller(t *testing.T) {
	w := newWorld(t)
	h1, h2 := w.connect("u1"), w.connect("u2")
	_, _, _ = w.matches.Join("m1", "u1", "One")
	_, _, _ = w.matches.Join("m1", "u2", "Two")

	// ended but not yet torn down, as while results are being persisted
	lm := w.matches.get("m1")
	lm.mu.Lock()
	require.NotNil(t, w.matches.endLocked(lm))
	lm.mu.Unlock()

	w.matches.Respawn("m1", "u2")

	types := h1.types()
	assert.Equal(t, models.EventMatchEnded, types[len(types)-1], "match_ended stays the last event")
	assert.Zero(t, h1.count(models.EventPlayerRespawned))

	r := requireEnvelope(t, h2, models.EventPlayerRespawned).Payload.(models.PlayerRespawned)
	assert.Empty(t, r.Team)
}

func TestUpdatePing(t *testing.T) {
	w := newWorld(t)
	w.connect("u1")
	_, _, _ = w.matches.Join("m1", "u1", "One")

	require.NoError(t, w.matches.UpdatePing("m1", "u1", 42))
	snap, _ := w.matches.Snapshot("m1")
	assert.Equal(t, 42, snap.Players["u1"].Ping)

	assert.True(t, eris.Is(w.matches.UpdatePing("m1", "ghost", 1), ErrNotFound))
}
