package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveMatchSnapshotIsDeep(t *testing.T) {
	ended := time.Now()
	m := &LiveMatch{
		ID:      "m1",
		Players: map[string]*PlayerScore{"u1": {Kills: 2, DisplayName: "one"}},
		TeamOf:  map[string]Team{"u1": TeamRed},
		EndedAt: &ended,
	}

	snap := m.Snapshot()
	m.Players["u1"].Kills = 9
	m.TeamOf["u1"] = TeamBlue
	*m.EndedAt = ended.Add(time.Hour)

	require.Contains(t, snap.Players, "u1")
	assert.Equal(t, 2, snap.Players["u1"].Kills)
	assert.Equal(t, TeamRed, snap.TeamOf["u1"])
	assert.Equal(t, ended, *snap.EndedAt)
}

func TestPartyClone(t *testing.T) {
	p := &Party{ID: "p1", LeaderID: "u1", Members: []PartyMember{{UserID: "u1", IsLeader: true}}}
	c := p.Clone()
	p.Members[0].IsReady = true
	p.Members = append(p.Members, PartyMember{UserID: "u2"})

	assert.Len(t, c.Members, 1)
	assert.False(t, c.Members[0].IsReady)
	assert.Equal(t, []string{"u1", "u2"}, p.MemberIDs())
	assert.Nil(t, (*Party)(nil).Clone())
}
