package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-session-system/services"
)

type staticSource []string

func (s staticSource) Online() []string { return s }

type failingSink struct{}

func (failingSink) Replace(context.Context, []string) error { return errors.New("redis unavailable") }

func TestSyncOnceRepairsDriftedSet(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mirror := services.NewRedisPresenceMirror(client)

	// a crashed process left "ghost" behind and never recorded "u2"
	_, err := s.SAdd(services.PresenceKey, "ghost", "u1")
	require.NoError(t, err)

	w := NewPresenceSyncWorker(staticSource{"u1", "u2"}, mirror, time.Minute, zerolog.Nop())
	require.NoError(t, w.SyncOnce(context.Background()))

	members, err := s.Members(services.PresenceKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)
}

func TestSyncOnceSurfacesSinkErrors(t *testing.T) {
	w := NewPresenceSyncWorker(staticSource{"u1"}, failingSink{}, time.Minute, zerolog.Nop())
	assert.Error(t, w.SyncOnce(context.Background()))
}

func TestWorkerRunsUntilCancelled(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewPresenceSyncWorker(staticSource{"u1"}, services.NewRedisPresenceMirror(client), 10*time.Millisecond, zerolog.Nop())
	w.Start(ctx)

	assert.Eventually(t, func() bool {
		members, _ := s.Members(services.PresenceKey)
		return len(members) == 1 && members[0] == "u1"
	}, time.Second, 10*time.Millisecond)
}
