package services

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// PresenceKey is the Redis set holding online user ids.
const PresenceKey = "presence:online"

// RedisPresenceMirror keeps a Redis set in step with the PresenceRegistry so
// other services can read who is online.
type RedisPresenceMirror struct {
	client *redis.Client
	key    string
}

func NewRedisPresenceMirror(client *redis.Client) *RedisPresenceMirror {
	return &RedisPresenceMirror{client: client, key: PresenceKey}
}

func (m *RedisPresenceMirror) Online(ctx context.Context, userID string) error {
	return eris.Wrapf(m.client.SAdd(ctx, m.key, userID).Err(), "failed to mark %s online", userID)
}

func (m *RedisPresenceMirror) Offline(ctx context.Context, userID string) error {
	return eris.Wrapf(m.client.SRem(ctx, m.key, userID).Err(), "failed to mark %s offline", userID)
}

// Replace swaps the whole set for userIDs in one transaction.
func (m *RedisPresenceMirror) Replace(ctx context.Context, userIDs []string) error {
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.key)
		if len(userIDs) > 0 {
			members := make([]interface{}, len(userIDs))
			for i, id := range userIDs {
				members[i] = id
			}
			pipe.SAdd(ctx, m.key, members...)
		}
		return nil
	})
	return eris.Wrap(err, "failed to replace presence set")
}

func (m *RedisPresenceMirror) Members(ctx context.Context) ([]string, error) {
	members, err := m.client.SMembers(ctx, m.key).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to read presence set")
	}
	return members, nil
}
