package infra_redis_presence

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Driver keeps a user -> current room hash so stale memberships from a
// previous session can be reconciled.
type Driver struct {
	client *redis.Client
	key    string
}

func New(
	client *redis.Client,
	key string,
) *Driver {
	return &Driver{
		client: client,
		key:    key,
	}
}

func (d *Driver) Track(ctx context.Context, userID, roomCode string) error {
	return d.client.HSet(ctx, d.key, userID, roomCode).Err()
}

func (d *Driver) Clear(ctx context.Context, userID string) error {
	return d.client.HDel(ctx, d.key, userID).Err()
}

func (d *Driver) RoomOf(ctx context.Context, userID string) (string, error) {
	code, err := d.client.HGet(ctx, d.key, userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return code, nil
}
