package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

//go:generate mockgen -source=redis.go -destination=mock_redis.go -package=notify Publisher

// Publisher is the part of *redis.Client the sink uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes events on a per-user channel, user-{id}.
type Redis struct {
	client Publisher
}

func NewRedis(client Publisher) *Redis {
	return &Redis{client: client}
}

func Channel(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

func (r *Redis) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, Channel(event.UserID), body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel(event.UserID), err)
	}
	return nil
}
