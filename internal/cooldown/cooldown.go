// Package cooldown rate-limits repeated actions per key.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether an action keyed by key may run now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Redis allows one action per key per window. The first caller sets a key
// that expires after the window; everyone else finds it taken.
type Redis struct {
	client redis.Cmdable
	window time.Duration
	prefix string
}

func NewRedis(client redis.Cmdable, window time.Duration) *Redis {
	return &Redis{client: client, window: window, prefix: "campfire:cooldown:"}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, 1, l.window).Result()
	if err != nil {
		return false, fmt.Errorf("setting cooldown key: %w", err)
	}
	return ok, nil
}

// Unlimited allows everything. It stands in when no Redis is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
