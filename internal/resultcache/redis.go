package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/igrek51/connect4solver/internal/game"
	"github.com/igrek51/connect4solver/internal/storage"
)

const keyPrefix = "c4:solution:"

// Redis caches solved top-level positions in front of the store. A nil
// *Redis is a cache that never hits.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// InitRedis connects to url and pings it, retrying a few times.
func InitRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	err = retry.Do(
		func() error { return client.Ping(ctx).Err() },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging Redis: %w", err)
	}
	return New(client, ttl), nil
}

func New(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func Key(b *game.Board, perspective, mover game.Player) string {
	return keyPrefix + storage.SolutionKey(b, perspective, mover)
}

// Get returns the cached solution for the position, if any. Entries
// that turn out to describe another position count as misses.
func (r *Redis) Get(ctx context.Context, b *game.Board, perspective, mover game.Player) (storage.Solution, bool, error) {
	if r == nil || r.client == nil {
		return storage.Solution{}, false, nil
	}
	data, err := r.client.Get(ctx, Key(b, perspective, mover)).Bytes()
	if errors.Is(err, redis.Nil) {
		return storage.Solution{}, false, nil
	}
	if err != nil {
		return storage.Solution{}, false, err
	}
	var sol storage.Solution
	if err := json.Unmarshal(data, &sol); err != nil {
		return storage.Solution{}, false, fmt.Errorf("decoding cached solution: %w", err)
	}
	if !sol.Matches(b, perspective, mover) {
		log.Warn().Str("key", sol.Key).Msg("result-cache-layout-mismatch")
		return storage.Solution{}, false, nil
	}
	return sol, true, nil
}

func (r *Redis) Set(ctx context.Context, sol storage.Solution) error {
	if r == nil || r.client == nil {
		return nil
	}
	data, err := json.Marshal(sol)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+sol.Key, data, r.ttl).Err()
}

func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
