package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/promo-checkout/internal/domain/checkout"
)

var ErrCacheMiss = errors.New("cache miss")

// SearchCache caches search results keyed by normalized query.
type SearchCache interface {
	Get(ctx context.Context, query string) ([]checkout.Track, error)
	Set(ctx context.Context, query string, tracks []checkout.Track) error
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, query string) ([]checkout.Track, error) {
	data, err := r.client.Get(ctx, cacheKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var tracks []checkout.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("unmarshal tracks failed: %w", err)
	}
	return tracks, nil
}

func (r RedisCache) Set(ctx context.Context, query string, tracks []checkout.Track) error {
	data, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("marshal tracks failed: %w", err)
	}

	// Jitter spreads expiry so popular queries do not refill at once.
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(query), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(query string) string {
	return fmt.Sprintf("track-search:%s", query)
}
