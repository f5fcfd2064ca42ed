package segment

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "segment:"

// CachedResolver wraps a Resolver with a Redis read-through cache. Cache
// failures are logged and fall through to the inner resolver; a stale segment
// is acceptable for the cache TTL.
type CachedResolver struct {
	inner  Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedResolver creates a Redis-cached resolver around inner.
func NewCachedResolver(inner Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Resolve returns the cached segment when present, otherwise asks the inner
// resolver and populates the cache.
func (r *CachedResolver) Resolve(ctx context.Context, customerID string) (string, error) {
	key := keyPrefix + customerID

	cached, err := r.client.Get(ctx, key).Result()
	if err == nil {
		return cached, nil
	}
	if err != redis.Nil {
		r.logger.WarnContext(ctx, "segment cache read failed",
			slog.String("customer_id", customerID),
			slog.String("error", err.Error()),
		)
	}

	seg, err := r.inner.Resolve(ctx, customerID)
	if err != nil {
		return "", err
	}

	if err := r.client.Set(ctx, key, seg, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "segment cache write failed",
			slog.String("customer_id", customerID),
			slog.String("error", err.Error()),
		)
	}

	return seg, nil
}
