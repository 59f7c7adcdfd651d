package grpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type FetchFunc[T any] func(ctx context.Context) (T, error)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultSetTimeout   = 5 * time.Second

	// Entries older than this share of their TTL are refreshed on a hit.
	refreshAheadRatio = 0.5
)

// cachedEntry wraps a cached value with the time it was stored.
type cachedEntry[T any] struct {
	Value    T         `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// addTTLJitter spreads expiry by up to a tenth of ttl, capped at 30s either way.
func addTTLJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	spread := min(ttl/10, 30*time.Second)
	if spread <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(int64(2*spread))) - spread
}

func needsRefresh(storedAt time.Time, ttl time.Duration, now time.Time) bool {
	if storedAt.IsZero() || ttl <= 0 {
		return true
	}
	return now.Sub(storedAt) >= time.Duration(float64(ttl)*refreshAheadRatio)
}

func storeEntry[T any](c Cacher, key string, value T, ttl time.Duration, logger *zap.Logger) {
	setCtx, cancel := context.WithTimeout(context.Background(), defaultSetTimeout)
	defer cancel()

	ttlWithJitter := addTTLJitter(ttl)
	entry := cachedEntry[T]{Value: value, StoredAt: time.Now().UTC()}
	if err := c.Set(setCtx, key, entry, ttlWithJitter); err != nil {
		logger.Warn("failed to store cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	logger.Debug("cache entry stored", zap.String("key", key), zap.Duration("ttl", ttlWithJitter))
}

func triggerBackgroundRefresh[T any](
	c Cacher,
	sf *singleflight.Group,
	key string,
	ttl time.Duration,
	logger *zap.Logger,
	fn FetchFunc[T],
) {
	go func() {
		_, _, _ = sf.Do(key+":refresh", func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), defaultFetchTimeout)
			defer cancel()

			value, err := fn(ctx)
			if err != nil {
				logger.Warn("background refresh failed", zap.String("key", key), zap.Error(err))
				return nil, err
			}
			storeEntry(c, key, value, ttl, logger)
			return nil, nil
		})
	}()
}

// FindAndCache reads key through the cache. Misses are fetched once per key
// across concurrent callers; hits past the refresh-ahead point are served
// from cache while a background fetch replaces them.
func FindAndCache[T any](
	ctx context.Context,
	c Cacher,
	sf *singleflight.Group,
	key string,
	ttl time.Duration,
	logger *zap.Logger,
	fn FetchFunc[T],
) (T, error) {
	var zero T
	if logger == nil {
		logger = zap.NewNop()
	}

	var cached cachedEntry[T]
	err := c.Get(ctx, key, &cached)
	switch {
	case err == nil:
		logger.Debug("cache hit", zap.String("key", key))
		if needsRefresh(cached.StoredAt, ttl, time.Now()) {
			triggerBackgroundRefresh(c, sf, key, ttl, logger, fn)
		}
		return cached.Value, nil

	case errors.Is(err, redis.Nil):
		logger.Debug("cache miss", zap.String("key", key))

	default:
		logger.Warn("cache get error (treating as miss)", zap.String("key", key), zap.Error(err))
	}

	v, err, shared := sf.Do(key, func() (any, error) {
		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		go storeEntry(c, key, value, ttl, logger)
		return value, nil
	})
	if err != nil {
		return zero, err
	}

	value, ok := v.(T)
	if !ok {
		logger.Error("singleflight type mismatch", zap.String("key", key))
		return zero, fmt.Errorf("type mismatch for key %q", key)
	}

	if shared {
		logger.Debug("singleflight shared result", zap.String("key", key))
	}

	return value, nil
}
