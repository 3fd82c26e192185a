package cache

import (
	"context"
	"errors"
	"time"

	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
)

// ErrCacheMiss is returned when the key is not in the cache.
var ErrCacheMiss = errors.New("cache miss")

// HistoryCache caches full conversation reads keyed by identity pair.
type HistoryCache interface {
	Get(ctx context.Context, key string) ([]domain.Message, error)
	Set(ctx context.Context, key string, messages []domain.Message, ttl time.Duration) error

	// Invalidate drops the cached conversation for a pair, called after
	// every append so readers never see a stale tail.
	Invalidate(ctx context.Context, key string) error

	// BuildKey returns the cache key for an identity pair. The key is
	// order-independent so both read directions share one entry.
	BuildKey(identityA, identityB string) string

	Close() error
}
