package editing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/servicechange/internal/platform/cache"
	"github.com/odyssey-erp/servicechange/internal/records"
)

// DefaultLookupTTL bounds how long lookup lists stay cached.
const DefaultLookupTTL = 10 * time.Minute

// LookupCache serves lookup lists through Redis. Concurrent misses for the same key
// share one store read.
type LookupCache struct {
	store  records.Store
	client redis.Cmdable
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewLookupCache constructs a LookupCache. A nil client disables caching.
func NewLookupCache(store records.Store, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *LookupCache {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LookupCache{store: store, client: client, ttl: ttl, logger: logger}
}

// Options returns the entries of a lookup list.
func (c *LookupCache) Options(ctx context.Context, list, valueColumn, textColumn string) ([]records.Option, error) {
	key := fmt.Sprintf("servicechange:lookup:options:%s:%s:%s", list, valueColumn, textColumn)
	return cached(ctx, c, key, func(ctx context.Context) ([]records.Option, error) {
		return c.store.ListOptions(ctx, list, valueColumn, textColumn)
	})
}

// ServiceTypes returns the service types of category.
func (c *LookupCache) ServiceTypes(ctx context.Context, category int64) ([]records.ServiceType, error) {
	key := fmt.Sprintf("servicechange:lookup:service_types:%d", category)
	return cached(ctx, c, key, func(ctx context.Context) ([]records.ServiceType, error) {
		return c.store.ListServiceTypes(ctx, category)
	})
}

func cached[T any](ctx context.Context, c *LookupCache, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	if c.client != nil {
		var hit []T
		ok, err := cache.GetJSON(ctx, c.client, key, &hit)
		if err != nil {
			c.logger.Warn("lookup cache read", slog.String("key", key), slog.Any("error", err))
		}
		if ok {
			return hit, nil
		}
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		items, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.client != nil {
			if err := cache.SetJSON(ctx, c.client, key, items, c.ttl); err != nil {
				c.logger.Warn("lookup cache write", slog.String("key", key), slog.Any("error", err))
			}
		}
		return items, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]T), nil
	}
}
