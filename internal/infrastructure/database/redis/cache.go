// Package redis caches generalization results by input digest and guards
// computations across replicas with a lease lock.
package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

var ErrCacheMiss = errors.New(errors.ErrCodeCacheMiss, "cache miss")

const (
	defaultResultTTL = 24 * time.Hour
	cacheName        = "result"
)

// ResultCache stores results under the digest of their inputs.
type ResultCache interface {
	// Get returns ErrCacheMiss when nothing usable is stored.
	Get(ctx context.Context, digest string) (*generalization.Result, error)
	Set(ctx context.Context, digest string, res *generalization.Result) error
	Delete(ctx context.Context, digest string) error
	// GetOrCompute serves the cached result or runs compute once per digest
	// in this process and stores its outcome. cached reports a cache hit.
	GetOrCompute(ctx context.Context, digest string, compute func(context.Context) (*generalization.Result, error)) (res *generalization.Result, cached bool, err error)
}

type resultCache struct {
	client  *Client
	logger  logging.Logger
	ttl     time.Duration
	metrics *prometheus.AppMetrics
	group   singleflight.Group
}

type CacheOption func(*resultCache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *resultCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMetrics(m *prometheus.AppMetrics) CacheOption {
	return func(c *resultCache) { c.metrics = m }
}

func NewResultCache(client *Client, log logging.Logger, opts ...CacheOption) ResultCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &resultCache{
		client: client,
		logger: log.Named("result_cache"),
		ttl:    defaultResultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *resultCache) key(digest string) string {
	return c.client.Key(cacheName, digest)
}

func (c *resultCache) Get(ctx context.Context, digest string) (*generalization.Result, error) {
	res, err := c.get(ctx, digest)
	if c.metrics != nil && (err == nil || err == ErrCacheMiss) {
		prometheus.RecordCacheAccess(c.metrics, cacheName, err == nil)
	}
	return res, err
}

func (c *resultCache) get(ctx context.Context, digest string) (*generalization.Result, error) {
	data, err := c.client.Get(ctx, c.key(digest)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}

	var res generalization.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", logging.String("digest", digest), logging.Err(err))
		return nil, ErrCacheMiss
	}
	return &res, nil
}

func (c *resultCache) Set(ctx context.Context, digest string, res *generalization.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode result")
	}
	if err := c.client.Set(ctx, c.key(digest), data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write to cache")
	}
	return nil
}

func (c *resultCache) Delete(ctx context.Context, digest string) error {
	if err := c.client.Del(ctx, c.key(digest)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete from cache")
	}
	return nil
}

func (c *resultCache) GetOrCompute(ctx context.Context, digest string, compute func(context.Context) (*generalization.Result, error)) (*generalization.Result, bool, error) {
	res, err := c.Get(ctx, digest)
	switch {
	case err == nil:
		return res, true, nil
	case err != ErrCacheMiss:
		// an unreachable cache must not block generalization
		c.logger.Warn("Cache lookup failed, computing", logging.String("digest", digest), logging.Err(err))
	}

	v, err, _ := c.group.Do(digest, func() (interface{}, error) {
		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if setErr := c.Set(ctx, digest, computed); setErr != nil {
			c.logger.Warn("Failed to store result", logging.String("digest", digest), logging.Err(setErr))
		}
		return computed, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*generalization.Result), false, nil
}
