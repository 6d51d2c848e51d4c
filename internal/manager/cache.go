package manager

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/webidx/ftindex/pkg/config"
	"github.com/webidx/ftindex/pkg/metrics"
	pkgredis "github.com/webidx/ftindex/pkg/redis"
	"github.com/webidx/ftindex/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "find:"

// queryCache wraps Find with a Redis-backed, singleflight-deduplicated
// cache, grounded on the source platform's searcher/cache.QueryCache but
// bounded by the same short TTL as the merge cadence rather than an
// explicit invalidation event (§4.F.2): a result is at most one merge
// interval stale. Redis calls run behind a CircuitBreaker so a degraded
// Redis doesn't add per-query latency via repeated dial/read timeouts once
// it's down; a miss (key not found) is never counted as a breaker failure.
type queryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func newQueryCache(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *queryCache {
	return &queryCache{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("query-cache-redis", resilience.CircuitBreakerConfig{}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// reportBreakerState publishes the breaker's current state to
// CircuitBreakerState after every Execute call, so "open" periods are
// visible to the same dashboards the rest of the ambient stack feeds.
func (c *queryCache) reportBreakerState() {
	if c.metrics == nil {
		return
	}
	c.metrics.CircuitBreakerState.WithLabelValues(c.breaker.Name()).Set(float64(c.breaker.GetState()))
}

func (c *queryCache) getOrCompute(ctx context.Context, query string, limit int, compute func() (*FindResult, error)) (*FindResult, bool, error) {
	if c == nil || c.client == nil {
		result, err := compute()
		return result, false, err
	}

	key := c.buildKey(query, limit)
	if result, ok := c.get(ctx, key); ok {
		return result, true, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*FindResult), false, nil
}

func (c *queryCache) get(ctx context.Context, key string) (*FindResult, bool) {
	var data string
	var hit bool
	err := c.breaker.Execute(func() error {
		d, err := c.client.Get(ctx, key)
		if err != nil {
			if pkgredis.IsNilError(err) {
				return nil
			}
			return err
		}
		data, hit = d, true
		return nil
	})
	c.reportBreakerState()
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	if !hit {
		return nil, false
	}
	var result FindResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *queryCache) set(ctx context.Context, key string, result *FindResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.cfg.CacheTTL)
	})
	c.reportBreakerState()
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *queryCache) buildKey(query string, limit int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|limit=%d", query, limit)))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:16])
}
