package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pulse-server/internal/common/logger"
	"pulse-server/internal/common/metrics"
	"pulse-server/internal/models"

	"github.com/redis/go-redis/v9"
)

const versionKey = "routing:version"

// Cache holds resolved routes in Redis. Keys embed a generation number so a
// single INCR invalidates every cached resolution. Redis failures are logged
// and treated as misses; a nil *Cache is valid and never hits.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewCache(client *redis.Client, ttl time.Duration, log logger.Logger) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		log:    log.WithFields(map[string]interface{}{"component": "routing-cache"}),
	}
}

func (c *Cache) generation(ctx context.Context) (string, error) {
	v, err := c.client.Get(ctx, versionKey).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return v, err
}

func cacheKey(gen string, scope Scope) string {
	return fmt.Sprintf("routing:v%s:%s|%s|%s", gen, scope.Service, scope.Region, scope.MessageType)
}

func (c *Cache) Get(ctx context.Context, scope Scope) (*models.ResolvedRoute, bool) {
	if c == nil {
		return nil, false
	}
	gen, err := c.generation(ctx)
	if err != nil {
		c.fail("read generation", err)
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(gen, scope)).Bytes()
	if err == redis.Nil {
		metrics.RoutingCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		c.fail("read route", err)
		return nil, false
	}

	var route models.ResolvedRoute
	if err := json.Unmarshal(raw, &route); err != nil {
		c.fail("decode route", err)
		return nil, false
	}
	metrics.RoutingCache.WithLabelValues("hit").Inc()
	return &route, true
}

func (c *Cache) Set(ctx context.Context, scope Scope, route *models.ResolvedRoute) {
	if c == nil {
		return
	}
	gen, err := c.generation(ctx)
	if err != nil {
		c.fail("read generation", err)
		return
	}
	raw, err := json.Marshal(route)
	if err != nil {
		c.fail("encode route", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(gen, scope), raw, c.ttl).Err(); err != nil {
		c.fail("write route", err)
	}
}

// Invalidate bumps the generation. Entries under older generations expire by TTL.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		c.fail("bump generation", err)
	}
}

func (c *Cache) fail(op string, err error) {
	metrics.RoutingCache.WithLabelValues("error").Inc()
	c.log.Warn("Routing cache unavailable", map[string]interface{}{"operation": op, "error": err.Error()})
}
