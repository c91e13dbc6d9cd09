package cache

import (
	"context"
	"encoding/json"
	"time"

	"agencyhub/internal/vercel"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const statusKeyPrefix = "domain:status:"

// StatusCache caches provider configuration checks in Redis so that
// aggressive status polling does not turn into provider API polling.
// All failures are logged and treated as cache misses.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

// NewStatusCache creates a StatusCache. ttl <= 0 disables caching
// (every Get misses, Set is a no-op).
func NewStatusCache(client *redis.Client, ttl time.Duration, logger *logrus.Entry) *StatusCache {
	return &StatusCache{
		client: client,
		ttl:    ttl,
		logger: logger.WithField("component", "status-cache"),
	}
}

// Get returns the cached provider status for a hostname, if present.
func (c *StatusCache) Get(ctx context.Context, host string) (*vercel.Status, bool) {
	if c.client == nil || c.ttl <= 0 {
		return nil, false
	}

	data, err := c.client.Get(ctx, statusKeyPrefix+host).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("hostname", host).Warn("status cache read failed")
		}
		return nil, false
	}

	var st vercel.Status
	if err := json.Unmarshal(data, &st); err != nil {
		c.logger.WithError(err).WithField("hostname", host).Warn("status cache entry corrupt")
		return nil, false
	}
	return &st, true
}

// Set stores the provider status for a hostname with the cache TTL.
func (c *StatusCache) Set(ctx context.Context, host string, st *vercel.Status) {
	if c.client == nil || c.ttl <= 0 || st == nil {
		return
	}

	data, err := json.Marshal(st)
	if err != nil {
		c.logger.WithError(err).WithField("hostname", host).Warn("status cache marshal failed")
		return
	}

	if err := c.client.Set(ctx, statusKeyPrefix+host, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("hostname", host).Warn("status cache write failed")
	}
}
