package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/pvsite-server/internal/protocol"
)

// SiteCache stores site metadata in Redis. Sites are immutable reference
// data, so entries only expire by TTL.
type SiteCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSiteCache creates a new site cache
func NewSiteCache(redisClient *redis.Client, ttl time.Duration) *SiteCache {
	return &SiteCache{redis: redisClient, ttl: ttl}
}

func siteKey(siteUUID string) string {
	return fmt.Sprintf("site:%s", siteUUID)
}

// GetSites returns the cached sites among siteUUIDs, keyed by uuid.
// Missing entries are simply absent from the map.
func (c *SiteCache) GetSites(ctx context.Context, siteUUIDs []string) (map[string]protocol.PVSiteMetadata, error) {
	found := make(map[string]protocol.PVSiteMetadata, len(siteUUIDs))
	if len(siteUUIDs) == 0 {
		return found, nil
	}

	keys := make([]string, len(siteUUIDs))
	for i, id := range siteUUIDs {
		keys[i] = siteKey(id)
	}

	values, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get sites from Redis: %w", err)
	}

	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}

		var site protocol.PVSiteMetadata
		if err := json.Unmarshal([]byte(data), &site); err != nil {
			// Treat undecodable entries as misses; they are overwritten on refill.
			continue
		}
		found[siteUUIDs[i]] = site
	}

	return found, nil
}

// SetSites caches the given sites
func (c *SiteCache) SetSites(ctx context.Context, sites []protocol.PVSiteMetadata) error {
	if len(sites) == 0 {
		return nil
	}

	pipe := c.redis.Pipeline()
	for _, site := range sites {
		data, err := json.Marshal(site)
		if err != nil {
			return fmt.Errorf("failed to marshal site %s: %w", site.SiteUUID, err)
		}
		pipe.Set(ctx, siteKey(site.SiteUUID), data, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set sites in Redis: %w", err)
	}

	return nil
}
