package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey          = "authz:decision:version"
	cachePrincipalVersionFmt = "authz:decision:pversion:%d"
	cacheKeyFmt              = "authz:decision:v%d:p%d:%d:%d"
)

// DefaultDecisionTTL bounds how long a cached decision may outlive the role
// configuration it was computed from.
const DefaultDecisionTTL = 5 * time.Minute

// DecisionCache stores prior (principal, route) decisions in Redis under a
// bounded TTL. Invalidation bumps a version counter instead of deleting
// keys, so stale entries become unreachable immediately and expire on their
// own; keys are replaced atomically and no global lock exists.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDecisionCache instantiates the cache. A nil client degrades to a cache
// that always misses.
func NewDecisionCache(client *redis.Client, ttl time.Duration) *DecisionCache {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	return &DecisionCache{client: client, ttl: ttl}
}

// TTL returns the configured decision lifetime.
func (c *DecisionCache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

type cachedDecision struct {
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason"`
	Permission string `json:"permission,omitempty"`
}

// Get returns the cached decision for (principal, route), if present.
func (c *DecisionCache) Get(ctx context.Context, principalID, routeID int64) (Decision, bool, error) {
	if c == nil || c.client == nil {
		return Decision{}, false, nil
	}
	key, err := c.key(ctx, principalID, routeID)
	if err != nil {
		return Decision{}, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Decision{}, false, nil
	}
	if err != nil {
		return Decision{}, false, fmt.Errorf("authz: cache get: %w", err)
	}
	var cached cachedDecision
	if err := json.Unmarshal(payload, &cached); err != nil {
		return Decision{}, false, nil
	}
	return Decision{
		Allowed:    cached.Allowed,
		Reason:     cached.Reason,
		Permission: cached.Permission,
		Cached:     true,
	}, true, nil
}

// Put stores a decision under the configured TTL.
func (c *DecisionCache) Put(ctx context.Context, principalID, routeID int64, d Decision) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, principalID, routeID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(cachedDecision{
		Allowed:    d.Allowed,
		Reason:     d.Reason,
		Permission: d.Permission,
	})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("authz: cache put: %w", err)
	}
	return nil
}

// InvalidatePrincipal drops every cached decision for one principal.
func (c *DecisionCache) InvalidatePrincipal(ctx context.Context, principalID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := fmt.Sprintf(cachePrincipalVersionFmt, principalID)
	if err := c.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("authz: invalidate principal %d: %w", principalID, err)
	}
	return nil
}

// InvalidateAll drops every cached decision.
func (c *DecisionCache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return fmt.Errorf("authz: invalidate all: %w", err)
	}
	return nil
}

func (c *DecisionCache) key(ctx context.Context, principalID, routeID int64) (string, error) {
	global, err := c.version(ctx, cacheVersionKey)
	if err != nil {
		return "", err
	}
	principal, err := c.version(ctx, fmt.Sprintf(cachePrincipalVersionFmt, principalID))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(cacheKeyFmt, global, principal, principalID, routeID), nil
}

func (c *DecisionCache) version(ctx context.Context, key string) (int64, error) {
	ver, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("authz: cache version: %w", err)
	}
	return ver, nil
}
