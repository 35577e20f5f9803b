package keys

import (
	"encoding/json"
	"maps"
	"time"

	"chat-keystore/models"
	"chat-keystore/observability"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	cacheStatus  = "status"
	cacheResolve = "resolve"
)

// StatusCache holds recent provider status checks. A TTL of 0 keeps entries
// until evicted by size or invalidated.
type StatusCache struct {
	lru *expirable.LRU[models.Provider, models.ProviderStatus]
	ttl time.Duration
}

func NewStatusCache(size int, ttl time.Duration) *StatusCache {
	return &StatusCache{
		lru: expirable.NewLRU[models.Provider, models.ProviderStatus](size, nil, ttl),
		ttl: ttl,
	}
}

// Get returns the cached status and whether it is still valid
func (c *StatusCache) Get(provider models.Provider) (models.ProviderStatus, bool) {
	status, ok := c.lru.Get(provider)
	observability.GetMetrics().RecordCacheLookup(cacheStatus, ok)
	return status, ok
}

func (c *StatusCache) Set(provider models.Provider, status models.ProviderStatus) {
	c.lru.Add(provider, status)
}

// Invalidate drops the provider's entry so the next check is live
func (c *StatusCache) Invalidate(provider models.Provider) {
	c.lru.Remove(provider)
}

func (c *StatusCache) Len() int { return c.lru.Len() }

func (c *StatusCache) TTL() time.Duration { return c.ttl }

// ResolutionCache memoizes merged key maps by the content of the cookie map
// they were resolved from. Values are copied in and out.
type ResolutionCache struct {
	lru *expirable.LRU[uint64, map[string]string]
	ttl time.Duration
}

func NewResolutionCache(size int, ttl time.Duration) *ResolutionCache {
	return &ResolutionCache{
		lru: expirable.NewLRU[uint64, map[string]string](size, nil, ttl),
		ttl: ttl,
	}
}

// contentKey hashes the canonical form of a cookie map. encoding/json
// sorts map keys, so equal maps hash equally.
func contentKey(cookieKeys map[string]string) uint64 {
	data, err := json.Marshal(cookieKeys)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}

func (c *ResolutionCache) Get(cookieKeys map[string]string) (map[string]string, bool) {
	keys, ok := c.lru.Get(contentKey(cookieKeys))
	observability.GetMetrics().RecordCacheLookup(cacheResolve, ok)
	if !ok {
		return nil, false
	}
	return maps.Clone(keys), true
}

func (c *ResolutionCache) Set(cookieKeys, resolved map[string]string) {
	c.lru.Add(contentKey(cookieKeys), maps.Clone(resolved))
}

// Invalidate empties the cache; any save can change every merged result
func (c *ResolutionCache) Invalidate() {
	c.lru.Purge()
}

func (c *ResolutionCache) Len() int { return c.lru.Len() }

func (c *ResolutionCache) TTL() time.Duration { return c.ttl }
