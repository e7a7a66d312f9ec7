package planner

import (
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheCapacity and DefaultCacheTTL bound the plan cache: LRU
// eviction plus a per-entry time-to-live (§4.E stage 5).
const (
	DefaultCacheCapacity = 256
	DefaultCacheTTL      = 5 * time.Minute
)

// Cache is the compiled-plan cache, keyed by a canonical Query signature.
// Plans are deep-cloned on both Put and Get so callers never share mutable
// state with the cached entry.
type Cache struct {
	lru *expirable.LRU[string, *PlanNode]
}

// NewCache builds a cache with the given capacity and TTL.
func NewCache(capacity int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, *PlanNode](capacity, nil, ttl)}
}

// Get returns a deep clone of the cached plan for signature, if present and
// unexpired.
func (c *Cache) Get(signature string) (*PlanNode, bool) {
	plan, ok := c.lru.Get(signature)
	if !ok {
		return nil, false
	}
	return plan.Clone(), true
}

// Put caches a deep clone of plan under signature.
func (c *Cache) Put(signature string, plan *PlanNode) {
	c.lru.Add(signature, plan.Clone())
}
