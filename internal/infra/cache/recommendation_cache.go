package cache

import (
	"sync"
	"time"

	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/infra/metrics"
	"course-marketplace/internal/usecase"
)

// Compile-time check
var _ usecase.RecommendationCache = (*RecommendationCache)(nil)

type entry struct {
	items    []model.ScoredCourse
	storedAt time.Time
}

// RecommendationCache is a process-local TTL map of ranked course lists keyed
// by user. Expired entries are swept lazily on each write, so growth stays
// bounded without a background timer. Each process instance has its own view;
// staleness up to the TTL across instances is accepted for this feature.
type RecommendationCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   func() time.Time
}

func NewRecommendationCache(ttl time.Duration) *RecommendationCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RecommendationCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

func key(userID string) string { return "user:" + userID }

func (c *RecommendationCache) Get(userID string) ([]model.ScoredCourse, bool) {
	c.mu.RLock()
	e, ok := c.entries[key(userID)]
	c.mu.RUnlock()
	if !ok || c.clock().Sub(e.storedAt) >= c.ttl {
		metrics.IncRecommendationCacheMiss()
		return nil, false
	}
	metrics.IncRecommendationCacheHit()
	return e.items, true
}

func (c *RecommendationCache) Set(userID string, items []model.ScoredCourse) {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key(userID)] = entry{items: items, storedAt: now}
}

func (c *RecommendationCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, key(userID))
	c.mu.Unlock()
}
