package storage

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rl1809/item-catalog/internal/core/domain"
)

type cacheEntry struct {
	profile   domain.Profile
	expiresAt time.Time
}

// MemoryCache is a process-local profile cache. Entries expire on the
// injected clock; the LRU bound only matters when TTL turnover cannot keep up.
type MemoryCache struct {
	entries *lru.Cache[string, cacheEntry]
	clock   clock.Clock
}

func NewMemoryCache(size int, clk clock.Clock) (*MemoryCache, error) {
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create profile cache: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryCache{entries: entries, clock: clk}, nil
}

func (c *MemoryCache) Get(_ context.Context, subjectID string) (domain.Profile, bool, error) {
	entry, ok := c.entries.Get(subjectID)
	if !ok || !c.clock.Now().Before(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.profile, true, nil
}

func (c *MemoryCache) Set(_ context.Context, subjectID string, profile domain.Profile, ttl time.Duration) error {
	c.entries.Add(subjectID, cacheEntry{
		profile:   maps.Clone(profile),
		expiresAt: c.clock.Now().Add(ttl),
	})
	return nil
}

func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
