package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/vetnav/resource-finder/pkg/fetch"
	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/types"
)

// ScopeKey is the part of the filter state that scopes a category's tag
// vocabulary. When any component changes, the cached entry for the
// category is no longer current.
type ScopeKey struct {
	States []string
	Zip    string
	Radius int
	Scope  filter.Scope
}

// KeyFrom derives the scope key from a normalized filter state.
func KeyFrom(s filter.State) ScopeKey {
	return ScopeKey{
		States: s.States,
		Zip:    s.Zip,
		Radius: s.RadiusMiles,
		Scope:  s.Scope,
	}
}

func (k ScopeKey) String() string {
	return fmt.Sprintf("st=%s|zip=%s|r=%d|scope=%s",
		strings.Join(k.States, ","), k.Zip, k.Radius, k.Scope)
}

// Source fetches a category's tag vocabulary from the backend.
type Source interface {
	FetchTags(ctx context.Context, category string, key ScopeKey) ([]types.TagGroup, error)
}

type entry struct {
	key     string
	groups  []types.TagGroup
	fetched time.Time
}

// Cache holds the latest tag vocabulary per category. Only one scope key
// per category is retained; a fetch for a new key replaces the old entry,
// and an in-flight fetch is superseded when the scope changes under it.
// An optional Redis layer shares entries between replicas.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	source  Source
	orch    *fetch.Orchestrator
	rdb     *redis.Client
	now     func() time.Time
}

const DefaultTTL = 5 * time.Minute

func NewCache(source Source, orch *fetch.Orchestrator, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		source:  source,
		orch:    orch,
		now:     time.Now,
	}
}

// WithRedis adds the shared cache layer consulted between the local map
// and the network.
func (c *Cache) WithRedis(rdb *redis.Client) *Cache {
	c.rdb = rdb
	return c
}

// GetTags returns the tag groups for category under the given scope. A
// fresh local hit short-circuits everything; otherwise the fetch runs
// under request class "tags:"+category so only the newest scope key can
// populate the cache.
func (c *Cache) GetTags(ctx context.Context, category string, key ScopeKey) ([]types.TagGroup, error) {
	if category == "" {
		return nil, nil
	}
	full := category + "|" + key.String()

	c.mu.RLock()
	e, ok := c.entries[category]
	c.mu.RUnlock()
	if ok && e.key == full && c.now().Sub(e.fetched) < c.ttl {
		return e.groups, nil
	}

	h := c.orch.Begin(ctx, "tags:"+category)
	groups, err := c.lookup(h.Context(), category, key, full)
	var applied bool
	if err == nil {
		applied = h.Finish(func() {
			c.mu.Lock()
			c.entries[category] = entry{key: full, groups: groups, fetched: c.now()}
			c.mu.Unlock()
		})
	} else {
		applied = h.Finish(nil)
	}
	if !applied || errors.Is(err, context.Canceled) {
		return nil, fetch.ErrSuperseded
	}
	if err != nil {
		return nil, fmt.Errorf("fetching tags for %s: %w", category, err)
	}
	return groups, nil
}

func (c *Cache) lookup(ctx context.Context, category string, key ScopeKey, full string) ([]types.TagGroup, error) {
	if c.rdb != nil {
		if data, err := c.rdb.Get(ctx, "tags:"+full).Result(); err == nil {
			var groups []types.TagGroup
			if err := sonic.Unmarshal([]byte(data), &groups); err == nil {
				return groups, nil
			}
		}
	}
	groups, err := c.source.FetchTags(ctx, category, key)
	if err != nil {
		return nil, err
	}
	if c.rdb != nil {
		if data, err := sonic.Marshal(groups); err == nil {
			if err := c.rdb.Set(ctx, "tags:"+full, data, c.ttl).Err(); err != nil {
				log.Printf("tag cache redis set failed: %v", err)
			}
		}
	}
	return groups, nil
}

// Invalidate drops the local entry for a category.
func (c *Cache) Invalidate(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, category)
}

// Current reports whether the cache holds a fresh entry for the category
// under the given scope key.
func (c *Cache) Current(category string, key ScopeKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[category]
	return ok && e.key == category+"|"+key.String() && c.now().Sub(e.fetched) < c.ttl
}
