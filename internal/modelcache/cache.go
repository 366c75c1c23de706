// Package modelcache backs GET /openai/v1/models (spec §6) with a
// TTL-bounded view over the config snapshot's provider/model tables, so
// a request storm against that endpoint doesn't re-walk every provider's
// model set on every call.
package modelcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chenpu17/cc-gw-sub001/internal/gwconfig"
)

// Entry is one OpenAI-shaped model list item (spec §6: "id, owned_by,
// and a metadata.providers[] listing").
type Entry struct {
	ID      string
	OwnedBy string
	// Providers lists every provider id known to serve this model,
	// sorted for stable output.
	Providers []string
}

// List is the aggregated, sorted-by-ID model list returned by Cache.Get.
type List struct {
	Entries []Entry
}

// Cache memoizes the model list derived from a *gwconfig.Snapshot behind
// a TTL, refreshing lazily on Get rather than on a background loop: spec
// §6 gives this endpoint no latency budget tight enough to need the
// teacher's approaching-expiry background refresh, so the cooldown
// machinery of runtime/registry/cache.go is deliberately left out.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	cached  *List
	expires time.Time
	gen     *gwconfig.Snapshot // snapshot pointer the cached List was built from
}

// New builds a Cache with the given TTL. A non-positive ttl disables
// caching; every Get recomputes the list.
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Get returns the model list for snap, recomputing it if the cache is
// empty, expired, or snap is a different snapshot than the one cached
// (config hot-swap invalidates the cache implicitly).
func (c *Cache) Get(_ context.Context, snap *gwconfig.Snapshot) *List {
	gen := snap

	c.mu.RLock()
	if c.cached != nil && c.gen == gen && time.Now().Before(c.expires) {
		cached := c.cached
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	list := buildList(snap)

	c.mu.Lock()
	c.cached = list
	c.gen = gen
	c.expires = time.Now().Add(c.ttl)
	c.mu.Unlock()

	return list
}

// Invalidate drops the cached list so the next Get recomputes it
// regardless of TTL, for callers that swap a snapshot and want the
// model list to reflect it immediately.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func buildList(snap *gwconfig.Snapshot) *List {
	byModel := make(map[string]*Entry)
	var order []string

	for providerID, provider := range snap.Providers {
		models := provider.Models
		if len(models) == 0 {
			if provider.DefaultModel == "" {
				continue
			}
			models = map[string]bool{provider.DefaultModel: true}
		}
		for modelID := range models {
			entry, ok := byModel[modelID]
			if !ok {
				entry = &Entry{ID: modelID, OwnedBy: providerID}
				byModel[modelID] = entry
				order = append(order, modelID)
			}
			entry.Providers = append(entry.Providers, providerID)
		}
	}

	sort.Strings(order)
	entries := make([]Entry, 0, len(order))
	for _, modelID := range order {
		entry := byModel[modelID]
		sort.Strings(entry.Providers)
		entry.OwnedBy = entry.Providers[0]
		entries = append(entries, *entry)
	}
	return &List{Entries: entries}
}
