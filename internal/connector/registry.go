package connector

import (
	"net/http"
	"sync"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// Registry pools one Connector per provider id. Reads dominate writes
// (providers change only on a config snapshot swap) so the pool is
// guarded by a single RWMutex rather than a lock-free structure; at
// gateway scale config swaps are rare enough that this never shows up
// on the hot path.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]*Connector
	httpClient *http.Client
}

// NewRegistry builds an empty registry sharing one HTTP client (and its
// connection pool) across all providers.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]*Connector),
		httpClient: &http.Client{Timeout: 0}, // streaming responses must not be time-boxed
	}
}

// Sync rebuilds the registry's connector set from a config snapshot's
// providers, reusing the shared HTTP client. Call this after every
// config swap.
func (r *Registry) Sync(providers map[string]model.ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors = make(map[string]*Connector, len(providers))
	for id, p := range providers {
		r.connectors[id] = New(p, r.httpClient)
	}
}

// Get returns the connector for a provider id.
func (r *Registry) Get(providerID string) (*Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[providerID]
	if !ok {
		return nil, gwerr.UnknownProvider(providerID)
	}
	return c, nil
}
