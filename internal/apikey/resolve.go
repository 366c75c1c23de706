package apikey

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// Resolver turns a presented credential into an Identity, consulting
// Store before any routing or upstream work happens (spec §4.6).
type Resolver struct {
	store           Store
	salt            string
	wildcardEnabled bool
}

// NewResolver builds a Resolver. salt is the server-wide pepper mixed
// into HashToken; wildcardEnabled mirrors gwconfig.Features.WildcardKeyEnabled.
func NewResolver(store Store, salt string, wildcardEnabled bool) *Resolver {
	return &Resolver{store: store, salt: salt, wildcardEnabled: wildcardEnabled}
}

// Identity is the resolved caller context for one request; its
// once-guarded Commit records usage at most once regardless of how many
// exit paths the handler takes.
type Identity struct {
	KeyID    string
	Wildcard bool

	commitOnce sync.Once
	committed  bool
	mu         sync.Mutex
}

// Commit records usage against the resolved key exactly once per
// Identity; later calls are no-ops (spec §4.6 "idempotent per request").
func (id *Identity) Commit(ctx context.Context, store Store, usage model.TokenUsage) error {
	var err error
	id.commitOnce.Do(func() {
		id.mu.Lock()
		id.committed = true
		id.mu.Unlock()
		err = store.RecordUsage(ctx, id.KeyID, usage)
	})
	return err
}

// Committed reports whether Commit has already fired.
func (id *Identity) Committed() bool {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.committed
}

// ExtractToken reads the presented credential from either the standard
// Authorization: Bearer header or the x-api-key header (spec §4.6 step 1).
func ExtractToken(h http.Header) string {
	if auth := h.Get("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return rest
		}
		return auth
	}
	return h.Get("x-api-key")
}

// Resolve looks the presented token up by salted hash, falling back to
// the wildcard key when enabled and no exact match exists (spec §4.6
// steps 2-5).
func (r *Resolver) Resolve(ctx context.Context, h http.Header) (*Identity, error) {
	token := ExtractToken(h)

	if token != "" {
		hash := HashToken(r.salt, token)
		key, err := r.store.Get(ctx, hash)
		if err == nil {
			if key.Disabled {
				return nil, gwerr.InvalidAPIKey("key is disabled")
			}
			return &Identity{KeyID: key.ID, Wildcard: false}, nil
		}
		if err != ErrKeyNotFound {
			return nil, gwerr.Internal(err)
		}
	}

	if r.wildcardEnabled {
		wk, err := r.store.Wildcard(ctx)
		if err == nil {
			if wk.Disabled {
				return nil, gwerr.InvalidAPIKey("wildcard key is disabled")
			}
			return &Identity{KeyID: wk.ID, Wildcard: true}, nil
		}
		if err != ErrKeyNotFound {
			return nil, gwerr.Internal(err)
		}
	}

	return nil, gwerr.InvalidAPIKey("no matching api key")
}
