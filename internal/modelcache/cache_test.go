package modelcache

import (
	"context"
	"testing"
	"time"

	"github.com/chenpu17/cc-gw-sub001/internal/gwconfig"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
	"github.com/stretchr/testify/require"
)

func twoProviderSnapshot() *gwconfig.Snapshot {
	return &gwconfig.Snapshot{
		Providers: map[string]model.ProviderConfig{
			"anthropic-prod": {
				ID:     "anthropic-prod",
				Models: map[string]bool{"claude-opus-4-6": true, "claude-sonnet-4-6": true},
			},
			"openai-prod": {
				ID:     "openai-prod",
				Models: map[string]bool{"claude-opus-4-6": true, "gpt-5": true},
			},
			"no-models-declared": {
				ID:           "no-models-declared",
				DefaultModel: "fallback-model",
			},
		},
	}
}

func TestCache_Get_AggregatesAcrossProviders(t *testing.T) {
	c := New(time.Minute)
	list := c.Get(context.Background(), twoProviderSnapshot())

	require.Len(t, list.Entries, 4)

	byID := map[string]Entry{}
	for _, e := range list.Entries {
		byID[e.ID] = e
	}

	shared, ok := byID["claude-opus-4-6"]
	require.True(t, ok)
	require.Equal(t, []string{"anthropic-prod", "openai-prod"}, shared.Providers)

	fallback, ok := byID["fallback-model"]
	require.True(t, ok)
	require.Equal(t, []string{"no-models-declared"}, fallback.Providers)
}

func TestCache_Get_SortedByID(t *testing.T) {
	c := New(time.Minute)
	list := c.Get(context.Background(), twoProviderSnapshot())

	var ids []string
	for _, e := range list.Entries {
		ids = append(ids, e.ID)
	}
	require.Equal(t, []string{"claude-opus-4-6", "claude-sonnet-4-6", "fallback-model", "gpt-5"}, ids)
}

func TestCache_Get_CachesWithinTTL(t *testing.T) {
	c := New(time.Hour)
	snap := twoProviderSnapshot()

	first := c.Get(context.Background(), snap)
	snap.Providers["anthropic-prod"] = model.ProviderConfig{ID: "anthropic-prod"}
	second := c.Get(context.Background(), snap)

	require.Same(t, first, second)
}

func TestCache_Get_RecomputesOnSnapshotSwap(t *testing.T) {
	c := New(time.Hour)
	snapA := twoProviderSnapshot()
	snapB := twoProviderSnapshot()
	snapB.Providers = map[string]model.ProviderConfig{
		"only-provider": {ID: "only-provider", Models: map[string]bool{"solo-model": true}},
	}

	first := c.Get(context.Background(), snapA)
	second := c.Get(context.Background(), snapB)

	require.NotSame(t, first, second)
	require.Len(t, second.Entries, 1)
	require.Equal(t, "solo-model", second.Entries[0].ID)
}

func TestCache_Get_RecomputesAfterTTLExpires(t *testing.T) {
	c := New(time.Millisecond)
	snap := twoProviderSnapshot()

	first := c.Get(context.Background(), snap)
	time.Sleep(5 * time.Millisecond)
	second := c.Get(context.Background(), snap)

	require.NotSame(t, first, second)
	require.Equal(t, first.Entries, second.Entries)
}

func TestCache_Invalidate_ForcesRecompute(t *testing.T) {
	c := New(time.Hour)
	snap := twoProviderSnapshot()

	first := c.Get(context.Background(), snap)
	c.Invalidate()
	second := c.Get(context.Background(), snap)

	require.NotSame(t, first, second)
	require.Equal(t, first.Entries, second.Entries)
}

func TestCache_Get_SkipsProviderWithNoModelsOrDefault(t *testing.T) {
	c := New(time.Minute)
	snap := &gwconfig.Snapshot{
		Providers: map[string]model.ProviderConfig{
			"empty-provider": {ID: "empty-provider"},
		},
	}
	list := c.Get(context.Background(), snap)
	require.Empty(t, list.Entries)
}
