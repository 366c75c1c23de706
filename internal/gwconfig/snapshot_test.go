package gwconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
providers:
  - id: anthropic-prod
    label: Anthropic
    baseUrl: https://api.anthropic.com
    authMode: api-key
    authSecret: sk-test
    type: anthropic
    defaultModel: claude-sonnet-4-5-20250929
    models: [claude-sonnet-4-5-20250929, claude-haiku-4-5-20251001]
anthropicRoutes:
  defaults:
    completion: anthropic-prod:claude-sonnet-4-5-20250929
    background: anthropic-prod:claude-haiku-4-5-20251001
    reasoning: anthropic-prod:claude-sonnet-4-5-20250929
  modelRoutes:
    claude-sonnet-4-5-20250929: anthropic-prod:claude-sonnet-4-5-20250929
openaiRoutes:
  defaults:
    completion: anthropic-prod:*
features:
  wildcardKeyEnabled: true
`

func TestFromYAML(t *testing.T) {
	snap, err := FromYAML([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, snap.Providers, 1)
	p, ok := snap.Provider("anthropic-prod")
	require.True(t, ok)
	require.Equal(t, "https://api.anthropic.com", p.BaseURL)
	require.Equal(t, int64(10<<20), snap.Features.MaxRequestBodyBytes)
	require.True(t, snap.Features.WildcardKeyEnabled)
}

func TestParseTarget(t *testing.T) {
	provider, m, err := ParseTarget("anthropic-prod:*")
	require.NoError(t, err)
	require.Equal(t, "anthropic-prod", provider)
	require.Equal(t, "*", m)

	_, _, err = ParseTarget("not-a-target")
	require.Error(t, err)
}

func TestStoreSwapKeepsInFlightSnapshot(t *testing.T) {
	store := NewStore(&Snapshot{Features: Features{MaxRequestBodyBytes: 1}})
	captured := store.Load()
	store.Swap(&Snapshot{Features: Features{MaxRequestBodyBytes: 2}})
	require.Equal(t, int64(1), captured.Features.MaxRequestBodyBytes)
	require.Equal(t, int64(2), store.Load().Features.MaxRequestBodyBytes)
}
