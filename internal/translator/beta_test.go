package translator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBetaHeaderFor_PresetMatch(t *testing.T) {
	require.Equal(t, "fine-grained-tool-streaming-2025-05-14", betaHeaderFor("claude-sonnet-4-5-20250929"))
}

func TestBetaHeaderFor_NoMatch(t *testing.T) {
	require.Equal(t, "", betaHeaderFor("claude-opus-4-1-20250805"))
}

func TestBetaHeaderFor_GlobalEnvOverridesPreset(t *testing.T) {
	t.Setenv("CC_GW_ANTHROPIC_BETA_ALL", "global-beta-value")
	require.Equal(t, "global-beta-value", betaHeaderFor("claude-sonnet-4-5-20250929"))
}

func TestBetaHeaderFor_PerModelOverridesGlobal(t *testing.T) {
	t.Setenv("CC_GW_ANTHROPIC_BETA_ALL", "global-beta-value")
	t.Setenv("CC_GW_ANTHROPIC_BETA_CLAUDE_SONNET_4_5_20250929", "model-specific-value")
	require.Equal(t, "model-specific-value", betaHeaderFor("claude-sonnet-4-5-20250929"))
}

func TestEnvModelKey(t *testing.T) {
	require.Equal(t, "CLAUDE_SONNET_4_5_20250929", envModelKey("claude-sonnet-4-5-20250929"))
}
