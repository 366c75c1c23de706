package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

func TestEstimateText(t *testing.T) {
	require.Equal(t, 0, EstimateText(""))
	require.Equal(t, 3, EstimateText("12345678901")) // 11 chars / 4 = 2.75 -> 3
	require.Greater(t, EstimateText("你好世界你好世界"), 0)
}

func TestEstimatePayload_ImagesAndTools(t *testing.T) {
	p := &model.NormalizedPayload{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: []model.ContentBlock{
				model.Text{Text: "hello there"},
				model.Image{MIME: "image/png", URL: "https://x"},
			}},
		},
		Tools: []model.ToolDefinition{
			{Name: "weather", Parameters: map[string]any{"type": "object"}},
		},
	}
	total := EstimatePayload(p)
	require.Greater(t, total, imageTokens)
}

func TestTPOT_Undefined(t *testing.T) {
	require.Nil(t, TPOT(true, 100, 1000, 0, false))
}

func TestTPOT_NonStreaming(t *testing.T) {
	v := TPOT(false, 0, 1000, 10, false)
	require.NotNil(t, v)
	require.Equal(t, 100.0, *v)
}

func TestTPOT_StreamingLowTTFT(t *testing.T) {
	// ttft/latency = 100/1000 = 0.1 <= 0.2
	// denom = max(1000-100, 0.2*1000) = max(900, 200) = 900
	v := TPOT(true, 100, 1000, 90, false)
	require.NotNil(t, v)
	require.Equal(t, 10.0, *v)
}

func TestTPOT_StreamingHighTTFT(t *testing.T) {
	// ttft/latency = 500/1000 = 0.5 > 0.2 -> full latency
	v := TPOT(true, 500, 1000, 100, false)
	require.NotNil(t, v)
	require.Equal(t, 10.0, *v)
}

func TestTPOT_ReasoningUsesFullLatency(t *testing.T) {
	v := TPOT(true, 50, 1000, 100, true)
	require.NotNil(t, v)
	require.Equal(t, 10.0, *v)
}

func TestCachedTokensPriority(t *testing.T) {
	read, creation := CachedTokensInput{AnthropicCacheRead: 5, AnthropicCacheCreation: 2, OpenAIPromptCached: 9}.Resolve()
	require.Equal(t, 5, read)
	require.Equal(t, 2, creation)

	read, creation = CachedTokensInput{OpenAIPromptCached: 9, OpenAIInputDetailCached: 3}.Resolve()
	require.Equal(t, 9, read)
	require.Equal(t, 0, creation)

	read, _ = CachedTokensInput{TopLevelCachedTokens: 4}.Resolve()
	require.Equal(t, 4, read)
}
