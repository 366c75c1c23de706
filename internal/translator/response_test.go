package translator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

func TestTranslateResponse_SameProtocolPassesThrough(t *testing.T) {
	raw := []byte(`{"id":"msg_1","content":[{"type":"text","text":"pong"}],"usage":{"input_tokens":3,"output_tokens":1}}`)
	out, usage, err := TranslateResponse(model.UpstreamAnthropic, model.UpstreamAnthropic, raw)
	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(out))
	require.Equal(t, 3, usage.InputTokens)
	require.Equal(t, 1, usage.OutputTokens)
}

func TestTranslateResponse_AnthropicToOpenAIChat(t *testing.T) {
	raw := []byte(`{"id":"msg_1","content":[{"type":"text","text":"yo"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":1}}`)
	out, usage, err := TranslateResponse(model.UpstreamOpenAIChat, model.UpstreamAnthropic, raw)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	choice := got["choices"].([]any)[0].(map[string]any)
	require.Equal(t, "yo", choice["message"].(map[string]any)["content"])
	require.Equal(t, "stop", choice["finish_reason"])
	require.Equal(t, 5, usage.InputTokens)
	require.Equal(t, 1, usage.OutputTokens)
	u := got["usage"].(map[string]any)
	require.Equal(t, float64(5), u["prompt_tokens"])
	require.Equal(t, float64(1), u["completion_tokens"])
}

func TestTranslateResponse_AnthropicToolUseToOpenAIChatToolCalls(t *testing.T) {
	raw := []byte(`{"id":"msg_1","content":[{"type":"tool_use","id":"t1","name":"weather","input":{"location":"Paris"}}],"stop_reason":"tool_use","usage":{"input_tokens":5,"output_tokens":4}}`)
	out, _, err := TranslateResponse(model.UpstreamOpenAIChat, model.UpstreamAnthropic, raw)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	choice := got["choices"].([]any)[0].(map[string]any)
	require.Equal(t, "tool_calls", choice["finish_reason"])
	calls := choice["message"].(map[string]any)["tool_calls"].([]any)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	require.Equal(t, "weather", fn["name"])
	require.JSONEq(t, `{"location":"Paris"}`, fn["arguments"].(string))
}

func TestTranslateResponse_OpenAIChatToAnthropic(t *testing.T) {
	raw := []byte(`{"id":"chatcmpl_1","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`)
	out, usage, err := TranslateResponse(model.UpstreamAnthropic, model.UpstreamOpenAIChat, raw)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	require.Equal(t, "end_turn", got["stop_reason"])
	content := got["content"].([]any)[0].(map[string]any)
	require.Equal(t, "hi", content["text"])
	require.Equal(t, 5, usage.InputTokens)
	require.Equal(t, 2, usage.OutputTokens)
}

func TestTranslateResponse_AnthropicToOpenAIResponses(t *testing.T) {
	raw := []byte(`{"id":"msg_1","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn","usage":{"input_tokens":2,"output_tokens":1}}`)
	out, _, err := TranslateResponse(model.UpstreamOpenAIResponses, model.UpstreamAnthropic, raw)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	require.Equal(t, "completed", got["status"])
	output := got["output"].([]any)[0].(map[string]any)
	require.Equal(t, "output_message", output["type"])
}

func TestTranslateResponse_CachedTokensPriority(t *testing.T) {
	raw := []byte(`{"id":"msg_1","content":[{"type":"text","text":"x"}],"usage":{"input_tokens":5,"output_tokens":1,"cache_read_input_tokens":3,"cache_creation_input_tokens":2}}`)
	_, usage, err := TranslateResponse(model.UpstreamAnthropic, model.UpstreamAnthropic, raw)
	require.NoError(t, err)
	require.Equal(t, 3, usage.CachedReadTokens)
	require.Equal(t, 2, usage.CachedWriteTokens)
}
