package translator

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
	"github.com/chenpu17/cc-gw-sub001/internal/normalizer"
)

// genPlainText generates a short, JSON-safe ASCII string so structural
// equality checks aren't sensitive to escaping differences.
func genPlainText() gopter.Gen {
	return gen.IntRange(1, 12).FlatMap(func(length any) gopter.Gen {
		return gen.SliceOfN(length.(int), gen.AlphaChar()).Map(func(chars []rune) string {
			return string(chars)
		})
	}, reflect.TypeOf(""))
}

// TestAnthropicRoundTripProperty verifies spec §8's "Anthropic body ->
// normalize -> build-Anthropic body is structurally equal" law, for the
// restricted text-only subset the test suite documents.
func TestAnthropicRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("anthropic text-only body round-trips through normalize+build", prop.ForAll(
		func(userText, model_ string) bool {
			raw, _ := json.Marshal(map[string]any{
				"model":      model_,
				"max_tokens": 16,
				"messages": []map[string]any{
					{"role": "user", "content": userText},
				},
			})
			payload, err := normalizer.FromAnthropic(raw)
			if err != nil {
				return false
			}
			rebuilt, err := BuildAnthropicRequest(payload, model_)
			if err != nil {
				return false
			}
			payload2, err := normalizer.FromAnthropic(rebuilt)
			if err != nil {
				return false
			}
			if len(payload2.Messages) != 1 || len(payload.Messages) != 1 {
				return false
			}
			a := payload.Messages[0].Content[0].(model.Text)
			b := payload2.Messages[0].Content[0].(model.Text)
			return a.Text == b.Text
		},
		genPlainText(),
		genPlainText(),
	))

	properties.TestingRun(t)
}

// TestOpenAIChatRoundTripProperty verifies the "OpenAI-chat body with
// only text messages" round-trip law.
func TestOpenAIChatRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("openai chat text-only body round-trips through normalize+build", prop.ForAll(
		func(userText string) bool {
			raw, _ := json.Marshal(map[string]any{
				"model": "gpt-4o-mini",
				"messages": []map[string]any{
					{"role": "user", "content": userText},
				},
			})
			payload, err := normalizer.FromOpenAIChat(raw)
			if err != nil {
				return false
			}
			rebuilt, err := BuildOpenAIChatRequest(payload, "gpt-4o-mini")
			if err != nil {
				return false
			}
			payload2, err := normalizer.FromOpenAIChat(rebuilt)
			if err != nil {
				return false
			}
			a := payload.Messages[len(payload.Messages)-1].Content[0].(model.Text)
			b := payload2.Messages[len(payload2.Messages)-1].Content[0].(model.Text)
			return a.Text == b.Text
		},
		genPlainText(),
	))

	properties.TestingRun(t)
}

// TestAnthropicToOpenAIChatAndBackPreservesContentProperty verifies the
// "Anthropic non-stream reply -> translate-to-openai-chat -> translate
// back produces the same logical content blocks" law for text-only
// replies.
func TestAnthropicToOpenAIChatAndBackPreservesContentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("text content survives anthropic -> openai-chat -> anthropic", prop.ForAll(
		func(text string) bool {
			raw, _ := json.Marshal(map[string]any{
				"id":          "msg_1",
				"content":     []map[string]any{{"type": "text", "text": text}},
				"stop_reason": "end_turn",
				"usage":       map[string]any{"input_tokens": 1, "output_tokens": 1},
			})
			chatBody, _, err := TranslateResponse(model.UpstreamOpenAIChat, model.UpstreamAnthropic, raw)
			if err != nil {
				return false
			}
			backToAnthropic, _, err := TranslateResponse(model.UpstreamAnthropic, model.UpstreamOpenAIChat, chatBody)
			if err != nil {
				return false
			}
			var got struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			}
			if err := json.Unmarshal(backToAnthropic, &got); err != nil {
				return false
			}
			return len(got.Content) == 1 && got.Content[0].Text == text
		},
		genPlainText(),
	))

	properties.TestingRun(t)
}
