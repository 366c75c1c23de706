// Package tokenizer implements the cheap heuristic token estimator and
// the TPOT (time-per-output-token) calculation of spec §4.9. The router
// stores the estimate as RouteDecision.TokenEstimate for every request;
// it is not substituted into the recorded usage when an upstream
// response omits usage.
package tokenizer

import (
	"encoding/json"
	"math"
	"unicode"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

const (
	imageTokens         = 85
	cjkCharsPerToken    = 3.5
	latinCharsPerToken  = 4.0
)

// EstimateText returns the heuristic token count for a text run: a
// CJK-heavy string is costed at chars/3.5, otherwise chars/4, both
// rounded up (spec §4.9).
func EstimateText(s string) int {
	if s == "" {
		return 0
	}
	n := 0
	cjk := 0
	for _, r := range s {
		n++
		if isCJK(r) {
			cjk++
		}
	}
	perChar := latinCharsPerToken
	if n > 0 && float64(cjk)/float64(n) > 0.5 {
		perChar = cjkCharsPerToken
	}
	return int(math.Ceil(float64(n) / perChar))
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

// EstimatePayload estimates the input token count of a normalized
// payload: text blocks via EstimateText, image blocks at a flat 85
// tokens, and tool definitions at len(JSON(parameters))/4.
func EstimatePayload(p *model.NormalizedPayload) int {
	total := EstimateText(p.System)
	for _, m := range p.Messages {
		for _, b := range m.Content {
			switch v := b.(type) {
			case model.Text:
				total += EstimateText(v.Text)
			case model.Image:
				total += imageTokens
			case model.ToolResult:
				total += estimateAny(v.Content)
			case model.ToolUse:
				total += estimateAny(v.Input)
			case model.Thinking:
				total += EstimateText(v.Text)
			}
		}
	}
	for _, td := range p.Tools {
		total += estimateToolSchema(td.Parameters)
	}
	return total
}

func estimateAny(v any) int {
	switch s := v.(type) {
	case nil:
		return 0
	case string:
		return EstimateText(s)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return 0
		}
		return EstimateText(string(data))
	}
}

func estimateToolSchema(params map[string]any) int {
	if len(params) == 0 {
		return 0
	}
	data, err := json.Marshal(params)
	if err != nil {
		return 0
	}
	return int(math.Ceil(float64(len(data)) / 4.0))
}

// TPOT computes time-per-output-token in milliseconds per spec §4.9.
// Returns nil ("undefined") when outputTokens <= 0.
func TPOT(streaming bool, ttftMillis, latencyMillis float64, outputTokens int, reasoningTokensPresent bool) *float64 {
	if outputTokens <= 0 {
		return nil
	}
	if !streaming {
		v := round2(latencyMillis / float64(outputTokens))
		return &v
	}
	if reasoningTokensPresent {
		v := round2(latencyMillis / float64(outputTokens))
		return &v
	}
	if latencyMillis <= 0 {
		v := round2(0)
		return &v
	}
	if ttftMillis/latencyMillis <= 0.2 {
		denom := math.Max(latencyMillis-ttftMillis, 0.2*latencyMillis)
		v := round2(denom / float64(outputTokens))
		return &v
	}
	v := round2(latencyMillis / float64(outputTokens))
	return &v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CachedTokensInput holds the cached-token usage fields an upstream may
// report; Resolve picks cached-read and cached-creation counts from
// whichever of the priority-ordered fields is present (spec §4.9).
type CachedTokensInput struct {
	AnthropicCacheRead      int
	AnthropicCacheCreation  int
	OpenAIPromptCached      int
	OpenAIInputDetailCached int
	TopLevelCachedTokens    int
}

// Resolve returns (read, creation) following the priority order in spec
// §4.9: Anthropic fields first, then the two OpenAI variants, then a
// bare top-level field (which is read-only; there is no separate
// creation concept for OpenAI).
func (in CachedTokensInput) Resolve() (read, creation int) {
	if in.AnthropicCacheRead > 0 || in.AnthropicCacheCreation > 0 {
		return in.AnthropicCacheRead, in.AnthropicCacheCreation
	}
	if in.OpenAIPromptCached > 0 {
		return in.OpenAIPromptCached, 0
	}
	if in.OpenAIInputDetailCached > 0 {
		return in.OpenAIInputDetailCached, 0
	}
	return in.TopLevelCachedTokens, 0
}
