package translator

import (
	"os"
	"strings"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// betaFamilyPatterns are the string-pattern presets identifying Anthropic
// model families that need the fine-grained-tool-streaming beta header.
var betaFamilyPatterns = []string{"sonnet-4-5", "haiku-4-5"}

// betaHeaderFor resolves the anthropic-beta header value (if any) for a
// routed Anthropic model. Precedence (DESIGN.md open-question decision):
// a per-model env override wins, then the global env override, then the
// built-in string-pattern preset.
func betaHeaderFor(upstreamModel string) string {
	modelKey := envModelKey(upstreamModel)
	if v := os.Getenv("CC_GW_ANTHROPIC_BETA_" + modelKey); v != "" {
		return v
	}
	if v := os.Getenv("CC_GW_ANTHROPIC_BETA_ALL"); v != "" {
		return v
	}
	if matchesBetaFamily(upstreamModel) {
		return "fine-grained-tool-streaming-2025-05-14"
	}
	return ""
}

// BetaHeaders returns the extra headers a connector send must carry for
// upstreamType/upstreamModel. Only Anthropic upstreams carry a
// conditional anthropic-beta header; every other upstream type returns
// nil so callers can merge the result straight into
// connector.SendRequest.ExtraHeaders without a type switch.
func BetaHeaders(upstreamType model.UpstreamType, upstreamModel string) map[string]string {
	if upstreamType != model.UpstreamAnthropic {
		return nil
	}
	if v := betaHeaderFor(upstreamModel); v != "" {
		return map[string]string{"anthropic-beta": v}
	}
	return nil
}

func matchesBetaFamily(upstreamModel string) bool {
	for _, pattern := range betaFamilyPatterns {
		if strings.Contains(upstreamModel, pattern) {
			return true
		}
	}
	return false
}

// envModelKey turns a model id into the uppercase, underscore-separated
// form used by CC_GW_ANTHROPIC_BETA_<MODEL_ID_UP>.
func envModelKey(upstreamModel string) string {
	var b strings.Builder
	for _, r := range upstreamModel {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
