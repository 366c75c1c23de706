package handler

import (
	"encoding/json"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
	"github.com/chenpu17/cc-gw-sub001/internal/normalizer"
)

// resolveKind turns KindOpenAIAuto into KindOpenAIChat or
// KindOpenAIResponses by sniffing the body for a top-level "input" key
// (spec §6: "openai-auto inspects the body: presence of input →
// responses, else chat"). Every other Kind passes through unchanged.
func resolveKind(kind Kind, raw []byte) Kind {
	if kind != KindOpenAIAuto {
		return kind
	}
	var probe struct {
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && len(probe.Input) > 0 {
		return KindOpenAIResponses
	}
	return KindOpenAIChat
}

// normalize dispatches raw to the normalizer entry point matching kind.
func normalize(kind Kind, raw []byte) (*model.NormalizedPayload, error) {
	var (
		payload *model.NormalizedPayload
		err     error
	)
	switch kind {
	case KindAnthropic:
		payload, err = normalizer.FromAnthropic(raw)
	case KindOpenAIChat:
		payload, err = normalizer.FromOpenAIChat(raw)
	case KindOpenAIResponses:
		payload, err = normalizer.FromOpenAIResponses(raw)
	default:
		return nil, gwerr.Internal(nil)
	}
	if err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, gwerr.InvalidRequest("%v", err)
	}
	return payload, nil
}
