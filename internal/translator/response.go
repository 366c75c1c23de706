package translator

import (
	"encoding/json"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
	"github.com/chenpu17/cc-gw-sub001/internal/tokenizer"
)

// normalizedResponse is the internal canonical shape a non-streaming
// upstream reply is parsed into before being rebuilt in the client's
// wire shape (spec §4.4).
type normalizedResponse struct {
	ID         string
	Model      string
	Content    []model.ContentBlock
	StopReason string // anthropic vocabulary
	Usage      model.TokenUsage
}

// TranslateResponse converts a non-streaming upstream body from
// upstreamProto into clientProto's wire shape. When the two protocols
// match, the body is forwarded unchanged but usage is still extracted
// for logging.
func TranslateResponse(clientProto, upstreamProto model.UpstreamType, upstreamBody []byte) ([]byte, model.TokenUsage, error) {
	resp, err := parseUpstreamResponse(upstreamProto, upstreamBody)
	if err != nil {
		return nil, model.TokenUsage{}, err
	}
	if clientProto == upstreamProto {
		return upstreamBody, resp.Usage, nil
	}
	out, err := buildClientResponse(clientProto, resp)
	if err != nil {
		return nil, model.TokenUsage{}, err
	}
	return out, resp.Usage, nil
}

func parseUpstreamResponse(upstreamProto model.UpstreamType, raw []byte) (normalizedResponse, error) {
	switch upstreamProto {
	case model.UpstreamAnthropic:
		return parseAnthropicResponse(raw)
	case model.UpstreamOpenAIChat:
		return parseOpenAIChatResponse(raw)
	case model.UpstreamOpenAIResponses:
		return parseOpenAIResponsesResponse(raw)
	default:
		return normalizedResponse{}, gwerr.Internal(nil)
	}
}

func buildClientResponse(clientProto model.UpstreamType, resp normalizedResponse) ([]byte, error) {
	switch clientProto {
	case model.UpstreamAnthropic:
		return buildAnthropicResponse(resp)
	case model.UpstreamOpenAIChat:
		return buildOpenAIChatResponse(resp)
	case model.UpstreamOpenAIResponses:
		return buildOpenAIResponsesResponse(resp)
	default:
		return nil, gwerr.Internal(nil)
	}
}

// --- Anthropic ---

type anthResponseWire struct {
	ID         string           `json:"id"`
	Model      string           `json:"model"`
	Content    []wireAnthBlock  `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthUsageWire    `json:"usage"`
}

type anthUsageWire struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

func parseAnthropicResponse(raw []byte) (normalizedResponse, error) {
	var w anthResponseWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return normalizedResponse{}, gwerr.UpstreamDecode(err)
	}
	content := make([]model.ContentBlock, 0, len(w.Content))
	for _, b := range w.Content {
		content = append(content, anthWireBlockToModel(b))
	}
	read, creation := tokenizer.CachedTokensInput{
		AnthropicCacheRead:     w.Usage.CacheReadInputTokens,
		AnthropicCacheCreation: w.Usage.CacheCreationInputTokens,
	}.Resolve()
	return normalizedResponse{
		ID:         w.ID,
		Model:      w.Model,
		Content:    content,
		StopReason: w.StopReason,
		Usage: model.TokenUsage{
			InputTokens:       w.Usage.InputTokens,
			OutputTokens:      w.Usage.OutputTokens,
			CachedReadTokens:  read,
			CachedWriteTokens: creation,
		},
	}, nil
}

func anthWireBlockToModel(b wireAnthBlock) model.ContentBlock {
	switch b.Type {
	case "tool_use":
		return model.ToolUse{ID: b.ID, Name: b.Name, Input: b.Input}
	case "thinking":
		return model.Thinking{Text: b.Text}
	default:
		return model.Text{Text: b.Text}
	}
}

func buildAnthropicResponse(resp normalizedResponse) ([]byte, error) {
	w := anthResponseWire{
		ID:         resp.ID,
		Model:      resp.Model,
		Content:    blocksToAnthropic(resp.Content),
		StopReason: resp.StopReason,
		Usage: anthUsageWire{
			InputTokens:              resp.Usage.InputTokens,
			OutputTokens:             resp.Usage.OutputTokens,
			CacheReadInputTokens:     resp.Usage.CachedReadTokens,
			CacheCreationInputTokens: resp.Usage.CachedWriteTokens,
		},
	}
	return json.Marshal(w)
}

// --- OpenAI Chat ---

type chatResponseWire struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int            `json:"index"`
		Message      chatRespMsg    `json:"message"`
		FinishReason string         `json:"finish_reason"`
	} `json:"choices"`
	Usage chatUsageWire `json:"usage"`
}

type chatRespMsg struct {
	Role      string             `json:"role"`
	Content   string             `json:"content"`
	ToolCalls []wireChatToolCall `json:"tool_calls"`
}

type chatUsageWire struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

func parseOpenAIChatResponse(raw []byte) (normalizedResponse, error) {
	var w chatResponseWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return normalizedResponse{}, gwerr.UpstreamDecode(err)
	}
	if len(w.Choices) == 0 {
		return normalizedResponse{}, gwerr.UpstreamDecode(nil)
	}
	choice := w.Choices[0]
	var content []model.ContentBlock
	if choice.Message.Content != "" {
		content = append(content, model.Text{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		var input any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			input = tc.Function.Arguments
		}
		content = append(content, model.ToolUse{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	cached := 0
	if w.Usage.PromptTokensDetails != nil {
		cached = w.Usage.PromptTokensDetails.CachedTokens
	}
	read, _ := tokenizer.CachedTokensInput{OpenAIPromptCached: cached}.Resolve()
	return normalizedResponse{
		ID:         w.ID,
		Model:      w.Model,
		Content:    content,
		StopReason: openAIChatFinishToAnthropicStop(choice.FinishReason),
		Usage: model.TokenUsage{
			InputTokens:      w.Usage.PromptTokens,
			OutputTokens:     w.Usage.CompletionTokens,
			CachedReadTokens: read,
		},
	}, nil
}

func buildOpenAIChatResponse(resp normalizedResponse) ([]byte, error) {
	msg := chatRespMsg{Role: "assistant"}
	var text string
	for _, b := range resp.Content {
		switch v := b.(type) {
		case model.Text:
			text += v.Text
		case model.ToolUse:
			call := wireChatToolCall{ID: v.ID, Type: "function"}
			call.Function.Name = v.Name
			call.Function.Arguments = stringifyArgs(v.Input)
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
	}
	msg.Content = text
	w := chatResponseWire{
		ID:    resp.ID,
		Model: resp.Model,
		Choices: []struct {
			Index        int         `json:"index"`
			Message      chatRespMsg `json:"message"`
			FinishReason string      `json:"finish_reason"`
		}{{Index: 0, Message: msg, FinishReason: anthropicStopToOpenAIChatFinish(resp.StopReason)}},
		Usage: chatUsageWire{PromptTokens: resp.Usage.InputTokens, CompletionTokens: resp.Usage.OutputTokens},
	}
	return json.Marshal(w)
}

// --- OpenAI Responses ---

type respResponseWire struct {
	ID     string          `json:"id"`
	Model  string          `json:"model"`
	Status string          `json:"status"`
	Output []respOutputItem `json:"output"`
	Usage  respUsageWire   `json:"usage"`
}

type respOutputItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []respOutputContent `json:"content,omitempty"`
	ID      string             `json:"id,omitempty"`
	Name    string             `json:"name,omitempty"`
	Arguments string           `json:"arguments,omitempty"`
}

type respOutputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type respUsageWire struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	InputTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
}

func parseOpenAIResponsesResponse(raw []byte) (normalizedResponse, error) {
	var w respResponseWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return normalizedResponse{}, gwerr.UpstreamDecode(err)
	}
	var content []model.ContentBlock
	for _, item := range w.Output {
		switch item.Type {
		case "function_call", "tool_use":
			var input any
			if err := json.Unmarshal([]byte(item.Arguments), &input); err != nil {
				input = item.Arguments
			}
			content = append(content, model.ToolUse{ID: item.ID, Name: item.Name, Input: input})
		default:
			for _, c := range item.Content {
				content = append(content, model.Text{Text: c.Text})
			}
		}
	}
	cached := 0
	if w.Usage.InputTokensDetails != nil {
		cached = w.Usage.InputTokensDetails.CachedTokens
	}
	read, _ := tokenizer.CachedTokensInput{OpenAIInputDetailCached: cached}.Resolve()
	return normalizedResponse{
		ID:         w.ID,
		Model:      w.Model,
		Content:    content,
		StopReason: openAIResponsesStatusToAnthropicStop(w.Status),
		Usage: model.TokenUsage{
			InputTokens:      w.Usage.InputTokens,
			OutputTokens:     w.Usage.OutputTokens,
			CachedReadTokens: read,
		},
	}, nil
}

func buildOpenAIResponsesResponse(resp normalizedResponse) ([]byte, error) {
	var textBuf string
	var output []respOutputItem
	for _, b := range resp.Content {
		switch v := b.(type) {
		case model.Text:
			textBuf += v.Text
		case model.ToolUse:
			output = append(output, respOutputItem{Type: "function_call", ID: v.ID, Name: v.Name, Arguments: stringifyArgs(v.Input)})
		}
	}
	if textBuf != "" {
		output = append([]respOutputItem{{
			Type:    "output_message",
			Content: []respOutputContent{{Type: "output_text", Text: textBuf}},
		}}, output...)
	}
	w := respResponseWire{
		ID:     resp.ID,
		Model:  resp.Model,
		Status: anthropicStopToOpenAIResponsesStatus(resp.StopReason),
		Output: output,
		Usage:  respUsageWire{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}
	return json.Marshal(w)
}
