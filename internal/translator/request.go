// Package translator builds upstream request bodies from a
// model.NormalizedPayload and translates upstream replies (both
// non-streaming and streaming) back into the client's wire shape
// (spec §4.3, §4.4, §4.5).
package translator

import (
	"encoding/json"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

type wireAnthropicRequest struct {
	Model       string           `json:"model"`
	Stream      bool             `json:"stream"`
	System      string           `json:"system,omitempty"`
	Messages    []wireAnthMsg    `json:"messages"`
	Tools       []wireAnthTool   `json:"tools,omitempty"`
	ToolChoice  any              `json:"tool_choice,omitempty"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	StopSeq     []string         `json:"stop_sequences,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

type wireAnthMsg struct {
	Role    string          `json:"role"`
	Content []wireAnthBlock `json:"content"`
}

type wireAnthBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     any             `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   any             `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Source    *wireAnthImgSrc `json:"source,omitempty"`
}

type wireAnthImgSrc struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type wireAnthTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// BuildAnthropicRequest builds an Anthropic Messages request body for
// the routed upstream model (spec §4.3 "Anthropic -> Anthropic" and
// "OpenAI -> Anthropic" rows: both funnel through the same builder once
// the payload is normalized).
func BuildAnthropicRequest(p *model.NormalizedPayload, upstreamModel string) ([]byte, error) {
	req := wireAnthropicRequest{
		Model:       upstreamModel,
		Stream:      p.Stream,
		System:      p.System,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		StopSeq:     p.Stop,
		Metadata:    p.Metadata,
	}
	for _, m := range p.Messages {
		req.Messages = append(req.Messages, wireAnthMsg{Role: string(m.Role), Content: blocksToAnthropic(m.Content)})
	}
	for _, t := range p.Tools {
		req.Tools = append(req.Tools, wireAnthTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	req.ToolChoice = toolChoiceToAnthropic(p.ToolChoice)
	return json.Marshal(req)
}

func blocksToAnthropic(blocks []model.ContentBlock) []wireAnthBlock {
	out := make([]wireAnthBlock, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case model.Text:
			out = append(out, wireAnthBlock{Type: "text", Text: v.Text})
		case model.Image:
			src := &wireAnthImgSrc{MediaType: v.MIME}
			if v.URL != "" {
				src.Type = "url"
				src.URL = v.URL
			} else {
				src.Type = "base64"
				src.Data = string(v.Bytes)
			}
			out = append(out, wireAnthBlock{Type: "image", Source: src})
		case model.ToolUse:
			out = append(out, wireAnthBlock{Type: "tool_use", ID: v.ID, Name: v.Name, Input: v.Input})
		case model.ToolResult:
			out = append(out, wireAnthBlock{Type: "tool_result", ToolUseID: v.ToolUseID, Content: v.Content, IsError: v.IsError})
		case model.Thinking:
			out = append(out, wireAnthBlock{Type: "thinking", Text: v.Text})
		}
	}
	return out
}

func toolChoiceToAnthropic(tc *model.ToolChoice) any {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case model.ToolChoiceAuto:
		return map[string]any{"type": "auto"}
	case model.ToolChoiceAny, model.ToolChoiceRequired:
		return map[string]any{"type": "any"}
	case model.ToolChoiceNone:
		return map[string]any{"type": "none"}
	case model.ToolChoiceSpecific:
		return map[string]any{"type": "tool", "name": tc.Name}
	default:
		return nil
	}
}

// --- OpenAI Chat ---

type wireChatRequest struct {
	Model             string          `json:"model"`
	Stream            bool            `json:"stream"`
	Messages          []wireChatMsg   `json:"messages"`
	Tools             []wireChatTool  `json:"tools,omitempty"`
	ToolChoice        any             `json:"tool_choice,omitempty"`
	MaxCompletionToks int             `json:"max_completion_tokens,omitempty"`
	Temperature       *float64        `json:"temperature,omitempty"`
	TopP              *float64        `json:"top_p,omitempty"`
	Stop              []string        `json:"stop,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
}

type wireChatMsg struct {
	Role       string             `json:"role"`
	Content    any                `json:"content,omitempty"`
	ToolCalls  []wireChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
}

type wireChatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireChatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type wireContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// BuildOpenAIChatRequest flattens a NormalizedPayload into an OpenAI
// Chat Completions request body. System becomes a leading system
// message; tool_use/tool_result blocks become tool_calls/role=tool
// messages (spec §4.3).
func BuildOpenAIChatRequest(p *model.NormalizedPayload, upstreamModel string) ([]byte, error) {
	req := wireChatRequest{
		Model:             upstreamModel,
		Stream:            p.Stream,
		MaxCompletionToks: p.MaxTokens,
		Temperature:       p.Temperature,
		TopP:              p.TopP,
		Stop:              p.Stop,
		Metadata:          p.Metadata,
	}
	if p.System != "" {
		req.Messages = append(req.Messages, wireChatMsg{Role: "system", Content: p.System})
	}
	for _, m := range p.Messages {
		req.Messages = append(req.Messages, messageToChat(m)...)
	}
	for _, t := range p.Tools {
		wt := wireChatTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, wt)
	}
	req.ToolChoice = toolChoiceToChat(p.ToolChoice)
	return json.Marshal(req)
}

func messageToChat(m model.Message) []wireChatMsg {
	var toolUses []model.ToolUse
	var toolResults []model.ToolResult
	var textParts []wireContentPart
	for _, b := range m.Content {
		switch v := b.(type) {
		case model.Text:
			textParts = append(textParts, wireContentPart{Type: "text", Text: v.Text})
		case model.Image:
			part := wireContentPart{Type: "image_url"}
			part.ImageURL = &struct {
				URL string `json:"url"`
			}{URL: v.URL}
			textParts = append(textParts, part)
		case model.ToolUse:
			toolUses = append(toolUses, v)
		case model.ToolResult:
			toolResults = append(toolResults, v)
		case model.Thinking:
			textParts = append(textParts, wireContentPart{Type: "text", Text: v.Text})
		}
	}

	var out []wireChatMsg
	for _, tr := range toolResults {
		out = append(out, wireChatMsg{Role: "tool", ToolCallID: tr.ToolUseID, Content: stringifyToolResult(tr.Content)})
	}
	if len(toolUses) > 0 {
		msg := wireChatMsg{Role: "assistant"}
		for _, tu := range toolUses {
			call := wireChatToolCall{ID: tu.ID, Type: "function"}
			call.Function.Name = tu.Name
			call.Function.Arguments = stringifyArgs(tu.Input)
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		out = append(out, msg)
		return out
	}
	if len(textParts) > 0 {
		role := string(m.Role)
		if role == "" {
			role = "user"
		}
		if len(textParts) == 1 && textParts[0].Type == "text" {
			out = append(out, wireChatMsg{Role: role, Content: textParts[0].Text})
		} else {
			out = append(out, wireChatMsg{Role: role, Content: textParts})
		}
	}
	return out
}

func stringifyArgs(input any) string {
	if input == nil {
		return "{}"
	}
	if s, ok := input.(string); ok {
		return s
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func stringifyToolResult(content any) string {
	if content == nil {
		return ""
	}
	if s, ok := content.(string); ok {
		return s
	}
	data, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(data)
}

func toolChoiceToChat(tc *model.ToolChoice) any {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case model.ToolChoiceAuto:
		return "auto"
	case model.ToolChoiceNone:
		return "none"
	case model.ToolChoiceRequired, model.ToolChoiceAny:
		return "required"
	case model.ToolChoiceSpecific:
		return map[string]any{"type": "function", "function": map[string]any{"name": tc.Name}}
	default:
		return nil
	}
}

// --- OpenAI Responses ---

type wireResponsesRequest struct {
	Model        string          `json:"model"`
	Stream       bool            `json:"stream"`
	Input        []wireRespItem  `json:"input"`
	Instructions string          `json:"instructions,omitempty"`
	Tools        []wireChatTool  `json:"tools,omitempty"`
	ToolChoice   any             `json:"tool_choice,omitempty"`
	MaxOutputTok int             `json:"max_output_tokens,omitempty"`
	Temperature  *float64        `json:"temperature,omitempty"`
	TopP         *float64        `json:"top_p,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

type wireRespItem struct {
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Output    string `json:"output,omitempty"`
}

// BuildOpenAIResponsesRequest builds an OpenAI Responses request body;
// system becomes instructions, and each message/tool_use/tool_result
// block becomes one input item (spec §4.3).
func BuildOpenAIResponsesRequest(p *model.NormalizedPayload, upstreamModel string) ([]byte, error) {
	req := wireResponsesRequest{
		Model:        upstreamModel,
		Stream:       p.Stream,
		Instructions: p.System,
		MaxOutputTok: p.MaxTokens,
		Temperature:  p.Temperature,
		TopP:         p.TopP,
		Metadata:     p.Metadata,
	}
	for _, m := range p.Messages {
		req.Input = append(req.Input, messageToResponsesItems(m)...)
	}
	for _, t := range p.Tools {
		wt := wireChatTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, wt)
	}
	req.ToolChoice = toolChoiceToChat(p.ToolChoice)
	return json.Marshal(req)
}

func messageToResponsesItems(m model.Message) []wireRespItem {
	var out []wireRespItem
	for _, b := range m.Content {
		switch v := b.(type) {
		case model.Text:
			out = append(out, wireRespItem{Type: "message", Role: string(m.Role), Text: v.Text})
		case model.Thinking:
			out = append(out, wireRespItem{Type: "message", Role: string(m.Role), Text: v.Text})
		case model.ToolUse:
			out = append(out, wireRespItem{Type: "function_call", ID: v.ID, Name: v.Name, Arguments: stringifyArgs(v.Input)})
		case model.ToolResult:
			out = append(out, wireRespItem{Type: "function_call_output", CallID: v.ToolUseID, Output: stringifyToolResult(v.Content)})
		}
	}
	return out
}
