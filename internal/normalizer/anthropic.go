// Package normalizer converts each of the three client wire shapes
// (Anthropic Messages, OpenAI Chat Completions, OpenAI Responses) into
// the single canonical model.NormalizedPayload the rest of the gateway
// operates on.
package normalizer

import (
	"encoding/json"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

type anthropicBody struct {
	Model       string          `json:"model"`
	Stream      bool            `json:"stream"`
	System      json.RawMessage `json:"system"`
	Messages    []anthropicMsg  `json:"messages"`
	Tools       []anthropicTool `json:"tools"`
	ToolChoice  json.RawMessage `json:"tool_choice"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature"`
	TopP        *float64        `json:"top_p"`
	StopSeq     []string        `json:"stop_sequences"`
	Metadata    map[string]any  `json:"metadata"`
	Thinking    json.RawMessage `json:"thinking"`
}

type anthropicMsg struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
	Source    *anthropicImgSrc `json:"source"`
}

type anthropicImgSrc struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	URL       string `json:"url"`
}

// FromAnthropic parses a raw Anthropic Messages request body into a
// NormalizedPayload (spec §4.1 "Anthropic -> Normalized").
func FromAnthropic(raw []byte) (*model.NormalizedPayload, error) {
	var body anthropicBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, gwerr.InvalidRequest("malformed anthropic request body: %v", err)
	}
	if len(body.Messages) == 0 {
		return nil, gwerr.InvalidRequest("messages must not be empty")
	}

	system, err := flattenAnthropicSystem(body.System)
	if err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		blocks, err := decodeAnthropicContent(m.Content)
		if err != nil {
			return nil, err
		}
		messages = append(messages, model.Message{Role: model.Role(m.Role), Content: blocks})
	}

	tools := make([]model.ToolDefinition, 0, len(body.Tools))
	for _, t := range body.Tools {
		tools = append(tools, model.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}

	toolChoice, err := decodeAnthropicToolChoice(body.ToolChoice)
	if err != nil {
		return nil, err
	}

	p := &model.NormalizedPayload{
		Model:             body.Model,
		Stream:            body.Stream,
		Messages:          messages,
		System:            system,
		Tools:             tools,
		ToolChoice:        toolChoice,
		MaxTokens:         body.MaxTokens,
		Temperature:       body.Temperature,
		TopP:              body.TopP,
		Stop:              body.StopSeq,
		Metadata:          body.Metadata,
		ThinkingRequested: len(body.Thinking) > 0 && string(body.Thinking) != "null",
	}
	if err := p.Validate(); err != nil {
		return nil, gwerr.InvalidRequest("%v", err)
	}
	if err := validateToolInputs(p); err != nil {
		return nil, err
	}
	return p, nil
}

// flattenAnthropicSystem accepts either a bare string or an array of
// {type:text,text} blocks and flattens both to a single string.
func flattenAnthropicSystem(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var blocks []anthropicBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", gwerr.InvalidRequest("invalid system field: %v", err)
	}
	out := ""
	for _, b := range blocks {
		out += b.Text
	}
	return out, nil
}

func decodeAnthropicContent(raw json.RawMessage) ([]model.ContentBlock, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []model.ContentBlock{model.Text{Text: asString}}, nil
	}
	var blocks []anthropicBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, gwerr.InvalidRequest("invalid message content: %v", err)
	}
	out := make([]model.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, model.Text{Text: b.Text})
		case "image":
			img := model.Image{}
			if b.Source != nil {
				img.MIME = b.Source.MediaType
				if b.Source.Type == "url" {
					img.URL = b.Source.URL
				} else {
					img.Bytes = []byte(b.Source.Data)
				}
			}
			out = append(out, img)
		case "tool_use":
			var input any
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &input)
			}
			out = append(out, model.ToolUse{ID: b.ID, Name: b.Name, Input: input})
		case "tool_result":
			content := decodeToolResultContent(b.Content)
			out = append(out, model.ToolResult{ToolUseID: b.ToolUseID, Content: content, IsError: b.IsError})
		case "thinking":
			out = append(out, model.Thinking{Text: b.Text})
		default:
			return nil, gwerr.InvalidRequest("unknown content block type %q", b.Type)
		}
	}
	return out, nil
}

func decodeToolResultContent(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var generic any
	_ = json.Unmarshal(raw, &generic)
	return generic
}

func decodeAnthropicToolChoice(raw json.RawMessage) (*model.ToolChoice, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var obj struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, gwerr.InvalidRequest("invalid tool_choice: %v", err)
	}
	switch obj.Type {
	case "auto":
		return &model.ToolChoice{Mode: model.ToolChoiceAuto}, nil
	case "any":
		return &model.ToolChoice{Mode: model.ToolChoiceAny}, nil
	case "none":
		return &model.ToolChoice{Mode: model.ToolChoiceNone}, nil
	case "tool":
		return &model.ToolChoice{Mode: model.ToolChoiceSpecific, Name: obj.Name}, nil
	default:
		return nil, gwerr.InvalidRequest("unsupported tool_choice type %q", obj.Type)
	}
}
