package normalizer

import (
	"encoding/json"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

type responsesBody struct {
	Model        string          `json:"model"`
	Stream       bool            `json:"stream"`
	Input        json.RawMessage `json:"input"`
	Instructions string          `json:"instructions"`
	Tools        []chatTool      `json:"tools"`
	ToolChoice   json.RawMessage `json:"tool_choice"`
	MaxOutputTok *int            `json:"max_output_tokens"`
	Temperature  *float64        `json:"temperature"`
	TopP         *float64        `json:"top_p"`
	Metadata     map[string]any  `json:"metadata"`
}

type responsesItem struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	CallID    string          `json:"call_id"`
	Output    json.RawMessage `json:"output"`
	Content   json.RawMessage `json:"content"`
}

// FromOpenAIResponses parses a raw OpenAI Responses request body into a
// NormalizedPayload (spec §4.1 "OpenAI Responses -> Normalized").
func FromOpenAIResponses(raw []byte) (*model.NormalizedPayload, error) {
	var body responsesBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, gwerr.InvalidRequest("malformed openai responses request body: %v", err)
	}
	if len(body.Input) == 0 || string(body.Input) == "null" {
		return nil, gwerr.InvalidRequest("input must not be empty")
	}

	messages, err := decodeResponsesInput(body.Input)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, gwerr.InvalidRequest("input must not be empty")
	}

	tools := make([]model.ToolDefinition, 0, len(body.Tools))
	for _, t := range body.Tools {
		tools = append(tools, model.ToolDefinition{Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters})
	}
	toolChoice, err := decodeChatToolChoice(body.ToolChoice)
	if err != nil {
		return nil, err
	}

	maxTokens := 0
	if body.MaxOutputTok != nil {
		maxTokens = *body.MaxOutputTok
	}

	p := &model.NormalizedPayload{
		Model:       body.Model,
		Stream:      body.Stream,
		Messages:    messages,
		System:      body.Instructions,
		Tools:       tools,
		ToolChoice:  toolChoice,
		MaxTokens:   maxTokens,
		Temperature: body.Temperature,
		TopP:        body.TopP,
		Metadata:    body.Metadata,
	}
	if err := p.Validate(); err != nil {
		return nil, gwerr.InvalidRequest("%v", err)
	}
	if err := validateToolInputs(p); err != nil {
		return nil, err
	}
	return p, nil
}

// decodeResponsesInput accepts either a bare string (a single user
// message) or the structured item-array variant.
func decodeResponsesInput(raw json.RawMessage) ([]model.Message, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []model.Message{{Role: model.RoleUser, Content: []model.ContentBlock{model.Text{Text: asString}}}}, nil
	}

	var items []responsesItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, gwerr.InvalidRequest("invalid input field: %v", err)
	}

	messages := make([]model.Message, 0, len(items))
	for _, it := range items {
		switch it.Type {
		case "message", "":
			role := model.Role(it.Role)
			if role == "" {
				role = model.RoleUser
			}
			blocks, err := decodeResponsesMessageContent(it.Content, it.Text)
			if err != nil {
				return nil, err
			}
			messages = append(messages, model.Message{Role: role, Content: blocks})
		case "input_text":
			messages = append(messages, model.Message{Role: model.RoleUser, Content: []model.ContentBlock{model.Text{Text: it.Text}}})
		case "output_text":
			messages = append(messages, model.Message{Role: model.RoleAssistant, Content: []model.ContentBlock{model.Text{Text: it.Text}}})
		case "tool_use", "function_call":
			var input any
			if len(it.Arguments) > 0 {
				_ = json.Unmarshal(it.Arguments, &input)
			}
			messages = append(messages, model.Message{Role: model.RoleAssistant, Content: []model.ContentBlock{model.ToolUse{ID: it.ID, Name: it.Name, Input: input}}})
		case "tool_result", "function_call_output":
			content := decodeChatToolResultContent(it.Output)
			messages = append(messages, model.Message{Role: model.RoleUser, Content: []model.ContentBlock{model.ToolResult{ToolUseID: it.CallID, Content: content}}})
		default:
			return nil, gwerr.InvalidRequest("unsupported input item type %q", it.Type)
		}
	}
	return messages, nil
}

func decodeResponsesMessageContent(raw json.RawMessage, fallbackText string) ([]model.ContentBlock, error) {
	if len(raw) == 0 || string(raw) == "null" {
		if fallbackText == "" {
			return nil, nil
		}
		return []model.ContentBlock{model.Text{Text: fallbackText}}, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []model.ContentBlock{model.Text{Text: asString}}, nil
	}
	var parts []responsesItem
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, gwerr.InvalidRequest("invalid message content: %v", err)
	}
	out := make([]model.ContentBlock, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case "input_text", "output_text", "text":
			out = append(out, model.Text{Text: p.Text})
		default:
			out = append(out, model.Text{Text: p.Text})
		}
	}
	return out, nil
}
