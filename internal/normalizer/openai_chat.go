package normalizer

import (
	"encoding/json"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

type chatBody struct {
	Model       string          `json:"model"`
	Stream      bool            `json:"stream"`
	Messages    []chatMessage   `json:"messages"`
	Tools       []chatTool      `json:"tools"`
	ToolChoice  json.RawMessage `json:"tool_choice"`
	Functions   []legacyFunc    `json:"functions"`
	FunctionCal json.RawMessage `json:"function_call"`
	MaxTokens         *int     `json:"max_tokens"`
	MaxCompletionToks *int     `json:"max_completion_tokens"`
	Temperature       *float64 `json:"temperature"`
	TopP              *float64 `json:"top_p"`
	Stop              json.RawMessage `json:"stop"`
	Metadata          map[string]any  `json:"metadata"`
}

type chatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Name       string          `json:"name"`
	ToolCalls  []chatToolCall  `json:"tool_calls"`
	ToolCallID string          `json:"tool_call_id"`
	// legacy single-function-call assistant reply
	FunctionCall *legacyCall `json:"function_call"`
}

type chatToolCall struct {
	Index    *int   `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type legacyCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type legacyFunc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

// FromOpenAIChat parses a raw OpenAI Chat Completions request body into
// a NormalizedPayload (spec §4.1 "OpenAI Chat -> Normalized").
func FromOpenAIChat(raw []byte) (*model.NormalizedPayload, error) {
	var body chatBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, gwerr.InvalidRequest("malformed openai chat request body: %v", err)
	}
	if len(body.Messages) == 0 {
		return nil, gwerr.InvalidRequest("messages must not be empty")
	}

	tools, toolChoice, err := resolveChatTools(body)
	if err != nil {
		return nil, err
	}

	var system string
	messages := make([]model.Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		switch m.Role {
		case "system", "developer":
			text, err := flattenChatContent(m.Content)
			if err != nil {
				return nil, err
			}
			if system != "" {
				system += "\n"
			}
			system += text
			continue
		case "tool":
			content := decodeChatToolResultContent(m.Content)
			toolUseID := m.ToolCallID
			messages = append(messages, model.Message{
				Role:    model.RoleUser,
				Content: []model.ContentBlock{model.ToolResult{ToolUseID: toolUseID, Content: content}},
			})
			continue
		case "assistant":
			blocks, err := assistantBlocks(m)
			if err != nil {
				return nil, err
			}
			messages = append(messages, model.Message{Role: model.RoleAssistant, Content: blocks})
			continue
		case "user":
			blocks, err := decodeChatContentBlocks(m.Content)
			if err != nil {
				return nil, err
			}
			messages = append(messages, model.Message{Role: model.RoleUser, Content: blocks})
			continue
		default:
			return nil, gwerr.InvalidRequest("unsupported message role %q", m.Role)
		}
	}

	maxTokens := 0
	if body.MaxCompletionToks != nil {
		maxTokens = *body.MaxCompletionToks
	} else if body.MaxTokens != nil {
		maxTokens = *body.MaxTokens
	}

	p := &model.NormalizedPayload{
		Model:       body.Model,
		Stream:      body.Stream,
		Messages:    messages,
		System:      system,
		Tools:       tools,
		ToolChoice:  toolChoice,
		MaxTokens:   maxTokens,
		Temperature: body.Temperature,
		TopP:        body.TopP,
		Stop:        decodeChatStop(body.Stop),
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

// resolveChatTools converts legacy functions/function_call fields to
// their tools/tool_choice equivalents before normalization (spec §4.1).
func resolveChatTools(body chatBody) ([]model.ToolDefinition, *model.ToolChoice, error) {
	tools := make([]model.ToolDefinition, 0, len(body.Tools)+len(body.Functions))
	for _, t := range body.Tools {
		tools = append(tools, model.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	for _, f := range body.Functions {
		tools = append(tools, model.ToolDefinition{Name: f.Name, Description: f.Description, Parameters: f.Parameters})
	}

	toolChoice, err := decodeChatToolChoice(body.ToolChoice)
	if err != nil {
		return nil, nil, err
	}
	if toolChoice == nil && len(body.FunctionCal) > 0 && string(body.FunctionCal) != "null" {
		var asString string
		if err := json.Unmarshal(body.FunctionCal, &asString); err == nil {
			switch asString {
			case "auto":
				toolChoice = &model.ToolChoice{Mode: model.ToolChoiceAuto}
			case "none":
				toolChoice = &model.ToolChoice{Mode: model.ToolChoiceNone}
			}
		} else {
			var obj struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(body.FunctionCal, &obj); err == nil {
				toolChoice = &model.ToolChoice{Mode: model.ToolChoiceSpecific, Name: obj.Name}
			}
		}
	}
	return tools, toolChoice, nil
}

func decodeChatToolChoice(raw json.RawMessage) (*model.ToolChoice, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "auto":
			return &model.ToolChoice{Mode: model.ToolChoiceAuto}, nil
		case "none":
			return &model.ToolChoice{Mode: model.ToolChoiceNone}, nil
		case "required":
			return &model.ToolChoice{Mode: model.ToolChoiceRequired}, nil
		}
		return nil, gwerr.InvalidRequest("unsupported tool_choice %q", asString)
	}
	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, gwerr.InvalidRequest("invalid tool_choice: %v", err)
	}
	return &model.ToolChoice{Mode: model.ToolChoiceSpecific, Name: obj.Function.Name}, nil
}

func flattenChatContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var parts []chatContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", gwerr.InvalidRequest("invalid message content: %v", err)
	}
	out := ""
	for _, p := range parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out, nil
}

func decodeChatContentBlocks(raw json.RawMessage) ([]model.ContentBlock, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []model.ContentBlock{model.Text{Text: asString}}, nil
	}
	var parts []chatContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, gwerr.InvalidRequest("invalid message content: %v", err)
	}
	out := make([]model.ContentBlock, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case "text":
			out = append(out, model.Text{Text: p.Text})
		case "image_url":
			url := ""
			if p.ImageURL != nil {
				url = p.ImageURL.URL
			}
			out = append(out, model.Image{URL: url})
		default:
			return nil, gwerr.InvalidRequest("unsupported content part type %q", p.Type)
		}
	}
	return out, nil
}

func decodeChatToolResultContent(raw json.RawMessage) any {
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

func decodeChatStop(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []string{asString}
	}
	var list []string
	_ = json.Unmarshal(raw, &list)
	return list
}

// assistantBlocks converts an assistant message's tool_calls (or legacy
// function_call) into one ToolUse block per call; arguments are
// JSON-decoded, falling back to the raw argument string as the
// ToolUse's Input when decoding fails (spec §4.1).
func assistantBlocks(m chatMessage) ([]model.ContentBlock, error) {
	if len(m.ToolCalls) == 0 && m.FunctionCall == nil {
		text, err := flattenChatContent(m.Content)
		if err != nil {
			return nil, err
		}
		if text == "" {
			return nil, nil
		}
		return []model.ContentBlock{model.Text{Text: text}}, nil
	}
	out := make([]model.ContentBlock, 0, len(m.ToolCalls)+1)
	if m.FunctionCall != nil {
		out = append(out, toolUseFromArgs("", m.FunctionCall.Name, m.FunctionCall.Arguments))
	}
	for _, tc := range m.ToolCalls {
		out = append(out, toolUseFromArgs(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	return out, nil
}

func toolUseFromArgs(id, name, argsJSON string) model.ContentBlock {
	var decoded any
	if err := json.Unmarshal([]byte(argsJSON), &decoded); err != nil {
		return model.ToolUse{ID: id, Name: name, Input: argsJSON}
	}
	return model.ToolUse{ID: id, Name: name, Input: decoded}
}
