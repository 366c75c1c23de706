package model

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes a Message, tagging each ContentBlock with a "kind"
// discriminator so round-tripping through JSON (e.g. into the stored
// request/response payload columns) does not lose the concrete block
// type. Mirrors the Kind-discriminated encoding in the teacher's
// runtime/agent/model/json.go, applied to this package's block set.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		Role    Role  `json:"role"`
		Content []any `json:"content"`
	}
	out := wire{Role: m.Role}
	for i, b := range m.Content {
		enc, err := encodeBlock(b)
		if err != nil {
			return nil, fmt.Errorf("encode content[%d]: %w", i, err)
		}
		out.Content = append(out.Content, enc)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a Message, materializing the concrete ContentBlock
// implementation named by each element's "kind" field.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role              `json:"role"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = make([]ContentBlock, 0, len(raw.Content))
	for i, r := range raw.Content {
		b, err := decodeBlock(r)
		if err != nil {
			return fmt.Errorf("decode content[%d]: %w", i, err)
		}
		m.Content = append(m.Content, b)
	}
	return nil
}

func encodeBlock(b ContentBlock) (any, error) {
	switch v := b.(type) {
	case Text:
		return struct {
			Kind string `json:"kind"`
			Text
		}{Kind: "text", Text: v}, nil
	case Image:
		return struct {
			Kind string `json:"kind"`
			Image
		}{Kind: "image", Image: v}, nil
	case ToolUse:
		return struct {
			Kind string `json:"kind"`
			ToolUse
		}{Kind: "tool_use", ToolUse: v}, nil
	case ToolResult:
		return struct {
			Kind string `json:"kind"`
			ToolResult
		}{Kind: "tool_result", ToolResult: v}, nil
	case Thinking:
		return struct {
			Kind string `json:"kind"`
			Thinking
		}{Kind: "thinking", Thinking: v}, nil
	default:
		return nil, fmt.Errorf("model: unknown content block type %T", b)
	}
}

func decodeBlock(raw json.RawMessage) (ContentBlock, error) {
	var tag struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}
	switch tag.Kind {
	case "text":
		var v struct {
			Text
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v.Text, nil
	case "image":
		var v struct {
			Image
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v.Image, nil
	case "tool_use":
		var v struct {
			ToolUse
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v.ToolUse, nil
	case "tool_result":
		var v struct {
			ToolResult
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v.ToolResult, nil
	case "thinking":
		var v struct {
			Thinking
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v.Thinking, nil
	default:
		return nil, fmt.Errorf("model: unknown content block kind %q", tag.Kind)
	}
}
