package translator

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
	"github.com/chenpu17/cc-gw-sub001/internal/sse"
	"github.com/chenpu17/cc-gw-sub001/internal/usage"
)

// ClientEvent is one SSE event ready to be framed and written to the
// client (spec §4.5 "Translation matrix").
type ClientEvent struct {
	Name string // SSE "event:" line; empty when the protocol uses bare data lines
	Data string
}

// opKind enumerates the upstream-protocol-independent operations the
// per-upstream parsers reduce every SSE event to.
type opKind string

const (
	opStart     opKind = "start"
	opTextDelta opKind = "text_delta"
	opToolStart opKind = "tool_start"
	opToolArgs  opKind = "tool_args_delta"
	opStop      opKind = "stop"
	opUsage     opKind = "usage"
)

type op struct {
	kind       opKind
	index      int
	text       string
	toolID     string
	toolName   string
	stopReason string
	usage      model.TokenUsage
}

type blockAgg struct {
	kind     string // "text" | "tool_use"
	text     strings.Builder
	toolID   string
	toolName string
	args     strings.Builder
}

// StreamTranslator consumes upstream SSE events for one request and
// re-emits them in the client's protocol shape, maintaining the
// ordered block-index table and usage accumulator from spec §4.5.
type StreamTranslator struct {
	ClientProto   model.UpstreamType
	UpstreamProto model.UpstreamType

	blocks map[int]*blockAgg
	order  []int

	acc *usage.Accumulator

	messageID  string
	modelName  string
	stopReason string

	startedAt    time.Time
	firstTokenAt *time.Duration

	chatHeaderSent bool
	respCreatedSent bool
	anthStartSent  bool

	// anthOpenBlocks tracks, per block index, whether a content_block_start
	// has been emitted to an Anthropic-shaped client without a matching
	// content_block_stop yet (spec §4.5 Anthropic streaming event set).
	anthOpenBlocks map[int]bool
	anthTerminalSent bool

	// openaiChatToolIndexSent tracks, per block index, whether the
	// initial tool_calls[i] header (id+name) has been emitted.
	openaiChatToolIndexSent map[int]bool
}

// NewStreamTranslator constructs a translator for one request.
func NewStreamTranslator(clientProto, upstreamProto model.UpstreamType, startedAt time.Time) *StreamTranslator {
	return &StreamTranslator{
		ClientProto:             clientProto,
		UpstreamProto:           upstreamProto,
		blocks:                  make(map[int]*blockAgg),
		acc:                     usage.NewAccumulator(),
		startedAt:               startedAt,
		anthOpenBlocks:          make(map[int]bool),
		openaiChatToolIndexSent: make(map[int]bool),
	}
}

// TTFT returns the measured time-to-first-token, or nil if no text
// token has arrived yet.
func (s *StreamTranslator) TTFT() *time.Duration {
	return s.firstTokenAt
}

// Usage returns the accumulated usage snapshot.
func (s *StreamTranslator) Usage() model.TokenUsage {
	return s.acc.Snapshot()
}

// Step feeds one upstream SSE event into the translator and returns the
// client events it produces (zero or more) plus whether this event was
// the upstream's terminal event.
func (s *StreamTranslator) Step(ev sse.Event, now time.Time) ([]ClientEvent, bool, error) {
	if sse.IsDone(ev) {
		return s.terminalEvents(), true, nil
	}
	ops, terminal, err := s.parseUpstream(ev)
	if err != nil {
		return nil, false, err
	}
	var out []ClientEvent
	for _, o := range ops {
		if o.kind == opTextDelta && s.firstTokenAt == nil {
			d := now.Sub(s.startedAt)
			s.firstTokenAt = &d
		}
		if o.kind == opUsage {
			s.acc.Observe(o.usage)
		}
		if o.kind == opStop {
			s.stopReason = o.stopReason
		}
		events := s.render(o)
		out = append(out, events...)
	}
	if terminal {
		out = append(out, s.terminalEvents()...)
	}
	return out, terminal, nil
}

// terminalEvents renders the stream's closing frame exactly once. Every
// upstream protocol signals completion differently (a dedicated
// message_stop event, a bundled response.completed, or the bare [DONE]
// sentinel), so this is the single place that guarantees an Anthropic
// client always sees its message_stop regardless of which upstream
// produced the stream (spec §4.5 "Terminal action").
func (s *StreamTranslator) terminalEvents() []ClientEvent {
	if s.anthTerminalSent {
		return nil
	}
	s.anthTerminalSent = true
	if s.ClientProto != model.UpstreamAnthropic {
		return nil
	}
	var out []ClientEvent
	out = append(out, s.closeOpenAnthBlocks()...)
	out = append(out, ClientEvent{Name: "message_stop", Data: mustJSON(map[string]any{"type": "message_stop"})})
	return out
}

// closeOpenAnthBlocks emits content_block_stop for every Anthropic block
// index still open, in the order each was first opened.
func (s *StreamTranslator) closeOpenAnthBlocks() []ClientEvent {
	var out []ClientEvent
	for _, idx := range s.order {
		if !s.anthOpenBlocks[idx] {
			continue
		}
		s.anthOpenBlocks[idx] = false
		out = append(out, ClientEvent{Name: "content_block_stop", Data: mustJSON(map[string]any{
			"type":  "content_block_stop",
			"index": idx,
		})})
	}
	return out
}

func (s *StreamTranslator) blockFor(index int, kind string) *blockAgg {
	b, ok := s.blocks[index]
	if !ok {
		b = &blockAgg{kind: kind}
		s.blocks[index] = b
		s.order = append(s.order, index)
	}
	return b
}

// --- upstream parsing ---

func (s *StreamTranslator) parseUpstream(ev sse.Event) ([]op, bool, error) {
	switch s.UpstreamProto {
	case model.UpstreamAnthropic:
		return s.parseAnthropicEvent(ev)
	case model.UpstreamOpenAIChat:
		return s.parseOpenAIChatEvent(ev)
	case model.UpstreamOpenAIResponses:
		return s.parseOpenAIResponsesEvent(ev)
	default:
		return nil, false, gwerr.Internal(nil)
	}
}

type anthEventWire struct {
	Type         string `json:"type"`
	Message      struct {
		ID    string `json:"id"`
		Model string `json:"model"`
	} `json:"message"`
	Index       int `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (s *StreamTranslator) parseAnthropicEvent(ev sse.Event) ([]op, bool, error) {
	var w anthEventWire
	if err := json.Unmarshal([]byte(ev.Data), &w); err != nil {
		return nil, false, gwerr.UpstreamDecode(err)
	}
	switch w.Type {
	case "message_start":
		s.messageID = w.Message.ID
		s.modelName = w.Message.Model
		return []op{{kind: opStart}}, false, nil
	case "content_block_start":
		b := s.blockFor(w.Index, w.ContentBlock.Type)
		if w.ContentBlock.Type == "tool_use" {
			b.toolID = w.ContentBlock.ID
			b.toolName = w.ContentBlock.Name
			return []op{{kind: opToolStart, index: w.Index, toolID: b.toolID, toolName: b.toolName}}, false, nil
		}
		return nil, false, nil
	case "content_block_delta":
		b := s.blockFor(w.Index, "text")
		switch w.Delta.Type {
		case "text_delta":
			b.text.WriteString(w.Delta.Text)
			return []op{{kind: opTextDelta, index: w.Index, text: w.Delta.Text}}, false, nil
		case "input_json_delta":
			b.args.WriteString(w.Delta.PartialJSON)
			return []op{{kind: opToolArgs, index: w.Index, text: w.Delta.PartialJSON}}, false, nil
		}
		return nil, false, nil
	case "message_delta":
		if w.Delta.StopReason != "" {
			return []op{{kind: opStop, stopReason: w.Delta.StopReason}, {kind: opUsage, usage: model.TokenUsage{OutputTokens: w.Usage.OutputTokens}}}, false, nil
		}
		return nil, false, nil
	case "message_stop":
		return nil, true, nil
	default:
		return nil, false, nil
	}
}

type chatChunkWire struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (s *StreamTranslator) parseOpenAIChatEvent(ev sse.Event) ([]op, bool, error) {
	var w chatChunkWire
	if err := json.Unmarshal([]byte(ev.Data), &w); err != nil {
		return nil, false, gwerr.UpstreamDecode(err)
	}
	if s.messageID == "" {
		s.messageID = w.ID
		s.modelName = w.Model
	}
	var ops []op
	if len(w.Choices) > 0 {
		choice := w.Choices[0]
		if choice.Delta.Content != "" {
			b := s.blockFor(0, "text")
			b.text.WriteString(choice.Delta.Content)
			ops = append(ops, op{kind: opTextDelta, index: 0, text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			b := s.blockFor(tc.Index, "tool_use")
			if tc.ID != "" && b.toolID == "" {
				b.toolID = tc.ID
				b.toolName = tc.Function.Name
				ops = append(ops, op{kind: opToolStart, index: tc.Index, toolID: tc.ID, toolName: tc.Function.Name})
			}
			if tc.Function.Arguments != "" {
				b.args.WriteString(tc.Function.Arguments)
				ops = append(ops, op{kind: opToolArgs, index: tc.Index, text: tc.Function.Arguments})
			}
		}
		if choice.FinishReason != "" {
			ops = append(ops, op{kind: opStop, stopReason: openAIChatFinishToAnthropicStop(choice.FinishReason)})
		}
	}
	if w.Usage != nil {
		ops = append(ops, op{kind: opUsage, usage: model.TokenUsage{InputTokens: w.Usage.PromptTokens, OutputTokens: w.Usage.CompletionTokens}})
	}
	return ops, false, nil
}

type respEventWire struct {
	Type        string `json:"type"`
	OutputIndex int    `json:"output_index"`
	Delta       string `json:"delta"`
	Item        struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"item"`
	Response struct {
		ID     string `json:"id"`
		Model  string `json:"model"`
		Status string `json:"status"`
		Usage  struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"response"`
}

func (s *StreamTranslator) parseOpenAIResponsesEvent(ev sse.Event) ([]op, bool, error) {
	var w respEventWire
	if err := json.Unmarshal([]byte(ev.Data), &w); err != nil {
		return nil, false, gwerr.UpstreamDecode(err)
	}
	switch w.Type {
	case "response.created":
		s.messageID = w.Response.ID
		s.modelName = w.Response.Model
		return []op{{kind: opStart}}, false, nil
	case "response.output_item.added":
		if w.Item.Type == "function_call" {
			b := s.blockFor(w.OutputIndex, "tool_use")
			b.toolID = w.Item.ID
			b.toolName = w.Item.Name
			return []op{{kind: opToolStart, index: w.OutputIndex, toolID: w.Item.ID, toolName: w.Item.Name}}, false, nil
		}
		s.blockFor(w.OutputIndex, "text")
		return nil, false, nil
	case "response.output_text.delta":
		b := s.blockFor(w.OutputIndex, "text")
		b.text.WriteString(w.Delta)
		return []op{{kind: opTextDelta, index: w.OutputIndex, text: w.Delta}}, false, nil
	case "response.function_call_arguments.delta":
		b := s.blockFor(w.OutputIndex, "tool_use")
		b.args.WriteString(w.Delta)
		return []op{{kind: opToolArgs, index: w.OutputIndex, text: w.Delta}}, false, nil
	case "response.completed":
		ops := []op{
			{kind: opStop, stopReason: openAIResponsesStatusToAnthropicStop(w.Response.Status)},
			{kind: opUsage, usage: model.TokenUsage{InputTokens: w.Response.Usage.InputTokens, OutputTokens: w.Response.Usage.OutputTokens}},
		}
		return ops, true, nil
	default:
		return nil, false, nil
	}
}

// --- client rendering ---

func (s *StreamTranslator) render(o op) []ClientEvent {
	switch s.ClientProto {
	case model.UpstreamAnthropic:
		return s.renderAnthropic(o)
	case model.UpstreamOpenAIChat:
		return s.renderOpenAIChat(o)
	case model.UpstreamOpenAIResponses:
		return s.renderOpenAIResponses(o)
	default:
		return nil
	}
}

func mustJSON(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func (s *StreamTranslator) renderAnthropic(o op) []ClientEvent {
	switch o.kind {
	case opStart:
		s.anthStartSent = true
		return []ClientEvent{{Name: "message_start", Data: mustJSON(map[string]any{
			"type":    "message_start",
			"message": map[string]any{"id": s.messageID, "model": s.modelName},
		})}}
	case opToolStart:
		s.anthOpenBlocks[o.index] = true
		return []ClientEvent{{Name: "content_block_start", Data: mustJSON(map[string]any{
			"type":          "content_block_start",
			"index":         o.index,
			"content_block": map[string]any{"type": "tool_use", "id": o.toolID, "name": o.toolName},
		})}}
	case opTextDelta:
		var out []ClientEvent
		if !s.anthOpenBlocks[o.index] {
			s.anthOpenBlocks[o.index] = true
			out = append(out, ClientEvent{Name: "content_block_start", Data: mustJSON(map[string]any{
				"type":          "content_block_start",
				"index":         o.index,
				"content_block": map[string]any{"type": "text", "text": ""},
			})})
		}
		out = append(out, ClientEvent{Name: "content_block_delta", Data: mustJSON(map[string]any{
			"type":  "content_block_delta",
			"index": o.index,
			"delta": map[string]any{"type": "text_delta", "text": o.text},
		})})
		return out
	case opToolArgs:
		return []ClientEvent{{Name: "content_block_delta", Data: mustJSON(map[string]any{
			"type":  "content_block_delta",
			"index": o.index,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": o.text},
		})}}
	case opStop:
		out := s.closeOpenAnthBlocks()
		out = append(out, ClientEvent{Name: "message_delta", Data: mustJSON(map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": o.stopReason},
		})})
		return out
	default:
		return nil
	}
}

func (s *StreamTranslator) renderOpenAIChat(o op) []ClientEvent {
	chunk := func(delta map[string]any, finish string) ClientEvent {
		payload := map[string]any{
			"id":    s.messageID,
			"model": s.modelName,
			"choices": []map[string]any{{
				"index": 0,
				"delta": delta,
			}},
		}
		if finish != "" {
			payload["choices"].([]map[string]any)[0]["finish_reason"] = finish
		}
		return ClientEvent{Data: mustJSON(payload)}
	}
	var out []ClientEvent
	if !s.chatHeaderSent {
		s.chatHeaderSent = true
		out = append(out, chunk(map[string]any{"role": "assistant"}, ""))
	}
	switch o.kind {
	case opTextDelta:
		out = append(out, chunk(map[string]any{"content": o.text}, ""))
	case opToolStart:
		tc := map[string]any{"index": o.index, "id": o.toolID, "type": "function", "function": map[string]any{"name": o.toolName, "arguments": ""}}
		out = append(out, chunk(map[string]any{"tool_calls": []any{tc}}, ""))
		s.openaiChatToolIndexSent[o.index] = true
	case opToolArgs:
		tc := map[string]any{"index": o.index, "function": map[string]any{"arguments": o.text}}
		out = append(out, chunk(map[string]any{"tool_calls": []any{tc}}, ""))
	case opStop:
		out = append(out, chunk(map[string]any{}, anthropicStopToOpenAIChatFinish(o.stopReason)))
		out = append(out, ClientEvent{Data: sse.Done})
	}
	return out
}

func (s *StreamTranslator) renderOpenAIResponses(o op) []ClientEvent {
	switch o.kind {
	case opStart:
		s.respCreatedSent = true
		return []ClientEvent{{Name: "response.created", Data: mustJSON(map[string]any{
			"type":     "response.created",
			"response": map[string]any{"id": s.messageID, "model": s.modelName},
		})}}
	case opToolStart:
		return []ClientEvent{{Name: "response.output_item.added", Data: mustJSON(map[string]any{
			"type":         "response.output_item.added",
			"output_index": o.index,
			"item":         map[string]any{"type": "function_call", "id": o.toolID, "name": o.toolName},
		})}}
	case opTextDelta:
		return []ClientEvent{{Name: "response.output_text.delta", Data: mustJSON(map[string]any{
			"type":         "response.output_text.delta",
			"output_index": o.index,
			"delta":        o.text,
		})}}
	case opToolArgs:
		return []ClientEvent{{Name: "response.function_call_arguments.delta", Data: mustJSON(map[string]any{
			"type":         "response.function_call_arguments.delta",
			"output_index": o.index,
			"delta":        o.text,
		})}}
	case opStop:
		output := s.assembleResponsesOutput()
		ev := ClientEvent{Name: "response.completed", Data: mustJSON(map[string]any{
			"type": "response.completed",
			"response": map[string]any{
				"status": anthropicStopToOpenAIResponsesStatus(o.stopReason),
				"output": output,
			},
		})}
		return []ClientEvent{ev, {Data: sse.Done}}
	default:
		return nil
	}
}

// assembleResponsesOutput builds the final output array for
// response.completed from the accumulated block table (spec §8
// scenario 3: the terminal event carries the aggregated content).
func (s *StreamTranslator) assembleResponsesOutput() []map[string]any {
	var out []map[string]any
	for _, idx := range s.order {
		b := s.blocks[idx]
		switch b.kind {
		case "text":
			out = append(out, map[string]any{
				"type":    "output_message",
				"content": []map[string]any{{"type": "output_text", "text": b.text.String()}},
			})
		case "tool_use":
			out = append(out, map[string]any{
				"type":      "function_call",
				"id":        b.toolID,
				"name":      b.toolName,
				"arguments": b.args.String(),
			})
		}
	}
	return out
}

// DrainUsageTail reads and discards at most maxBytes from r, used on
// client disconnect to consume a bounded tail of the upstream body
// (spec §4.5 "Cancellation"). The drained bytes are not parsed, so any
// usage they carry is not captured.
func DrainUsageTail(r io.Reader, maxBytes int64) (int64, error) {
	n, err := io.CopyN(io.Discard, r, maxBytes)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}
