// Package model defines the provider-agnostic wire-neutral types the
// gateway normalizes every inbound request into, and the shared route,
// provider and usage types that the router, translator and connector
// pass between each other on the hot path.
//
// Content is modeled as a closed set of typed ContentBlock variants
// rather than an untyped map so that translators can exhaustively switch
// over them; growing the set is a deliberate, reviewed change, not an
// ad-hoc addition (see package doc in the teacher's runtime/agent/model).
package model

import "fmt"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlock is a tagged variant implemented by Text, Image, ToolUse,
// ToolResult and Thinking. Adding a new variant means adding a new type
// here and a case in every translator switch that handles blocks; there
// is no dynamic type sniffing elsewhere in the codebase.
type ContentBlock interface {
	isContentBlock()
}

// Text is a plain text content block.
type Text struct {
	Text string
}

// Image carries inline bytes or a URL reference to an image. Exactly one
// of Bytes or URL is set.
type Image struct {
	MIME  string
	Bytes []byte
	URL   string
}

// ToolUse declares a tool invocation requested by the assistant.
type ToolUse struct {
	ID    string
	Name  string
	Input any // JSON-compatible decoded arguments
}

// ToolResult carries the result of a prior ToolUse back to the model.
type ToolResult struct {
	ToolUseID string
	Content   any // string, []ContentBlock-compatible value, or JSON-able value
	IsError   bool
}

// Thinking carries provider-visible reasoning content.
type Thinking struct {
	Text string
}

func (Text) isContentBlock()       {}
func (Image) isContentBlock()      {}
func (ToolUse) isContentBlock()    {}
func (ToolResult) isContentBlock() {}
func (Thinking) isContentBlock()   {}

// Message is one turn in the normalized conversation.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// ToolChoiceMode selects how the model should use the declared tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceAny      ToolChoiceMode = "any"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceSpecific ToolChoiceMode = "specific"
)

// ToolChoice configures optional tool-use constraints for a request.
type ToolChoice struct {
	Mode ToolChoiceMode
	// Name is set when Mode == ToolChoiceSpecific.
	Name string
}

// ToolDefinition describes one tool exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// NormalizedPayload is the single canonical in-memory form every client
// wire shape (Anthropic Messages, OpenAI Chat, OpenAI Responses) is
// normalized into before routing and translation.
type NormalizedPayload struct {
	Model       string
	Stream      bool
	Messages    []Message
	System      string
	Tools       []ToolDefinition
	ToolChoice  *ToolChoice
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Stop        []string
	Metadata    map[string]any

	// ThinkingRequested records whether the client asked for
	// extended/"thinking" behavior. The router's reasoning heuristic
	// (§4.2) and the handler's TPOT calculation read it; it is not
	// forwarded upstream, and the translator's request builders emit no
	// thinking parameter.
	ThinkingRequested bool
}

// Validate checks the invariants from spec §3: non-empty messages, every
// ToolResult references an earlier ToolUse.ID, and Image blocks only
// appear on user messages.
func (p *NormalizedPayload) Validate() error {
	if len(p.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	seenToolUse := make(map[string]bool)
	for _, m := range p.Messages {
		for _, b := range m.Content {
			switch v := b.(type) {
			case ToolUse:
				seenToolUse[v.ID] = true
			case Image:
				if m.Role != RoleUser {
					return fmt.Errorf("image block only allowed on user messages, got role %q", m.Role)
				}
			}
		}
	}
	for _, m := range p.Messages {
		for _, b := range m.Content {
			if tr, ok := b.(ToolResult); ok {
				if !seenToolUse[tr.ToolUseID] {
					return fmt.Errorf("tool_result references unknown tool_use id %q", tr.ToolUseID)
				}
			}
		}
	}
	return nil
}

// UpstreamType identifies the wire shape the translator must produce for
// the resolved provider.
type UpstreamType string

const (
	UpstreamAnthropic       UpstreamType = "anthropic"
	UpstreamOpenAIChat      UpstreamType = "openai-chat"
	UpstreamOpenAIResponses UpstreamType = "openai-responses"
	UpstreamOpenAIAuto      UpstreamType = "openai-auto"
)

// RouteDecision is the output of the router for one request.
type RouteDecision struct {
	ProviderID    string
	UpstreamModel string
	UpstreamType  UpstreamType
	TokenEstimate int
}

// AuthMode selects how the connector authenticates to a provider.
type AuthMode string

const (
	AuthAPIKey AuthMode = "api-key"
	AuthBearer AuthMode = "bearer"
)

// ProviderConfig describes one configured upstream.
type ProviderConfig struct {
	ID      string
	Label   string
	BaseURL string
	Auth    ProviderAuth
	Type    UpstreamType
	// DefaultModel is used when a passthrough route does not specify one.
	DefaultModel string
	// Models is the set of model IDs this provider is known to serve;
	// used to populate GET /openai/v1/models. When empty, that list shows
	// only DefaultModel for this provider, or nothing if DefaultModel is
	// also empty. The router does not consult it.
	Models       map[string]bool
	ExtraHeaders map[string]string
	// ExtraHeadersOverrideAuth allows ExtraHeaders to replace the
	// auth header this provider would otherwise set (spec §4.7: "can
	// override auth only when the provider was declared that way").
	ExtraHeadersOverrideAuth bool
}

// ProviderAuth configures how the connector authenticates requests.
type ProviderAuth struct {
	Mode   AuthMode
	Secret string
}

// TokenUsage tracks token counts observed for one request.
type TokenUsage struct {
	InputTokens       int
	OutputTokens      int
	CachedReadTokens  int
	CachedWriteTokens int
	TTFTMillis        float64
	// TPOTMillis is nil ("undefined") when OutputTokens <= 0 (§4.9).
	TPOTMillis *float64
}
