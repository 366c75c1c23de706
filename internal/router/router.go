// Package router resolves (endpoint, requested_model) to
// (provider, upstream_model) per spec §4.2, against the config
// snapshot's routing tables.
package router

import (
	"strings"

	"github.com/chenpu17/cc-gw-sub001/internal/gwconfig"
	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
	"github.com/chenpu17/cc-gw-sub001/internal/tokenizer"
)

// Endpoint identifies which routing table to consult.
type Endpoint string

const (
	EndpointAnthropic Endpoint = "anthropic"
	EndpointOpenAI    Endpoint = "openai"
)

// defaultReasoningHints are model-name hints checked only when a
// RoutingTable doesn't declare an explicit ReasoningModels allow-list
// (see DESIGN.md "reasoning routing category" decision). A request that
// reaches this check already carries tools, so it is classified as
// reasoning whether or not a hint matches.
var defaultReasoningHints = []string{"thinking", "reasoning", "o1", "o3"}

// Resolve implements the routing algorithm of spec §4.2. customTable is
// non-nil when the caller is a custom-declared endpoint with its own
// table; for the built-in "anthropic"/"openai" endpoints pass nil and
// Endpoint selects the snapshot's global table.
func Resolve(snap *gwconfig.Snapshot, ep Endpoint, customTable *gwconfig.RoutingTable, payload *model.NormalizedPayload, requestedModel string) (model.RouteDecision, error) {
	table := selectTable(snap, ep, customTable)

	target, ok := table.ModelRoutes[requestedModel]
	if !ok {
		category := classify(payload, table)
		target = defaultsFor(table, category)
	}
	if target == "" {
		return model.RouteDecision{}, gwerr.InvalidRequest("no route configured for model %q", requestedModel)
	}

	providerID, upstreamModel, err := gwconfig.ParseTarget(target)
	if err != nil {
		return model.RouteDecision{}, gwerr.Internal(err)
	}

	provider, ok := snap.Provider(providerID)
	if !ok {
		return model.RouteDecision{}, gwerr.UnknownProvider(providerID)
	}

	resolvedModel := upstreamModel
	if upstreamModel == "*" {
		resolvedModel = requestedModel
		if resolvedModel == "" {
			resolvedModel = provider.DefaultModel
		}
	}

	return model.RouteDecision{
		ProviderID:    providerID,
		UpstreamModel: resolvedModel,
		UpstreamType:  provider.Type,
		TokenEstimate: tokenizer.EstimatePayload(payload),
	}, nil
}

func selectTable(snap *gwconfig.Snapshot, ep Endpoint, customTable *gwconfig.RoutingTable) gwconfig.RoutingTable {
	if customTable != nil {
		return *customTable
	}
	switch ep {
	case EndpointAnthropic:
		return snap.AnthropicRoutes
	case EndpointOpenAI:
		return snap.OpenAIRoutes
	default:
		return gwconfig.RoutingTable{}
	}
}

type category string

const (
	categoryBackground category = "background"
	categoryReasoning  category = "reasoning"
	categoryCompletion category = "completion"
)

// classify implements spec §4.2 step 2's three-way heuristic.
func classify(p *model.NormalizedPayload, table gwconfig.RoutingTable) category {
	if isBackground(p) {
		return categoryBackground
	}
	if isReasoning(p, table) {
		return categoryReasoning
	}
	return categoryCompletion
}

func isBackground(p *model.NormalizedPayload) bool {
	if !strings.Contains(strings.ToLower(p.Model), "haiku") {
		return false
	}
	if len(p.Tools) > 0 {
		return false
	}
	userMessages := 0
	for _, m := range p.Messages {
		if m.Role == model.RoleUser {
			userMessages++
		}
	}
	return userMessages <= 2
}

func isReasoning(p *model.NormalizedPayload, table gwconfig.RoutingTable) bool {
	if len(p.Tools) == 0 && !p.ThinkingRequested {
		return false
	}
	if len(table.ReasoningModels) > 0 {
		for _, m := range table.ReasoningModels {
			if m == p.Model {
				return true
			}
		}
		return false
	}
	if p.ThinkingRequested {
		return true
	}
	lower := strings.ToLower(p.Model)
	for _, hint := range defaultReasoningHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return len(p.Tools) > 0
}

func defaultsFor(table gwconfig.RoutingTable, c category) string {
	switch c {
	case categoryBackground:
		return table.Defaults.Background
	case categoryReasoning:
		return table.Defaults.Reasoning
	default:
		return table.Defaults.Completion
	}
}
