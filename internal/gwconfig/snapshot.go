// Package gwconfig holds the immutable configuration snapshot the hot
// path reads from, and the atomic store that lets an (out-of-core-scope)
// admin surface swap in a new snapshot without disturbing in-flight
// requests (spec §5, §9 "Configuration hot-swap").
package gwconfig

import (
	"fmt"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// RoutingDefaults names the three route categories the router falls back
// to when no explicit model_routes entry matches (spec §4.2).
type RoutingDefaults struct {
	Completion string // "providerId:modelId" or "providerId:*"
	Reasoning  string
	Background string
}

// RoutingTable is the per-endpoint routing configuration from spec §3.
type RoutingTable struct {
	Defaults RoutingDefaults
	// ModelRoutes maps a requested model literally to a "providerId:modelId"
	// or "providerId:*" passthrough target.
	ModelRoutes map[string]string
	// ReasoningModels, when non-empty, is the explicit allow-list deciding
	// the "reasoning" routing category (see DESIGN.md Open Question
	// decision); when empty, every request carrying tools or a thinking
	// request is classified as reasoning.
	ReasoningModels []string
}

// EndpointKind identifies the wire shape a custom endpoint speaks.
type EndpointKind = model.UpstreamType

// EndpointConfig is one custom endpoint declared in config (spec §6).
type EndpointConfig struct {
	Path   string
	Kind   EndpointKind
	Routes RoutingTable
}

// Feature flags controlling ambient, non-hot-path-critical behavior.
type Features struct {
	StoreRequestPayloads  bool
	StoreResponsePayloads bool
	MaxRequestBodyBytes   int64 // default 10 MiB (spec §5)
	MaxSSECaptureBytes    int64 // 0 means unbounded
	WildcardKeyEnabled    bool
}

// Snapshot is the immutable view of providers, routes, presets and
// feature flags that the hot path consumes. A Snapshot is never mutated
// after construction; Store.Swap installs a new one atomically.
type Snapshot struct {
	Providers       map[string]model.ProviderConfig
	AnthropicRoutes RoutingTable // the global "anthropic" endpoint's table
	OpenAIRoutes    RoutingTable // the global "openai" endpoint's table
	Endpoints       map[string]EndpointConfig
	Presets         map[string]RoutingTable
	Features        Features
}

// Provider looks up a provider by id.
func (s *Snapshot) Provider(id string) (model.ProviderConfig, bool) {
	p, ok := s.Providers[id]
	return p, ok
}

// Validate performs light sanity checks a loader should run before a
// snapshot is installed (not re-validated on the hot path).
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("nil snapshot")
	}
	for _, ep := range s.Endpoints {
		for _, target := range ep.Routes.ModelRoutes {
			if _, err := parseTarget(target); err != nil {
				return fmt.Errorf("endpoint %q: %w", ep.Path, err)
			}
		}
	}
	return nil
}

func parseTarget(target string) (providerID, upstreamModel string, err error) {
	for i := 0; i < len(target); i++ {
		if target[i] == ':' {
			return target[:i], target[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("route target %q is not of the form providerId:modelId", target)
}

// ParseTarget is the exported form of the routing-table target grammar
// ("providerId:modelId" | "providerId:*"), used by the router.
func ParseTarget(target string) (providerID, upstreamModel string, err error) {
	return parseTarget(target)
}
