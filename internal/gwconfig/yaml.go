package gwconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// yamlDoc mirrors the on-disk config file shape. The file format and the
// admin surface that writes it are out of core scope (spec §1); this
// loader exists only so the core has a concrete way to obtain a
// Snapshot for cmd/cc-gw and for tests.
type yamlDoc struct {
	Providers []yamlProvider        `yaml:"providers"`
	Anthropic yamlRoutingTable      `yaml:"anthropicRoutes"`
	OpenAI    yamlRoutingTable      `yaml:"openaiRoutes"`
	Endpoints []yamlEndpoint        `yaml:"endpoints"`
	Presets   map[string]yamlRoutingTable `yaml:"presets"`
	Features  yamlFeatures          `yaml:"features"`
}

type yamlProvider struct {
	ID           string            `yaml:"id"`
	Label        string            `yaml:"label"`
	BaseURL      string            `yaml:"baseUrl"`
	AuthMode     string            `yaml:"authMode"`
	AuthSecret   string            `yaml:"authSecret"`
	Type         string            `yaml:"type"`
	DefaultModel string            `yaml:"defaultModel"`
	Models       []string          `yaml:"models"`
	ExtraHeaders map[string]string `yaml:"extraHeaders"`
	HeadersOverrideAuth bool       `yaml:"extraHeadersOverrideAuth"`
}

type yamlRoutingTable struct {
	Defaults struct {
		Completion string `yaml:"completion"`
		Reasoning  string `yaml:"reasoning"`
		Background string `yaml:"background"`
	} `yaml:"defaults"`
	ModelRoutes     map[string]string `yaml:"modelRoutes"`
	ReasoningModels []string          `yaml:"reasoningModels"`
}

type yamlEndpoint struct {
	Path   string           `yaml:"path"`
	Kind   string           `yaml:"kind"`
	Routes yamlRoutingTable `yaml:"routes"`
}

type yamlFeatures struct {
	StoreRequestPayloads  bool  `yaml:"storeRequestPayloads"`
	StoreResponsePayloads bool  `yaml:"storeResponsePayloads"`
	MaxRequestBodyBytes   int64 `yaml:"maxRequestBodyBytes"`
	MaxSSECaptureBytes    int64 `yaml:"maxSseCaptureBytes"`
	WildcardKeyEnabled    bool  `yaml:"wildcardKeyEnabled"`
}

// FromYAML parses a YAML-encoded Snapshot document.
func FromYAML(data []byte) (*Snapshot, error) {
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gwconfig: parse yaml: %w", err)
	}
	snap := &Snapshot{
		Providers:       make(map[string]model.ProviderConfig, len(doc.Providers)),
		AnthropicRoutes: toRoutingTable(doc.Anthropic),
		OpenAIRoutes:    toRoutingTable(doc.OpenAI),
		Endpoints:       make(map[string]EndpointConfig, len(doc.Endpoints)),
		Presets:         make(map[string]RoutingTable, len(doc.Presets)),
		Features: Features{
			StoreRequestPayloads:  doc.Features.StoreRequestPayloads,
			StoreResponsePayloads: doc.Features.StoreResponsePayloads,
			MaxRequestBodyBytes:   defaultInt64(doc.Features.MaxRequestBodyBytes, 10<<20),
			MaxSSECaptureBytes:    doc.Features.MaxSSECaptureBytes,
			WildcardKeyEnabled:    doc.Features.WildcardKeyEnabled,
		},
	}
	for _, p := range doc.Providers {
		models := make(map[string]bool, len(p.Models))
		for _, m := range p.Models {
			models[m] = true
		}
		snap.Providers[p.ID] = model.ProviderConfig{
			ID:      p.ID,
			Label:   p.Label,
			BaseURL: p.BaseURL,
			Auth: model.ProviderAuth{
				Mode:   model.AuthMode(p.AuthMode),
				Secret: p.AuthSecret,
			},
			Type:                     model.UpstreamType(p.Type),
			DefaultModel:             p.DefaultModel,
			Models:                   models,
			ExtraHeaders:             p.ExtraHeaders,
			ExtraHeadersOverrideAuth: p.HeadersOverrideAuth,
		}
	}
	for _, ep := range doc.Endpoints {
		snap.Endpoints[ep.Path] = EndpointConfig{
			Path:   ep.Path,
			Kind:   model.UpstreamType(ep.Kind),
			Routes: toRoutingTable(ep.Routes),
		}
	}
	for name, rt := range doc.Presets {
		snap.Presets[name] = toRoutingTable(rt)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// FromFile loads and parses a YAML config file from disk.
func FromFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gwconfig: read %s: %w", path, err)
	}
	return FromYAML(data)
}

func toRoutingTable(rt yamlRoutingTable) RoutingTable {
	return RoutingTable{
		Defaults: RoutingDefaults{
			Completion: rt.Defaults.Completion,
			Reasoning:  rt.Defaults.Reasoning,
			Background: rt.Defaults.Background,
		},
		ModelRoutes:     rt.ModelRoutes,
		ReasoningModels: rt.ReasoningModels,
	}
}

func defaultInt64(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}
